// Package engine invokes the analysis engine on a resolved configuration and
// classifies how the run ended.
//
// An Engine does the actual work; the Invoker wraps each run in a capture
// scope, assigns it a run ID and turns engine failures into an Outcome.
// Errors that are not engine failures are returned to the caller as defects.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/capture"
	"github.com/ethereum-optimism/infra/op-harness/options"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request is one engine run
type Request struct {
	RunID  string
	Config *options.Configuration
	Stdout io.Writer
	Stderr io.Writer
}

// Engine runs an analysis and returns its raw result. Rejections of the
// configuration and failures of the analysis itself are reported as
// *Failure; any other error is treated as a defect.
type Engine interface {
	Run(ctx context.Context, req Request) (*types.RawResult, error)
}

// Func adapts a function to the Engine interface
type Func func(ctx context.Context, req Request) (*types.RawResult, error)

func (f Func) Run(ctx context.Context, req Request) (*types.RawResult, error) {
	return f(ctx, req)
}

// FailureKind distinguishes configuration rejections from runtime failures
type FailureKind string

const (
	KindConfig  FailureKind = "config"
	KindRuntime FailureKind = "runtime"
)

// Failure is an expected way for an engine run to fail
type Failure struct {
	Kind   FailureKind
	Reason string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("engine %s failure: %s", f.Kind, f.Reason)
}

// ConfigFailure reports that the engine rejected the configuration
func ConfigFailure(format string, args ...any) *Failure {
	return &Failure{Kind: KindConfig, Reason: fmt.Sprintf(format, args...)}
}

// RuntimeFailure reports that the analysis failed while running
func RuntimeFailure(format string, args ...any) *Failure {
	return &Failure{Kind: KindRuntime, Reason: fmt.Sprintf(format, args...)}
}

// IsFailure checks if the error is or wraps a Failure
func IsFailure(err error) bool {
	var f *Failure
	return err != nil && errors.As(err, &f)
}

// Status is the classification of a finished run
type Status string

const (
	StatusSuccess       Status = "success"
	StatusConfigFailure Status = "config_failure"
	StatusEngineFailure Status = "engine_failure"
)

func (s Status) String() string {
	return string(s)
}

// Outcome is the result of one invocation. Result is set only on success;
// Reason only on failure.
type Outcome struct {
	Status     Status
	Reason     string
	Result     *types.RawResult
	Transcript *capture.Transcript
	RunID      string
	Duration   time.Duration
}

// Succeeded reports whether the engine completed and produced a result
func (o *Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Config holds configuration for creating an invoker
type Config struct {
	Engine   Engine
	Channels *capture.Channels
	Mode     capture.Mode
	Log      log.Logger
}

// Invoker runs an engine inside a capture scope
type Invoker struct {
	engine   Engine
	channels *capture.Channels
	mode     capture.Mode
	log      log.Logger
	tracer   trace.Tracer
	newRunID func() string
}

// NewInvoker creates a new invoker
func NewInvoker(cfg Config) (*Invoker, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Channels == nil {
		cfg.Channels = capture.Std()
	}
	if cfg.Mode == "" {
		cfg.Mode = capture.Discard
	}
	if _, err := capture.ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Invoker{
		engine:   cfg.Engine,
		channels: cfg.Channels,
		mode:     cfg.Mode,
		log:      cfg.Log,
		tracer:   otel.Tracer("engine"),
		newRunID: func() string { return uuid.New().String() },
	}, nil
}

// Run executes one analysis of cfg. The returned error is non-nil only for
// defects; engine failures are reported through the Outcome.
func (i *Invoker) Run(ctx context.Context, cfg *options.Configuration) (*Outcome, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	runID := i.newRunID()
	ctx, span := i.tracer.Start(ctx, "analysis run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("target", cfg.Get(options.KeyTarget)),
	)

	i.log.Info("Running analysis", "runID", runID, "target", cfg.Get(options.KeyTarget), "mode", i.mode)

	start := time.Now()
	result, transcript, err := capture.Run(i.channels, i.mode, func(out, errw io.Writer) (*types.RawResult, error) {
		return i.engine.Run(ctx, Request{RunID: runID, Config: cfg, Stdout: out, Stderr: errw})
	})
	outcome := &Outcome{
		RunID:      runID,
		Duration:   time.Since(start),
		Transcript: transcript,
	}

	if err != nil {
		var failure *Failure
		if !errors.As(err, &failure) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "defect")
			return nil, fmt.Errorf("analysis run %s: %w", runID, err)
		}
		switch failure.Kind {
		case KindConfig:
			outcome.Status = StatusConfigFailure
		default:
			outcome.Status = StatusEngineFailure
		}
		outcome.Reason = failure.Reason
		span.SetAttributes(attribute.String("outcome", outcome.Status.String()))
		i.log.Warn("Analysis failed", "runID", runID, "status", outcome.Status, "reason", failure.Reason, "duration", outcome.Duration)
		return outcome, nil
	}
	if result == nil {
		return nil, fmt.Errorf("analysis run %s: engine returned no result", runID)
	}

	outcome.Status = StatusSuccess
	outcome.Result = result
	span.SetAttributes(attribute.String("outcome", outcome.Status.String()), attribute.Int("errors", len(result.Errors)))
	i.log.Info("Analysis finished", "runID", runID, "errors", len(result.Errors), "duration", outcome.Duration)
	return outcome, nil
}
