// Package junit runs a compiled JUnit test class in a single JVM and
// funnels the XML result file back to the caller.
package junit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/capture"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultJava = "java"

	RunnerClass      = "org.apache.tools.ant.taskdefs.optional.junit.JUnitTestRunner"
	XMLFormatter     = "org.apache.tools.ant.taskdefs.optional.junit.XMLJUnitResultFormatter"
	SummaryFormatter = "org.apache.tools.ant.taskdefs.optional.junit.SummaryJUnitResultFormatter"

	// DataLocationProperty is the system property tests read their data directory from
	DataLocationProperty = "data.location"

	resultSuffix   = "_junit.xml"
	stderrTailSize = 16 * 1024
)

// CmdBuilder creates the command for a run and a cleanup function
type CmdBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// Config holds configuration for creating a runner
type Config struct {
	Java      string
	Classpath string
	JVMArgs   []string
	Channels  *capture.Channels
	Mode      capture.Mode
	Log       log.Logger
	// CmdBuilder defaults to exec.CommandContext
	CmdBuilder CmdBuilder
}

// Runner executes JUnit test classes
type Runner struct {
	java       string
	classpath  string
	jvmArgs    []string
	channels   *capture.Channels
	mode       capture.Mode
	log        log.Logger
	cmdBuilder CmdBuilder
	tracer     trace.Tracer
}

// NewRunner creates a JUnit runner
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Java == "" {
		cfg.Java = DefaultJava
	}
	if cfg.Channels == nil {
		cfg.Channels = capture.Std()
	}
	if cfg.Mode == "" {
		cfg.Mode = capture.Buffer
	}
	if _, err := capture.ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
			return exec.CommandContext(ctx, name, arg...), func() {}
		}
	}
	return &Runner{
		java:       cfg.Java,
		classpath:  cfg.Classpath,
		jvmArgs:    cfg.JVMArgs,
		channels:   cfg.Channels,
		mode:       cfg.Mode,
		log:        cfg.Log,
		cmdBuilder: cfg.CmdBuilder,
		tracer:     otel.Tracer("junit"),
	}, nil
}

// SimpleName is the last dot-separated element of a test identifier
func SimpleName(testID string) string {
	return testID[strings.LastIndex(testID, ".")+1:]
}

// ResultPath is where the result file of testID is written
func ResultPath(testID, dataLocation string) string {
	return filepath.Join(dataLocation, SimpleName(testID)+resultSuffix)
}

// Run executes testID with dataLocation as its data directory. Test
// failures are not errors: they are recorded in the result file. An error
// means the runner could not be started or produced no result file.
func (r *Runner) Run(ctx context.Context, testID, dataLocation string) (*Result, error) {
	if testID == "" {
		return nil, errors.New("test identifier is required")
	}
	if dataLocation == "" {
		return nil, errors.New("data location is required")
	}

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("junit %s", testID))
	defer span.End()
	span.SetAttributes(attribute.String("test", testID))

	if err := os.MkdirAll(dataLocation, 0755); err != nil {
		return nil, fmt.Errorf("creating data location: %w", err)
	}
	path := ResultPath(testID, dataLocation)
	_ = os.Remove(path)

	r.log.Info("Running tests", "test", testID, "dataLocation", dataLocation)

	start := time.Now()
	exitCode, transcript, err := capture.Run(r.channels, r.mode, func(out, errw io.Writer) (int, error) {
		return r.exec(ctx, r.buildArgs(testID, dataLocation, path), out, errw, path)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	res := &Result{
		Path:       path,
		TestID:     testID,
		ExitCode:   exitCode,
		Duration:   time.Since(start),
		Transcript: transcript,
	}
	span.SetAttributes(attribute.Int("exit_code", exitCode))
	r.log.Info("Tests finished", "test", testID, "exitCode", exitCode, "duration", res.Duration, "result", path)
	return res, nil
}

func (r *Runner) exec(ctx context.Context, args []string, out, errw io.Writer, path string) (int, error) {
	cmd, cleanup := r.cmdBuilder(ctx, r.java, args...)
	defer cleanup()

	tail := capture.NewTail(stderrTailSize)
	cmd.Stdout = out
	cmd.Stderr = io.MultiWriter(errw, tail)

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, fmt.Errorf("test run interrupted: %w", ctxErr)
	}

	exitCode := 0
	if runErr != nil {
		exitErr := &exec.ExitError{}
		if !errors.As(runErr, &exitErr) {
			return 0, fmt.Errorf("failed to start test runner: %w", runErr)
		}
		// the runner exits non-zero when tests fail or error
		exitCode = exitErr.ExitCode()
	}

	if _, err := os.Stat(path); err != nil {
		return exitCode, fmt.Errorf("no test results at %s (exit code %d): %s", path, exitCode, strings.TrimSpace(tail.String()))
	}
	return exitCode, nil
}

func (r *Runner) buildArgs(testID, dataLocation, path string) []string {
	args := append([]string{}, r.jvmArgs...)
	if r.classpath != "" {
		args = append(args, "-cp", r.classpath)
	}
	return append(args,
		fmt.Sprintf("-D%s=%s", DataLocationProperty, dataLocation),
		RunnerClass,
		testID,
		fmt.Sprintf("formatter=%s,%s", XMLFormatter, path),
		"formatter="+SummaryFormatter,
		"showoutput=false",
	)
}
