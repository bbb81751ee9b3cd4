// Package harness runs model-checking analyses and unit tests on behalf of an
// external assessment orchestrator and writes their results where the
// orchestrator expects them.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-harness/capture"
	"github.com/ethereum-optimism/infra/op-harness/discovery"
	"github.com/ethereum-optimism/infra/op-harness/engine"
	"github.com/ethereum-optimism/infra/op-harness/junit"
	"github.com/ethereum-optimism/infra/op-harness/logging"
	"github.com/ethereum-optimism/infra/op-harness/options"
	"github.com/ethereum-optimism/infra/op-harness/report"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
)

// Analysis is the result of one analyze call
type Analysis struct {
	Outcome *engine.Outcome
	// Report is nil unless the engine run succeeded
	Report     *report.Report
	OutputFile string
}

// Succeeded reports whether the engine completed and the report was written
func (a *Analysis) Succeeded() bool {
	return a != nil && a.Outcome != nil && a.Outcome.Succeeded() && a.Report != nil
}

// TestRun is the result of one test call
type TestRun struct {
	Result *junit.Result
	// Report is nil if the result file could not be parsed
	Report *junit.Report
}

// Label is the metrics label of the run: pass, fail or error
func (r *TestRun) Label() string {
	switch {
	case r == nil || r.Report == nil:
		return "error"
	case r.Report.Success():
		return "pass"
	default:
		return "fail"
	}
}

// Harness wires the discovery, configuration, invocation and reporting
// components together
type Harness struct {
	config    *Config
	channels  *capture.Channels
	finder    *discovery.Finder
	invoker   *engine.Invoker
	runner    *junit.Runner
	formatter ResultFormatter
	reporter  MetricsReporter
	// runLog is nil unless a log directory is configured
	runLog *logging.FileLogger
	log    log.Logger
}

// New creates a harness. channels are the output channels captured around
// engine and test runs; nil means the process's standard streams.
func New(config *Config, channels *capture.Channels) (*Harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		config.Log = log.New()
		config.Log.Error("No logger provided, using default")
	}
	if channels == nil {
		channels = capture.Std()
	}
	if config.WorkDir == "" {
		config.WorkDir = filepath.Join(os.TempDir(), "op-harness")
	}
	if config.CaptureMode == "" {
		config.CaptureMode = capture.Buffer
	}

	reg, err := discovery.NewRegistry(discovery.Config{
		Log:          config.Log,
		ManifestFile: config.ManifestFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	finder, err := discovery.NewFinder(discovery.FinderConfig{
		Registry: reg,
		Log:      config.Log,
		CacheDir: config.CacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create finder: %w", err)
	}

	eng := config.Engine
	if eng == nil {
		eng, err = engine.NewProcess(engine.ProcessConfig{
			Java:      config.Java,
			Classpath: config.JPFClasspath,
			JVMArgs:   config.JVMArgs,
			WorkDir:   config.WorkDir,
			KeepFiles: config.KeepFiles,
			Log:       config.Log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create engine: %w", err)
		}
	}
	invoker, err := engine.NewInvoker(engine.Config{
		Engine:   eng,
		Channels: channels,
		Mode:     config.CaptureMode,
		Log:      config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create invoker: %w", err)
	}

	runner, err := junit.NewRunner(junit.Config{
		Java:       config.Java,
		Classpath:  config.JUnitClasspath,
		JVMArgs:    config.JVMArgs,
		Channels:   channels,
		Mode:       config.CaptureMode,
		Log:        config.Log,
		CmdBuilder: config.TestCmdBuilder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}

	var runLog *logging.FileLogger
	if config.LogDir != "" {
		runLog, err = logging.NewFileLogger(config.LogDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create run logger: %w", err)
		}
	}

	config.Log.Debug("harness.New: created finder, invoker and test runner", "workDir", config.WorkDir, "capture", config.CaptureMode)

	return &Harness{
		config:    config,
		channels:  channels,
		finder:    finder,
		invoker:   invoker,
		runner:    runner,
		formatter: NewConsoleResultFormatter(config.Log, channels.Out),
		reporter:  NewDefaultMetricsReporter(),
		runLog:    runLog,
		log:       config.Log,
	}, nil
}

// Discover lists the classes of the named kind and writes them as JSON to
// outputFile. Nothing is written when discovery fails.
func (h *Harness) Discover(ctx context.Context, kindName, outputFile string) (classes []types.Class, err error) {
	defer recoverDefect("discover", &err)

	kind, err := discovery.LookupKind(kindName)
	if err != nil {
		err = &discovery.DiscoveryError{Err: err}
		h.reporter.ReportDiscovery(kindName, 0, err)
		return nil, err
	}

	classes, err = h.finder.Find(ctx, kind)
	h.reporter.ReportDiscovery(kind.Name, len(classes), err)
	if err != nil {
		return nil, Classify(err)
	}

	if err := discovery.WriteClassesFile(outputFile, classes); err != nil {
		return nil, NewIOError(outputFile, err)
	}
	h.log.Info("Discovered classes", "kind", kind.Name, "count", len(classes), "output", outputFile)

	if h.config.ShowResults {
		if err := h.formatter.FormatDiscovery(kind.Name, classes); err != nil {
			h.log.Warn("Failed to print discovery results", "err", err)
		}
	}
	return classes, nil
}

// Analyze runs the engine on target with the options of configFile and
// writes the structured report to outputFile. Engine failures are reported
// through the returned Analysis; the error is set for configuration, output
// and unexpected failures.
func (h *Harness) Analyze(ctx context.Context, configFile, target, targetLocation, outputFile string) (analysis *Analysis, err error) {
	defer recoverDefect("analyze", &err)

	if target == "" {
		return nil, &options.ConfigError{Err: errors.New("target is required")}
	}
	if outputFile == "" {
		return nil, &options.ConfigError{Err: errors.New("output file is required")}
	}

	fileLayer, err := options.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := options.CheckAllowed(fileLayer); err != nil {
		return nil, &options.ConfigError{Path: configFile, Err: errors.Unwrap(err)}
	}

	feed := filepath.Join(h.config.WorkDir, uuid.New().String()+".feed")
	if !h.config.KeepFiles {
		defer removeFeed(feed)
	}

	cfg := options.Build(options.Defaults(), fileLayer, options.Runtime{
		Target:         target,
		ReportFile:     feed,
		TargetLocation: targetLocation,
		Overrides:      h.config.Overrides,
	})

	if h.config.ValidateExtensions {
		if err := h.validateExtensions(ctx, cfg); err != nil {
			return nil, err
		}
	}

	outcome, err := h.invoker.Run(ctx, cfg)
	if err != nil {
		return nil, NewDefectError(err)
	}

	analysis = &Analysis{Outcome: outcome, OutputFile: outputFile}
	defer h.logAnalysis(target, analysis)
	if outcome.Succeeded() {
		rep := report.FromResult(outcome.Result)
		format := h.config.ReportFormat
		if format == "" {
			format = report.FormatForPath(outputFile)
		}
		if err := rep.WriteFile(outputFile, format); err != nil {
			h.reporter.ReportAnalysis(analysis)
			return analysis, NewIOError(outputFile, err)
		}
		analysis.Report = rep
		h.log.Info("Report written", "runID", outcome.RunID, "output", outputFile, "summary", rep.Summary())
	}

	h.reporter.ReportAnalysis(analysis)
	if h.config.ShowResults {
		if err := h.formatter.FormatAnalysis(analysis); err != nil {
			h.log.Warn("Failed to print analysis results", "err", err)
		}
	}
	return analysis, nil
}

// validateExtensions rejects listener and search.class values that do not
// name discovered classes
func (h *Harness) validateExtensions(ctx context.Context, cfg *options.Configuration) error {
	checks := []struct {
		key  string
		kind discovery.Kind
	}{
		{options.KeyListener, discovery.KindListeners},
		{options.KeySearchClass, discovery.KindSearches},
	}
	for _, c := range checks {
		value, ok := cfg.Lookup(c.key)
		if !ok {
			continue
		}
		for _, name := range splitList(value) {
			found, err := h.finder.Contains(ctx, c.kind, name)
			if err != nil {
				return err
			}
			if !found {
				return &options.ConfigError{Err: fmt.Errorf("%s: %s is not one of the available %s", c.key, name, c.kind.Name)}
			}
		}
	}
	return nil
}

// Test runs the unit tests of testID with dataLocation as their data
// directory. Failing tests are not an error.
func (h *Harness) Test(ctx context.Context, testID, dataLocation string) (run *TestRun, err error) {
	defer recoverDefect("test", &err)

	start := time.Now()
	res, err := h.runner.Run(ctx, testID, dataLocation)
	if err != nil {
		h.reporter.ReportTest(testID, nil, time.Since(start))
		h.logRun(&logging.Entry{
			Command:  "test",
			Subject:  testID,
			Status:   "error",
			Summary:  Diagnostic(err),
			Duration: time.Since(start),
		})
		return nil, err
	}

	run = &TestRun{Result: res}
	defer h.logTest(run)
	rep, err := res.Report()
	if err != nil {
		h.log.Warn("Failed to parse test results", "path", res.Path, "err", err)
	} else {
		run.Report = rep
		h.log.Info("Test results", "summary", rep.Summary())
	}

	h.reporter.ReportTest(testID, run, res.Duration)
	if h.config.ShowResults {
		if err := h.formatter.FormatTest(run); err != nil {
			h.log.Warn("Failed to print test results", "err", err)
		}
	}
	return run, nil
}

func (h *Harness) logAnalysis(target string, analysis *Analysis) {
	outcome := analysis.Outcome
	summary := outcome.Reason
	if analysis.Report != nil {
		summary = analysis.Report.Summary()
	}
	h.logRun(&logging.Entry{
		RunID:      outcome.RunID,
		Command:    "analyze",
		Subject:    target,
		Status:     string(outcome.Status),
		Summary:    summary,
		Duration:   outcome.Duration,
		Transcript: outcome.Transcript,
	})
}

func (h *Harness) logTest(run *TestRun) {
	summary := "unreadable result file"
	if run.Report != nil {
		summary = run.Report.Summary()
	}
	h.logRun(&logging.Entry{
		Command:    "test",
		Subject:    run.Result.TestID,
		Status:     run.Label(),
		Summary:    summary,
		Duration:   run.Result.Duration,
		Transcript: run.Result.Transcript,
	})
}

// logRun writes entry to the run log. Failures are logged, never returned.
func (h *Harness) logRun(entry *logging.Entry) {
	if h.runLog == nil {
		return
	}
	if entry.RunID == "" {
		entry.RunID = uuid.New().String()
	}
	dir, err := h.runLog.LogRun(entry)
	if err != nil {
		h.log.Warn("Failed to write run log", "runID", entry.RunID, "err", err)
		return
	}
	h.log.Debug("Run log written", "dir", dir)
}

// removeFeed deletes the engine feed and its suffixed variant
func removeFeed(path string) {
	_ = os.Remove(path)
	_ = os.Remove(path + ".xml")
}

// splitList splits a comma-separated option value, dropping empty items
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
