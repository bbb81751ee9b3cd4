package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ethereum-optimism/infra/op-harness/capture"
	"github.com/ethereum-optimism/infra/op-harness/options"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
)

const (
	DefaultJava  = "java"
	JPFMainClass = "gov.nasa.jpf.JPF"

	// Markers the engine prints when it gives up
	configExceptionMarker = "JPFConfigException"
	engineExceptionMarker = "JPFException"

	outputTailBytes = 64 * 1024
)

var _ Engine = (*Process)(nil)

// CmdBuilder creates the command for a run and a cleanup function
type CmdBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// ProcessConfig holds configuration for the subprocess engine
type ProcessConfig struct {
	// Java is the JVM binary
	Java string
	// Classpath is the JVM classpath that contains the engine itself
	Classpath string
	JVMArgs   []string
	// WorkDir holds the rendered run configurations
	WorkDir string
	// KeepFiles leaves rendered configurations in WorkDir
	KeepFiles  bool
	Log        log.Logger
	CmdBuilder CmdBuilder
}

// Process runs the engine as a JVM subprocess. Each run renders the
// configuration to <WorkDir>/<runID>.jpf and reads the XML report the
// engine writes to the configured report file.
type Process struct {
	java       string
	classpath  string
	jvmArgs    []string
	workDir    string
	keepFiles  bool
	log        log.Logger
	cmdBuilder CmdBuilder
}

// NewProcess creates a subprocess engine
func NewProcess(cfg ProcessConfig) (*Process, error) {
	if cfg.WorkDir == "" {
		return nil, errors.New("work directory is required")
	}
	if cfg.Java == "" {
		cfg.Java = DefaultJava
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
	return &Process{
		java:       cfg.Java,
		classpath:  cfg.Classpath,
		jvmArgs:    cfg.JVMArgs,
		workDir:    cfg.WorkDir,
		keepFiles:  cfg.KeepFiles,
		log:        cfg.Log,
		cmdBuilder: cfg.CmdBuilder,
	}, nil
}

// Run implements Engine
func (p *Process) Run(ctx context.Context, req Request) (*types.RawResult, error) {
	reportFile := req.Config.Get(options.KeyReportFile)
	if reportFile == "" {
		return nil, ConfigFailure("%s is not set", options.KeyReportFile)
	}

	configFile, err := p.writeConfig(req)
	if err != nil {
		return nil, err
	}
	if !p.keepFiles {
		defer os.Remove(configFile)
	}
	// a report left behind by an earlier run must not be mistaken for ours
	for _, path := range feedCandidates(reportFile) {
		_ = os.Remove(path)
	}

	cmd, cleanup := p.cmdBuilder(ctx, p.java, p.buildArgs(configFile)...)
	defer cleanup()

	stdoutTail := capture.NewTail(outputTailBytes)
	stderrTail := capture.NewTail(outputTailBytes)
	cmd.Stdout = io.MultiWriter(writerOrDiscard(req.Stdout), stdoutTail)
	cmd.Stderr = io.MultiWriter(writerOrDiscard(req.Stderr), stderrTail)

	p.log.Debug("Starting engine", "runID", req.RunID, "java", p.java, "config", configFile)
	runErr := cmd.Run()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("engine run interrupted: %w", ctxErr)
	}

	// the program under analysis writes to the same streams, so the
	// engine's exception markers only count when the run did not complete
	output := stdoutTail.String() + "\n" + stderrTail.String()
	if runErr != nil {
		exitErr := &exec.ExitError{}
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("failed to start engine: %w", runErr)
		}
		if reason, ok := findMarker(output, configExceptionMarker); ok {
			return nil, ConfigFailure("%s", reason)
		}
		reason, ok := findMarker(output, engineExceptionMarker)
		if !ok {
			reason = lastLine(stderrTail.String())
		}
		return nil, RuntimeFailure("engine exited with code %d: %s", exitErr.ExitCode(), reason)
	}

	res, err := readFeed(reportFile)
	if err != nil {
		if reason, ok := findMarker(output, configExceptionMarker); ok {
			return nil, ConfigFailure("%s", reason)
		}
		if reason, ok := findMarker(output, engineExceptionMarker); ok {
			return nil, RuntimeFailure("%s", reason)
		}
		return nil, err
	}
	return res, nil
}

func (p *Process) buildArgs(configFile string) []string {
	args := append([]string{}, p.jvmArgs...)
	if p.classpath != "" {
		args = append(args, "-cp", p.classpath)
	}
	return append(args, JPFMainClass, configFile)
}

func (p *Process) writeConfig(req Request) (string, error) {
	if err := os.MkdirAll(p.workDir, 0755); err != nil {
		return "", fmt.Errorf("creating work directory: %w", err)
	}
	path := filepath.Join(p.workDir, req.RunID+".jpf")
	if err := os.WriteFile(path, options.Render(req.Config), 0644); err != nil {
		return "", fmt.Errorf("writing run configuration: %w", err)
	}
	return path, nil
}

// feedCandidates lists where the engine may have written its report: the
// configured path, or that path with the publisher's .xml suffix
func feedCandidates(reportFile string) []string {
	if strings.HasSuffix(reportFile, ".xml") {
		return []string{reportFile}
	}
	return []string{reportFile, reportFile + ".xml"}
}

func readFeed(reportFile string) (*types.RawResult, error) {
	for _, path := range feedCandidates(reportFile) {
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, RuntimeFailure("opening engine report: %v", err)
		}
		res, err := ParseFeed(f)
		_ = f.Close()
		if err != nil {
			return nil, RuntimeFailure("%v", err)
		}
		return res, nil
	}
	return nil, RuntimeFailure("engine produced no report at %s", reportFile)
}

// findMarker returns the first output line mentioning marker
func findMarker(output, marker string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, marker) {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return "no output"
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
