package harness

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-harness/capture"
	"github.com/ethereum-optimism/infra/op-harness/engine"
	"github.com/ethereum-optimism/infra/op-harness/flags"
	"github.com/ethereum-optimism/infra/op-harness/junit"
	"github.com/ethereum-optimism/infra/op-harness/options"
	"github.com/ethereum-optimism/infra/op-harness/report"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	Java               string
	JVMArgs            []string
	JPFClasspath       string        // Classpath of the analysis engine
	JUnitClasspath     string        // Classpath of JUnit, the Ant runner and the classes under test
	WorkDir            string        // Directory for rendered run configurations and engine feeds
	KeepFiles          bool          // Keep rendered configurations and feeds after a run
	ManifestFile       string        // Extra type manifest merged over the built-in one
	CacheDir           string        // Discovery cache directory, empty disables it
	CaptureMode        capture.Mode  // What happens to engine and test runner output
	ReportFormat       report.Format // Empty picks the format from the output file extension
	ValidateExtensions bool          // Check listener and search.class against discovered classes
	Overrides          options.Layer // Runtime options from --option, winning over the config file
	ShowResults        bool
	LogDir             string // Per-run transcripts and summaries, empty disables them
	MetricsTextfile    string
	Log                log.Logger

	// Engine replaces the JPF subprocess engine when set
	Engine engine.Engine
	// TestCmdBuilder replaces the command builder of the JUnit runner when set
	TestCmdBuilder junit.CmdBuilder
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	mode, err := capture.ParseMode(ctx.String(flags.Capture.Name))
	if err != nil {
		return nil, err
	}

	var format report.Format
	if v := ctx.String(flags.ReportFormat.Name); v != "" {
		format, err = report.ParseFormat(v)
		if err != nil {
			return nil, err
		}
	}

	overrides, err := ParseOverrides(ctx.StringSlice(flags.Options.Name))
	if err != nil {
		return nil, err
	}

	workDir, err := absPath(ctx.String(flags.WorkDir.Name), "work directory")
	if err != nil {
		return nil, err
	}
	manifest, err := absPath(ctx.String(flags.Manifest.Name), "manifest")
	if err != nil {
		return nil, err
	}
	cacheDir, err := absPath(ctx.String(flags.CacheDir.Name), "cache directory")
	if err != nil {
		return nil, err
	}
	logDir, err := absPath(ctx.String(flags.LogDir.Name), "log directory")
	if err != nil {
		return nil, err
	}

	return &Config{
		Java:               ctx.String(flags.Java.Name),
		JVMArgs:            ctx.StringSlice(flags.JVMArgs.Name),
		JPFClasspath:       ctx.String(flags.JPFClasspath.Name),
		JUnitClasspath:     ctx.String(flags.JUnitClasspath.Name),
		WorkDir:            workDir,
		KeepFiles:          ctx.Bool(flags.KeepFiles.Name),
		ManifestFile:       manifest,
		CacheDir:           cacheDir,
		CaptureMode:        mode,
		ReportFormat:       format,
		ValidateExtensions: ctx.Bool(flags.ValidateExtensions.Name),
		Overrides:          overrides,
		ShowResults:        ctx.Bool(flags.ShowResults.Name),
		LogDir:             logDir,
		MetricsTextfile:    ctx.String(flags.MetricsTextfile.Name),
		Log:                log,
	}, nil
}

// ParseOverrides parses key=value option overrides, keeping their order
func ParseOverrides(values []string) (options.Layer, error) {
	layer := make(options.Layer, 0, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, &options.ConfigError{Err: fmt.Errorf("invalid option %q, expected key=value", v)}
		}
		layer = append(layer, options.Option{Key: key, Value: strings.TrimSpace(value)})
	}
	return layer, nil
}

// absPath resolves p, leaving an empty path empty
func absPath(p string, what string) (string, error) {
	if p == "" {
		return "", nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s '%s': %w", what, p, err)
	}
	return abs, nil
}
