package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	harness "github.com/ethereum-optimism/infra/op-harness"
	"github.com/ethereum-optimism/infra/op-harness/capture"
	"github.com/ethereum-optimism/infra/op-harness/discovery"
	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
	"github.com/ethereum-optimism/infra/op-harness/flags"
	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

var streamFlag = &cli.BoolFlag{
	Name:  "stream",
	Usage: "Write the JUnit XML result to stdout after the run",
}

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-harness"
	app.Usage = "Model-checking and unit test harness"
	app.Description = "op-harness runs JPF analyses and JUnit tests for an assessment orchestrator and writes structured results"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	// option values such as listener lists contain commas
	app.DisableSliceFlagSeparator = true
	app.Commands = []*cli.Command{
		{
			Name:      "discover",
			Usage:     fmt.Sprintf("List available engine extensions of a kind (%v) as JSON", discovery.KindNames()),
			ArgsUsage: "<kind> <outputFile>",
			Action:    discoverAction,
		},
		{
			Name:      "analyze",
			Usage:     "Run the analysis engine and write a structured report",
			ArgsUsage: "<configFile> <target> <targetLocation> <outputFile>",
			Action:    analyzeAction,
		},
		{
			Name:      "test",
			Usage:     "Run the unit tests of a test class",
			ArgsUsage: "<testIdentifier> <dataLocation>",
			Flags:     []cli.Flag{streamFlag},
			Action:    testAction,
		},
	}
	app.After = writeMetrics
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Commands report every expected failure themselves, so
			// anything left is a defect
			cli.HandleExitCoder(cli.Exit(harness.Diagnostic(err), exitcodes.Defect))
		}
	}
	return app
}

// setup builds the logger, configuration and harness of a command
func setup(c *cli.Context) (*harness.Harness, error) {
	logCfg := oplog.ReadCLIConfig(c)
	log := oplog.NewLogger(oplog.AppOut(c), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := harness.NewConfig(c, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	cfg.Log.Debug("Config", "config", cfg)

	h, err := harness.New(cfg, &capture.Channels{Out: c.App.Writer, Err: c.App.ErrWriter})
	if err != nil {
		return nil, fmt.Errorf("failed to create harness: %w", err)
	}
	return h, nil
}

// args returns the n positional arguments of the command
func args(c *cli.Context, n int) ([]string, error) {
	if c.NArg() != n {
		return nil, fmt.Errorf("%s expects %d arguments: %s", c.Command.Name, n, c.Command.ArgsUsage)
	}
	return c.Args().Slice(), nil
}

// report prints err as a single line on the error channel
func report(c *cli.Context, err error) {
	fmt.Fprintln(c.App.ErrWriter, harness.Diagnostic(err))
}

// discoverAction always exits successfully, reporting any error
func discoverAction(c *cli.Context) error {
	a, err := args(c, 2)
	if err != nil {
		report(c, err)
		return nil
	}
	h, err := setup(c)
	if err != nil {
		report(c, err)
		return nil
	}
	if _, err := h.Discover(c.Context, a[0], a[1]); err != nil {
		report(c, err)
	}
	return nil
}

// analyzeAction reports engine, configuration and output failures and
// returns only defects
func analyzeAction(c *cli.Context) error {
	a, err := args(c, 4)
	if err != nil {
		report(c, err)
		return nil
	}
	h, err := setup(c)
	if err != nil {
		if err = harness.Classify(err); harness.IsDefectError(err) {
			return err
		}
		report(c, err)
		return nil
	}

	analysis, err := h.Analyze(c.Context, a[0], a[1], a[2], a[3])
	if err != nil {
		if harness.IsDefectError(err) {
			return err
		}
		report(c, err)
		return nil
	}
	if !analysis.Outcome.Succeeded() {
		report(c, fmt.Errorf("analysis %s (%s): %s", analysis.Outcome.Status, analysis.Outcome.RunID, analysis.Outcome.Reason))
	}
	return nil
}

// testAction always exits successfully, reporting any error
func testAction(c *cli.Context) error {
	a, err := args(c, 2)
	if err != nil {
		report(c, err)
		return nil
	}
	h, err := setup(c)
	if err != nil {
		report(c, err)
		return nil
	}
	run, err := h.Test(c.Context, a[0], a[1])
	if err != nil {
		report(c, err)
		return nil
	}
	if c.Bool(streamFlag.Name) {
		if _, err := run.Result.WriteTo(c.App.Writer); err != nil {
			report(c, err)
		}
	}
	return nil
}

// writeMetrics exports metrics when a textfile is configured
func writeMetrics(c *cli.Context) error {
	path := c.String(flags.MetricsTextfile.Name)
	if path == "" {
		return nil
	}
	if err := metrics.WriteTextfile(path); err != nil {
		fmt.Fprintln(c.App.ErrWriter, harness.Diagnostic(err))
	}
	return nil
}
