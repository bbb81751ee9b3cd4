package flags

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-harness/capture"
	"github.com/ethereum-optimism/infra/op-harness/report"
	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "OP_HARNESS"

var (
	Java = &cli.StringFlag{
		Name:    "java",
		Value:   "java",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "JAVA"),
		Usage:   "Path to the JVM used to run the analysis engine and unit tests",
	}
	JVMArgs = &cli.StringSliceFlag{
		Name:    "jvm-arg",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "JVM_ARGS"),
		Usage:   "Extra JVM argument, repeatable (eg. '-Xmx2g')",
	}
	JPFClasspath = &cli.StringFlag{
		Name:    "jpf.classpath",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "JPF_CLASSPATH"),
		Usage:   "JVM classpath containing the analysis engine (eg. 'jpf-core/build/jpf.jar')",
	}
	JUnitClasspath = &cli.StringFlag{
		Name:    "junit.classpath",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "JUNIT_CLASSPATH"),
		Usage:   "JVM classpath containing JUnit, the Ant JUnit runner and the classes under test",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   filepath.Join(os.TempDir(), "op-harness"),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKDIR"),
		Usage:   "Directory for rendered run configurations",
	}
	KeepFiles = &cli.BoolFlag{
		Name:    "keep-files",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "KEEP_FILES"),
		Usage:   "Keep rendered run configurations after each run",
	}
	Manifest = &cli.StringFlag{
		Name:    "manifest",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MANIFEST"),
		Usage:   "Path to an extra type manifest merged over the built-in one (eg. 'manifest.yaml')",
	}
	CacheDir = &cli.StringFlag{
		Name:    "cache-dir",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CACHE_DIR"),
		Usage:   "Directory holding cached discovery results; empty disables the cache",
	}
	Capture = &cli.StringFlag{
		Name:    "capture",
		Value:   "buffer",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CAPTURE"),
		Usage:   "What to do with engine output: discard, buffer or passthrough",
		Action: func(_ *cli.Context, v string) error {
			_, err := capture.ParseMode(v)
			return err
		},
	}
	ReportFormat = &cli.StringFlag{
		Name:    "report.format",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT_FORMAT"),
		Usage:   "Report format, xml or json. Defaults to the output file's extension, then xml",
		Action: func(_ *cli.Context, v string) error {
			_, err := report.ParseFormat(v)
			return err
		},
	}
	ValidateExtensions = &cli.BoolFlag{
		Name:    "validate-extensions",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "VALIDATE_EXTENSIONS"),
		Usage:   "Reject listener and search.class values that are not discovered components",
	}
	Options = &cli.StringSliceFlag{
		Name:    "option",
		Aliases: []string{"o"},
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OPTIONS"),
		Usage:   "Engine option override as key=value, repeatable; wins over the config file",
	}
	ShowResults = &cli.BoolFlag{
		Name:    "show-results",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_RESULTS"),
		Usage:   "Print a results table after each command",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Keep the captured output and a summary of every analyze and test run below this directory",
	}
	MetricsTextfile = &cli.StringFlag{
		Name:    "metrics.textfile",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_TEXTFILE"),
		Usage:   "Write Prometheus metrics to this file on exit",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	Java,
	JVMArgs,
	JPFClasspath,
	JUnitClasspath,
	WorkDir,
	KeepFiles,
	Manifest,
	CacheDir,
	Capture,
	ReportFormat,
	ValidateExtensions,
	Options,
	ShowResults,
	LogDir,
	MetricsTextfile,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
