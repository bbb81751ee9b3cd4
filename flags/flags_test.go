package flags

import (
	"strings"
	"testing"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range optionalFlags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts between the many flags.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range Flags {
		name := flag.Names()[0]
		if _, ok := seenCLI[name]; ok {
			t.Errorf("duplicate flag %s", name)
			continue
		}
		seenCLI[name] = struct{}{}
	}
}

// TestBetaFlags test that all flags starting with "beta." have "BETA_" in the env var, and vice versa.
func TestBetaFlags(t *testing.T) {
	for _, flag := range Flags {
		envFlag, ok := flag.(interface {
			GetEnvVars() []string
		})
		if !ok || len(envFlag.GetEnvVars()) == 0 { // skip flags without env-var support
			continue
		}
		name := flag.Names()[0]
		envName := envFlag.GetEnvVars()[0]
		if strings.HasPrefix(name, "beta.") {
			require.Contains(t, envName, "BETA_", "%q flag must contain BETA in env var to match \"beta.\" flag name", name)
		}
		if strings.Contains(envName, "BETA_") {
			require.True(t, strings.HasPrefix(name, "beta."), "%q flag must start with \"beta.\" in flag name to match \"BETA_\" env var", name)
		}
	}
}

func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")

			switch flagName {
			case "jvm-arg":
				require.Equal(t, "OP_HARNESS_JVM_ARGS", envFlags[0])
			case "option":
				require.Equal(t, "OP_HARNESS_OPTIONS", envFlags[0])
			default:
				expectedEnvVar := opservice.FlagNameToEnvVarName(flagName, EnvVarPrefix)
				require.Equal(t, expectedEnvVar, envFlags[0])
			}
		})
	}
}

func TestFlagValidation(t *testing.T) {
	testCases := []struct {
		name        string
		flag        cli.Flag
		args        []string
		shouldError bool
	}{
		{"valid capture", Capture, []string{"app", "--capture", "discard"}, false},
		{"capture is case-insensitive", Capture, []string{"app", "--capture", "Passthrough"}, false},
		{"invalid capture", Capture, []string{"app", "--capture", "loud"}, true},
		{"capture default", Capture, []string{"app"}, false},
		{"valid format", ReportFormat, []string{"app", "--report.format", "json"}, false},
		{"invalid format", ReportFormat, []string{"app", "--report.format", "html"}, true},
		{"format default", ReportFormat, []string{"app"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app := &cli.App{
				Flags: []cli.Flag{tc.flag},
				Action: func(ctx *cli.Context) error {
					return nil
				},
			}
			err := app.Run(tc.args)
			if tc.shouldError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOptionsFlag(t *testing.T) {
	app := &cli.App{
		Flags: []cli.Flag{Options},
		Action: func(ctx *cli.Context) error {
			assert.Equal(t, []string{"vm.por=false", "search.depth_limit=10"}, ctx.StringSlice(Options.Name))
			return nil
		},
	}
	require.NoError(t, app.Run([]string{"app", "-o", "vm.por=false", "--option", "search.depth_limit=10"}))
}

func TestCheckRequired(t *testing.T) {
	app := &cli.App{
		Flags: Flags,
		Action: func(ctx *cli.Context) error {
			return CheckRequired(ctx)
		},
	}
	require.NoError(t, app.Run([]string{"app"}))
}
