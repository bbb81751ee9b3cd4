package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	harness "github.com/ethereum-optimism/infra/op-harness"
	"github.com/ethereum-optimism/infra/op-harness/discovery"
	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
)

// fakeJPF stands in for the JVM: it reads the report location from the
// rendered configuration (its last argument) and writes a feed there
const fakeJPF = `#!/bin/sh
for last; do :; done
feed=$(sed -n 's/^report\.xml\.file = //p' "$last")
cat > "$feed" <<'XML'
<jpfreport>
  <result findings="errors">
    <error id="1"><description>deadlock</description><details>d</details></error>
    <error id="2"><description>deadlock</description><details>d</details></error>
  </result>
  <statistics>
    <elapsed-time>00:00:01</elapsed-time>
    <visited-states>7</visited-states>
    <max-memory>2097152</max-memory>
  </statistics>
</jpfreport>
XML
`

// fakeJUnit stands in for the JVM running the Ant JUnit runner
const fakeJUnit = `#!/bin/sh
for a; do
  case "$a" in
    formatter=*XMLJUnitResultFormatter,*) path="${a#*,}" ;;
  esac
done
cat > "$path" <<'XML'
<testsuite name="racer.RacerTest" tests="1" failures="0" errors="0" time="0.010">
  <testcase classname="racer.RacerTest" name="testRace" time="0.010"/>
</testsuite>
XML
echo "Tests run: 1, Failures: 0, Errors: 0"
`

const failingJVM = `#!/bin/sh
echo "gov.nasa.jpf.JPFConfigException: no target class" >&2
exit 1
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "java")
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	app := newApp()
	var stdout, stderr bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"op-harness", "--log.level", "error"}, args...))
	return stdout.String(), stderr.String(), err
}

func TestDiscoverCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "listeners.json")

	_, stderr, err := runApp(t, "discover", "listeners", out)
	require.NoError(t, err)
	assert.Empty(t, stderr)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	classes, err := discovery.ReadClasses(data)
	require.NoError(t, err)
	assert.NotEmpty(t, classes)
	assert.Contains(t, string(data), `{"Name":"PreciseRaceDetector","Package":"gov.nasa.jpf.listener"}`)
}

func TestDiscoverCommand_ErrorsExitZero(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown kind", []string{"discover", "gadgets", filepath.Join(dir, "out.json")}, "unknown discovery kind"},
		{"missing arguments", []string{"discover", "listeners"}, "discover expects 2 arguments"},
		{"unwritable output", []string{"discover", "searches", filepath.Join(blocker, "out.json")}, "io error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, stderr, err := runApp(t, tc.args...)
			require.NoError(t, err)
			assert.Contains(t, stderr, tc.wantErr)
			assert.Equal(t, 1, strings.Count(stderr, "\n"), "diagnostic should be a single line")
		})
	}
	_, err := os.Stat(filepath.Join(dir, "out.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "racer.jpf")
	require.NoError(t, os.WriteFile(config, []byte("search.multiple_errors = true\n"), 0644))
	out := filepath.Join(dir, "report.json")

	_, stderr, err := runApp(t,
		"--java", writeScript(t, fakeJPF),
		"--workdir", filepath.Join(dir, "work"),
		"analyze", config, "racer.Racer", filepath.Join(dir, "classes"), out)
	require.NoError(t, err)
	assert.Empty(t, stderr)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total": 2`)
	assert.Contains(t, string(data), `"unit": "MB"`)

	entries, err := os.ReadDir(filepath.Join(dir, "work"))
	require.NoError(t, err)
	assert.Empty(t, entries, "run configuration and feed should be removed")
}

func TestAnalyzeCommand_FailuresExitZero(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "racer.jpf")
	require.NoError(t, os.WriteFile(config, []byte("target = other.Target\n"), 0644))
	valid := filepath.Join(dir, "valid.jpf")
	require.NoError(t, os.WriteFile(valid, []byte("search.multiple_errors = true\n"), 0644))
	out := filepath.Join(dir, "report.xml")

	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing config file", []string{"analyze", filepath.Join(dir, "nope.jpf"), "a.B", dir, out}, "config error"},
		{"reserved key", []string{"analyze", config, "a.B", dir, out}, "reserved keys may not be set: target"},
		{"engine config failure", []string{"--java", writeScript(t, failingJVM), "analyze", valid, "a.B", dir, out}, "analysis config_failure"},
		{"missing arguments", []string{"analyze", valid}, "analyze expects 4 arguments"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, stderr, err := runApp(t, tc.args...)
			require.NoError(t, err)
			assert.Contains(t, stderr, tc.wantErr)
		})
	}
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err), "no report should be written")
}

func TestTestCommand(t *testing.T) {
	dir := t.TempDir()

	stdout, stderr, err := runApp(t,
		"--java", writeScript(t, fakeJUnit),
		"test", "--stream", "racer.RacerTest", dir)
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Contains(t, stdout, `<testcase classname="racer.RacerTest" name="testRace"`)

	_, err = os.Stat(filepath.Join(dir, "RacerTest_junit.xml"))
	require.NoError(t, err)
}

func TestTestCommand_NoResultExitsZero(t *testing.T) {
	_, stderr, err := runApp(t,
		"--java", writeScript(t, "#!/bin/sh\necho boom >&2\nexit 3\n"),
		"test", "racer.RacerTest", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stderr, "no test results")
	assert.Contains(t, stderr, "boom")
}

func TestExitErrHandler(t *testing.T) {
	var code int
	exiter := cli.OsExiter
	cli.OsExiter = func(c int) { code = c }
	defer func() { cli.OsExiter = exiter }()

	errWriter := cli.ErrWriter
	cli.ErrWriter = &bytes.Buffer{}
	defer func() { cli.ErrWriter = errWriter }()

	app := newApp()
	app.ExitErrHandler(nil, harness.NewDefectError(errors.New("boom")))
	assert.Equal(t, exitcodes.Defect, code)

	code = -1
	app.ExitErrHandler(nil, cli.Exit("usage", 3))
	assert.Equal(t, 3, code)
}

func TestMetricsTextfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harness.prom")

	_, _, err := runApp(t, "--metrics.textfile", path, "discover", "searches", filepath.Join(dir, "searches.json"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "harness_discoveries_total")
}
