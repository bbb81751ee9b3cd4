package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/capture"
)

func TestNewFileLogger(t *testing.T) {
	_, err := NewFileLogger("")
	require.Error(t, err)

	dir := filepath.Join(t.TempDir(), "logs")
	l, err := NewFileLogger(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(dir, AllLogsFilename), l.GetAllLogsFile())

	_, err = l.GetDirectoryForRunID("")
	require.Error(t, err)
	runDir, err := l.GetDirectoryForRunID("abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-abc"), runDir)
}

func TestFileLogger_LogRun(t *testing.T) {
	l, err := NewFileLogger(t.TempDir())
	require.NoError(t, err)

	runDir, err := l.LogRun(&Entry{
		RunID:    "1",
		Command:  "analyze",
		Subject:  "racer.Racer",
		Status:   "success",
		Summary:  "no errors",
		Duration: 1500 * time.Millisecond,
		Transcript: &capture.Transcript{
			Stdout:    []byte("JavaPathfinder core system\n"),
			Stderr:    []byte("warning\n"),
			Truncated: true,
		},
	})
	require.NoError(t, err)

	stdout, err := os.ReadFile(filepath.Join(runDir, StdoutFilename))
	require.NoError(t, err)
	assert.Equal(t, "JavaPathfinder core system\n", string(stdout))

	stderr, err := os.ReadFile(filepath.Join(runDir, StderrFilename))
	require.NoError(t, err)
	assert.Equal(t, "warning\n", string(stderr))

	summary, err := os.ReadFile(filepath.Join(runDir, SummaryFilename))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "subject: racer.Racer\n")
	assert.Contains(t, string(summary), "truncated: true\n")
	assert.Contains(t, string(summary), "duration: 1.5s\n")
}

func TestFileLogger_LogRunWithoutTranscript(t *testing.T) {
	l, err := NewFileLogger(t.TempDir())
	require.NoError(t, err)

	runDir, err := l.LogRun(&Entry{RunID: "r", Command: "test", Subject: "a.BTest", Status: "error"})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(runDir, StdoutFilename))
	assert.FileExists(t, filepath.Join(runDir, SummaryFilename))

	_, err = l.LogRun(nil)
	require.Error(t, err)
	_, err = l.LogRun(&Entry{})
	require.Error(t, err)
}

func TestFileLogger_AllLogsAppends(t *testing.T) {
	l, err := NewFileLogger(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"a", "b"} {
		_, err := l.LogRun(&Entry{RunID: id, Command: "analyze", Subject: "x.Y", Status: "success"})
		require.NoError(t, err)
	}

	data, err := os.ReadFile(l.GetAllLogsFile())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], " a analyze x.Y success ")
	assert.Contains(t, lines[1], " b analyze x.Y success ")
}
