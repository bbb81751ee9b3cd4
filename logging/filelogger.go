// Package logging keeps per-run log files of harness commands: the captured
// engine or test runner output and a short summary of each run.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/capture"
	"github.com/ethereum-optimism/infra/op-harness/fileutil"
)

const (
	RunDirectoryPrefix = "run-" // Standardized prefix for run directories
	AllLogsFilename    = "all.log"
	SummaryFilename    = "summary.log"
	StdoutFilename     = "stdout.log"
	StderrFilename     = "stderr.log"
)

// Entry describes one finished run
type Entry struct {
	RunID      string
	Command    string // analyze or test
	Subject    string // analysis target or test identifier
	Status     string
	Summary    string
	Duration   time.Duration
	Transcript *capture.Transcript // nil when nothing was captured
}

// ResultSink is an interface for different ways of consuming run entries
type ResultSink interface {
	// Consume processes a single entry; runDir exists when it is called
	Consume(entry *Entry, runDir string) error
}

// FileLogger handles writing run output to files
type FileLogger struct {
	baseDir string
	sinks   []ResultSink
	mu      sync.Mutex
}

// NewFileLogger creates a FileLogger writing below baseDir
func NewFileLogger(baseDir string) (*FileLogger, error) {
	if baseDir == "" {
		return nil, errors.New("baseDir cannot be empty")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", baseDir, err)
	}
	return &FileLogger{
		baseDir: baseDir,
		sinks: []ResultSink{
			&TranscriptSink{},
			&SummarySink{},
			&AllLogsSink{path: filepath.Join(baseDir, AllLogsFilename)},
		},
	}, nil
}

// GetDirectoryForRunID returns the directory holding the files of a run
func (l *FileLogger) GetDirectoryForRunID(runID string) (string, error) {
	if runID == "" {
		return "", errors.New("runID cannot be empty")
	}
	return filepath.Join(l.baseDir, RunDirectoryPrefix+runID), nil
}

// GetAllLogsFile returns the file every run appends a line to
func (l *FileLogger) GetAllLogsFile() string {
	return filepath.Join(l.baseDir, AllLogsFilename)
}

// LogRun feeds entry to every sink and returns the run directory
func (l *FileLogger) LogRun(entry *Entry) (string, error) {
	if entry == nil {
		return "", errors.New("entry cannot be nil")
	}
	runDir, err := l.GetDirectoryForRunID(entry.RunID)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", runDir, err)
	}
	for _, sink := range l.sinks {
		if err := sink.Consume(entry, runDir); err != nil {
			return "", fmt.Errorf("error in sink: %w", err)
		}
	}
	return runDir, nil
}

// TranscriptSink writes the captured stdout and stderr of a run
type TranscriptSink struct{}

func (s *TranscriptSink) Consume(entry *Entry, runDir string) error {
	if entry.Transcript == nil {
		return nil
	}
	if err := writeFile(filepath.Join(runDir, StdoutFilename), entry.Transcript.Stdout); err != nil {
		return err
	}
	return writeFile(filepath.Join(runDir, StderrFilename), entry.Transcript.Stderr)
}

// SummarySink writes the summary file of a run
type SummarySink struct{}

func (s *SummarySink) Consume(entry *Entry, runDir string) error {
	truncated := entry.Transcript != nil && entry.Transcript.Truncated
	return fileutil.WriteAtomic(filepath.Join(runDir, SummaryFilename), func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "run: %s\ncommand: %s\nsubject: %s\nstatus: %s\nduration: %s\ntruncated: %t\nsummary: %s\n",
			entry.RunID, entry.Command, entry.Subject, entry.Status, entry.Duration, truncated, entry.Summary)
		return err
	})
}

// AllLogsSink appends one line per run to a shared file
type AllLogsSink struct {
	path string
}

func (s *AllLogsSink) Consume(entry *Entry, _ string) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	_, err = fmt.Fprintf(f, "%s %s %s %s %s (%s)\n",
		time.Now().UTC().Format(time.RFC3339), entry.RunID, entry.Command, entry.Subject, entry.Status,
		entry.Duration.Round(time.Millisecond))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func writeFile(path string, data []byte) error {
	return fileutil.WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
