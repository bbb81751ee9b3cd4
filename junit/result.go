package junit

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/capture"
)

// Result is a finished test run. The result file stays on disk; callers
// stream it rather than holding it in memory.
type Result struct {
	Path       string
	TestID     string
	ExitCode   int
	Duration   time.Duration
	Transcript *capture.Transcript
}

// Open opens the result file
func (r *Result) Open() (io.ReadCloser, error) {
	return os.Open(r.Path)
}

// Bytes reads the whole result file
func (r *Result) Bytes() ([]byte, error) {
	return os.ReadFile(r.Path)
}

// WriteTo streams the result file to w
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	f, err := r.Open()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

// Report parses the result file
func (r *Result) Report() (*Report, error) {
	f, err := r.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseReport(f)
}

// Report is the test suite summary from the XML result formatter
type Report struct {
	Name      string     `xml:"name,attr"`
	Tests     int        `xml:"tests,attr"`
	Failures  int        `xml:"failures,attr"`
	Errors    int        `xml:"errors,attr"`
	Skipped   int        `xml:"skipped,attr"`
	Time      float64    `xml:"time,attr"`
	TestCases []TestCase `xml:"testcase"`
}

// TestCase is one test method; Failure or Error is set when it did not pass
type TestCase struct {
	ClassName string   `xml:"classname,attr"`
	Name      string   `xml:"name,attr"`
	Time      float64  `xml:"time,attr"`
	Failure   *Problem `xml:"failure"`
	Error     *Problem `xml:"error"`
}

// Problem describes why a test case did not pass
type Problem struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Trace   string `xml:",chardata"`
}

// ParseReport parses a test suite document. Test cases are sorted by name.
func ParseReport(r io.Reader) (*Report, error) {
	var rep Report
	if err := xml.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("parsing test results: %w", err)
	}
	sort.SliceStable(rep.TestCases, func(i, j int) bool {
		return rep.TestCases[i].Name < rep.TestCases[j].Name
	})
	return &rep, nil
}

// Success reports whether every test passed
func (r *Report) Success() bool {
	return r.Errors == 0 && r.Failures == 0
}

// Failed returns the test cases that failed or errored
func (r *Report) Failed() []TestCase {
	var failed []TestCase
	for _, tc := range r.TestCases {
		if !tc.Passed() {
			failed = append(failed, tc)
		}
	}
	return failed
}

// Passed reports whether the test case passed
func (tc TestCase) Passed() bool {
	return tc.Failure == nil && tc.Error == nil
}

// Reason is the failure or error message, empty when the test passed
func (tc TestCase) Reason() string {
	p := tc.Failure
	if p == nil {
		p = tc.Error
	}
	if p == nil {
		return ""
	}
	if p.Message != "" {
		return fmt.Sprintf("%s: %s", p.Type, p.Message)
	}
	return strings.TrimSpace(p.Type)
}

// Summary is a one-line description of the suite
func (r *Report) Summary() string {
	return fmt.Sprintf("%s: %d tests, %d failures, %d errors in %.3fs", r.Name, r.Tests, r.Failures, r.Errors, r.Time)
}
