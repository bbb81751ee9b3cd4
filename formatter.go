package harness

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// ResultFormatter is responsible for formatting and displaying results.
type ResultFormatter interface {
	FormatDiscovery(kind string, classes []types.Class) error
	FormatAnalysis(analysis *Analysis) error
	FormatTest(run *TestRun) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleResultFormatter{
		logger: logger,
		out:    out,
	}
}

// FormatDiscovery prints the discovered classes of a kind.
func (f *ConsoleResultFormatter) FormatDiscovery(kind string, classes []types.Class) error {
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Available %s", kind))
	t.AppendHeader(table.Row{"Package", "Name"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Package", AutoMerge: true},
	})
	for _, c := range classes {
		t.AppendRow(table.Row{c.Package, c.Name})
	}
	t.AppendFooter(table.Row{"TOTAL", len(classes)})
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

// FormatAnalysis prints the statistics and unique errors of an analysis.
func (f *ConsoleResultFormatter) FormatAnalysis(analysis *Analysis) error {
	if analysis == nil || analysis.Outcome == nil {
		return errors.New("no analysis to format")
	}
	f.logger.Info("Printing results...")
	outcome := analysis.Outcome

	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Analysis Results (%s)", formatDuration(outcome.Duration)))
	t.AppendHeader(table.Row{"Type", "ID", "Description", "Threads", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", Align: text.AlignRight},
		{Name: "Description", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Threads", Align: text.AlignRight},
	})

	rep := analysis.Report
	if rep == nil {
		t.AppendRow(table.Row{"Run", outcome.RunID, outcome.Reason, "-", getOutcomeString(outcome.Status)})
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
		t.Render()
		return nil
	}

	stats := rep.Stats
	t.AppendRow(table.Row{"Run", outcome.RunID, fmt.Sprintf("%d new, %d visited, %d backtracked, %d end states",
		stats.NewStates, stats.VisitedStates, stats.Backtracked, stats.EndStates), "-", getOutcomeString(outcome.Status)})
	t.AppendRow(table.Row{"Run", "", fmt.Sprintf("%d %s peak memory, elapsed %s",
		stats.MaxMemory.Value, stats.MaxMemory.Unit, stats.ElapsedTime), "-", ""})
	t.AppendSeparator()

	for i, e := range rep.Errors.List {
		prefix := "├─"
		if i == len(rep.Errors.List)-1 {
			prefix = "└─"
		}
		t.AppendRow(table.Row{"Error", fmt.Sprintf("%s %d", prefix, e.ID), e.Description, len(e.Threads), "✗ error"})
	}

	if rep.Success() {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	}
	t.AppendFooter(table.Row{"TOTAL", "", fmt.Sprintf("%d reported", rep.Errors.Total), rep.Unique(), ""})
	t.Render()

	_, err := fmt.Fprintln(f.out, rep.Summary())
	return err
}

// FormatTest prints the test cases of a unit test run.
func (f *ConsoleResultFormatter) FormatTest(run *TestRun) error {
	if run == nil || run.Result == nil {
		return errors.New("no test run to format")
	}
	f.logger.Info("Printing results...")

	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Unit Test Results %s (%s)", run.Result.TestID, formatDuration(run.Result.Duration)))
	t.AppendHeader(table.Row{"Test", "Duration", "Status", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	rep := run.Report
	if rep == nil {
		t.AppendRow(table.Row{run.Result.TestID, "-", getTestString(run.Label()), "unreadable result file"})
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
		t.Render()
		return nil
	}

	for _, tc := range rep.TestCases {
		status := "pass"
		if !tc.Passed() {
			status = "fail"
		}
		t.AppendRow(table.Row{tc.Name, formatSeconds(tc.Time), getTestString(status), tc.Reason()})
	}
	t.AppendFooter(table.Row{
		"TOTAL",
		formatSeconds(rep.Time),
		fmt.Sprintf("%d/%d", rep.Tests-rep.Failures-rep.Errors, rep.Tests),
		"",
	})
	if rep.Success() {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.Render()

	_, err := fmt.Fprintln(f.out, rep.Summary())
	return err
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatSeconds(s float64) string {
	return formatDuration(time.Duration(s * float64(time.Second)))
}
