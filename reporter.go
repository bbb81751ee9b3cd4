package harness

import (
	"time"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
)

// MetricsReporter is responsible for reporting metrics from results.
type MetricsReporter interface {
	ReportDiscovery(kind string, found int, err error)
	ReportAnalysis(analysis *Analysis)
	ReportTest(testID string, run *TestRun, duration time.Duration)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportDiscovery reports the outcome of a discovery.
func (r *DefaultMetricsReporter) ReportDiscovery(kind string, found int, err error) {
	metrics.RecordDiscovery(kind, found, err)
	metrics.RecordErrorDetails("discovery", err)
}

// ReportAnalysis reports an analysis outcome and, when a report was built,
// its error counts and peak memory.
func (r *DefaultMetricsReporter) ReportAnalysis(analysis *Analysis) {
	if analysis == nil || analysis.Outcome == nil {
		return
	}
	var reported, unique int
	var maxMemory int64
	if rep := analysis.Report; rep != nil {
		reported = rep.Errors.Total
		unique = rep.Unique()
		maxMemory = rep.Stats.MaxMemory.Value
	}
	metrics.RecordAnalysis(
		analysis.Outcome.RunID,
		analysis.Outcome.Status,
		reported,
		unique,
		maxMemory,
		analysis.Outcome.Duration,
	)
}

// ReportTest reports a unit test run. A nil run counts as an error.
func (r *DefaultMetricsReporter) ReportTest(testID string, run *TestRun, duration time.Duration) {
	metrics.RecordTestRun(testID, run.Label(), duration)
}
