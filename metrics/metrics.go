package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/engine"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "harness"
)

var (
	Debug                bool = true
	validOutcomes             = []engine.Status{engine.StatusSuccess, engine.StatusConfigFailure, engine.StatusEngineFailure}
	validTestResults          = []string{"pass", "fail", "error"}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	discoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "discoveries_total",
		Help:      "Count of component discoveries",
	}, []string{
		"kind",
		"result",
	})

	discoveredClasses = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "discovered_classes",
		Help:      "Number of classes found by the last discovery",
	}, []string{
		"kind",
	})

	analysisRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "analysis_runs_total",
		Help:      "Count of analysis runs by outcome",
	}, []string{
		"outcome",
	})

	analysisErrors = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "analysis_errors",
		Help:      "Errors found by an analysis run, as reported and after deduplication",
	}, []string{
		"run_id",
		"count",
	})

	analysisMaxMemory = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "analysis_max_memory_mb",
		Help:      "Peak memory of an analysis run in MB",
	}, []string{
		"run_id",
	})

	analysisDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "analysis_duration_seconds",
		Help:      "Duration of an analysis run",
	}, []string{
		"run_id",
	})

	testRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_runs_total",
		Help:      "Count of unit test runs by result",
	}, []string{
		"result",
	})

	testRunDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "test_run_duration_seconds",
		Help:      "Duration of a unit test run",
	}, []string{
		"test",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordDiscovery(kind string, found int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	if Debug {
		log.Debug("metric inc",
			"m", "discoveries_total",
			"kind", kind,
			"result", result,
			"found", found)
	}
	discoveriesTotal.WithLabelValues(kind, result).Inc()
	if err == nil {
		discoveredClasses.WithLabelValues(kind).Set(float64(found))
	}
}

func RecordAnalysis(
	runID string,
	outcome engine.Status,
	reported int,
	unique int,
	maxMemoryMB int64,
	duration time.Duration,
) {
	if !slices.Contains(validOutcomes, outcome) {
		log.Error("RecordAnalysis - invalid outcome", "outcome", outcome)
		return
	}
	analysisRunsTotal.WithLabelValues(string(outcome)).Inc()
	analysisDuration.WithLabelValues(runID).Set(duration.Seconds())
	if outcome != engine.StatusSuccess {
		return
	}
	analysisErrors.WithLabelValues(runID, "reported").Set(float64(reported))
	analysisErrors.WithLabelValues(runID, "unique").Set(float64(unique))
	analysisMaxMemory.WithLabelValues(runID).Set(float64(maxMemoryMB))
}

func RecordTestRun(testID string, result string, duration time.Duration) {
	if !slices.Contains(validTestResults, result) {
		log.Error("RecordTestRun - invalid result", "result", result)
		return
	}
	testRunsTotal.WithLabelValues(result).Inc()
	testRunDuration.WithLabelValues(testID).Set(duration.Seconds())
}

// WriteTextfile exports every registered metric in the Prometheus text
// format, for collection by a node exporter textfile collector
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
