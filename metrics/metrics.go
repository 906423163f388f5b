package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

const (
	MetricsNamespace = "tapforge"
)

var (
	Debug                bool = false
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	caseResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "case_results_total",
		Help:      "Count of test case outcomes",
	}, []string{
		"run_id",
		"suite",
		"case",
		"result",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of harness runs",
	}, []string{
		"run_id",
		"result",
	})

	runCasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_cases_total",
		Help:      "Total number of cases in a run",
	}, []string{
		"run_id",
	})

	runCasesPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_cases_passed",
		Help:      "Number of passed cases in a run",
	}, []string{
		"run_id",
	})

	runCasesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_cases_failed",
		Help:      "Number of failed cases in a run",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of harness runs",
	}, []string{
		"run_id",
	})

	stabilityErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "stability_errors_total",
		Help:      "Errors recorded during stability sessions",
	}, []string{
		"session",
		"type",
	})

	stabilityRecoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "stability_recoveries_total",
		Help:      "Recovery attempts during stability sessions",
	}, []string{
		"session",
		"action",
		"success",
	})

	benchmarkSamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "benchmark_samples_total",
		Help:      "Samples collected by performance benchmarks",
	}, []string{
		"benchmark",
		"metric",
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
		logrus.WithField("error", error).Debug("metric inc errors_total")
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

// RecordCaseResult records a single case outcome.
func RecordCaseResult(runID, suite, caseName, result string) {
	caseResultsTotal.WithLabelValues(runID, suite, caseName, result).Inc()
}

// RecordRun records the consolidated outcome of one harness run.
func RecordRun(runID, result string, total, passed, failed int, duration time.Duration) {
	runResults.WithLabelValues(runID, result).Set(1)
	runCasesTotal.WithLabelValues(runID).Add(float64(total))
	runCasesPassed.WithLabelValues(runID).Add(float64(passed))
	runCasesFailed.WithLabelValues(runID).Add(float64(failed))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

// RecordStabilityError records an error observed by a stability session.
func RecordStabilityError(session, errType string) {
	stabilityErrorsTotal.WithLabelValues(session, errType).Inc()
}

// RecordStabilityRecovery records a recovery attempt and its verdict.
func RecordStabilityRecovery(session, action string, success bool) {
	stabilityRecoveriesTotal.WithLabelValues(session, action, fmt.Sprintf("%t", success)).Inc()
}

// RecordBenchmarkSample counts a collected benchmark sample.
func RecordBenchmarkSample(benchmark, metric string) {
	benchmarkSamplesTotal.WithLabelValues(benchmark, metric).Inc()
}
