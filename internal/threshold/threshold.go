// Package threshold evaluates pass/fail assertions against a finished
// pool run so CI jobs can gate on load results.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/talonlabs/talonfire/internal/harness"
	"github.com/talonlabs/talonfire/internal/metrics"
)

// Threshold represents one assertion over a run's summary metrics.
type Threshold struct {
	Metric   string  // e.g., "success_rate", "failed"
	Operator string  // e.g., "<", ">=", "=="
	Value    float64 // The value to compare against
	Raw      string  // Original assertion string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against a run's results.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the run summary and stats.
func (e *Evaluator) Evaluate(summary harness.Summary, stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, summary, stats))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, summary harness.Summary, stats metrics.Stats) Result {
	actual, err := metricValue(t.Metric, summary, stats)
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compare(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var assertPattern = regexp.MustCompile(`^([a-z_]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses an assertion string into a Threshold.
// Supported formats:
//   - "success_rate >= 100"      (percentage of successful calls)
//   - "failed == 0"              (count of failed calls)
//   - "requests > 0"             (total calls issued)
//   - "avg_response_ms < 500"    (mean latency in ms)
//   - "max_response_ms < 2000"   (max latency in ms)
//   - "requests_per_sec > 10"    (throughput)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty assertion string")
	}

	matches := assertPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid assertion format: %q (expected: metric operator value, e.g., 'success_rate >= 100')", s)
	}

	metric := matches[1]
	operator := matches[2]
	valueStr := matches[3]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid assertion value %q: %v", valueStr, err)
	}

	if !isValidMetric(metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: success_rate, failed, requests, avg_response_ms, min_response_ms, max_response_ms, requests_per_sec)", metric)
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==, !=)", operator)
	}

	return Threshold{
		Metric:   metric,
		Operator: operator,
		Value:    value,
		Raw:      s,
	}, nil
}

// ParseMultiple parses multiple assertion strings.
func ParseMultiple(asserts []string) ([]Threshold, error) {
	if len(asserts) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(asserts))
	var errs []string

	for i, s := range asserts {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("assert[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("assertion parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

func isValidMetric(metric string) bool {
	switch metric {
	case "success_rate", "failed", "requests",
		"avg_response_ms", "min_response_ms", "max_response_ms",
		"requests_per_sec":
		return true
	}
	return false
}

func isValidOperator(operator string) bool {
	switch operator {
	case "<", "<=", ">", ">=", "==", "!=":
		return true
	}
	return false
}

func metricValue(metric string, summary harness.Summary, stats metrics.Stats) (float64, error) {
	switch metric {
	case "success_rate":
		return summary.SuccessRate, nil
	case "failed":
		return float64(summary.TotalFailed), nil
	case "requests":
		return float64(summary.TotalRequests), nil
	case "avg_response_ms":
		return stats.MeanLatencyMs, nil
	case "min_response_ms":
		return stats.MinLatencyMs, nil
	case "max_response_ms":
		return stats.MaxLatencyMs, nil
	case "requests_per_sec":
		return stats.RequestsPerSec, nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", metric)
	}
}

func compare(actual float64, operator string, expected float64) bool {
	// Floating point equality uses a small epsilon.
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	case "!=":
		return math.Abs(actual-expected) >= epsilon
	default:
		return false
	}
}
