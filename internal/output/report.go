// Package output renders the harness's human-readable and JSON
// reports.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/talonlabs/talonfire/internal/harness"
	"github.com/talonlabs/talonfire/internal/metrics"
	"github.com/talonlabs/talonfire/internal/session"
	"github.com/talonlabs/talonfire/internal/transport"
)

// Report is the full record of one pool run.
type Report struct {
	RunID       string              `json:"run_id"`
	Endpoint    string              `json:"endpoint"`
	Waves       int                 `json:"waves"`
	Concurrency int                 `json:"concurrency"`
	Summary     harness.Summary     `json:"summary"`
	Stats       metrics.Stats       `json:"stats"`
	Wire        transport.WireStats `json:"wire"`
}

// PrintRunHeader announces a pool run.
func PrintRunHeader(w io.Writer) {
	fmt.Fprintln(w, "Testing Interpreter Pool with Concurrent Requests")
	fmt.Fprintln(w, "================================================")
	fmt.Fprintln(w)
}

// PrintWaveHeader announces one wave before its calls launch.
func PrintWaveHeader(w io.Writer, wave, concurrency int) {
	fmt.Fprintf(w, "\nWave %d - Sending %d concurrent requests...\n", wave+1, concurrency)
}

// PrintCallOutcome prints one completed call as its own line, in the
// order calls actually complete.
func PrintCallOutcome(w io.Writer, outcome session.Outcome) {
	if outcome.Success {
		fmt.Fprintf(w, "  ✓ Script %d: %s\n", outcome.ID, strings.TrimSpace(outcome.Output))
	} else {
		fmt.Fprintf(w, "  ✗ Script %d: %s\n", outcome.ID, outcome.Err)
	}
}

// PrintWaveSummary prints a finished wave's counts and the average
// response time over its successful calls.
func PrintWaveSummary(w io.Writer, result harness.WaveResult, concurrency int) {
	var success, failed int
	for _, outcome := range result.Outcomes {
		if outcome.Success {
			success++
		} else {
			failed++
		}
	}

	fmt.Fprintf(w, "\nWave %d Summary:\n", result.Wave+1)
	fmt.Fprintf(w, "  Success: %d/%d\n", success, concurrency)
	fmt.Fprintf(w, "  Failed: %d/%d\n", failed, concurrency)
	if avg, ok := harness.AverageResponse(result.Outcomes); ok {
		fmt.Fprintf(w, "  Average response time: %.3fs\n", avg)
	}
}

// PrintReport outputs the human-readable overall summary, including
// the pool-health acceptance line.
func PrintReport(w io.Writer, report Report) {
	fmt.Fprintln(w, "\n================================================")
	fmt.Fprintln(w, "Overall Test Summary:")
	fmt.Fprintf(w, "  Total requests: %d\n", report.Summary.TotalRequests)
	fmt.Fprintf(w, "  Total success: %d\n", report.Summary.TotalSuccess)
	fmt.Fprintf(w, "  Total failed: %d\n", report.Summary.TotalFailed)
	fmt.Fprintf(w, "  Success rate: %.1f%%\n", report.Summary.SuccessRate)

	stats := report.Stats
	if stats.Total > 0 {
		fmt.Fprintln(w, "\nLatency:")
		fmt.Fprintf(w, "  Min:  %.2fms\n", stats.MinLatencyMs)
		fmt.Fprintf(w, "  Mean: %.2fms\n", stats.MeanLatencyMs)
		fmt.Fprintf(w, "  Max:  %.2fms\n", stats.MaxLatencyMs)
	}
	if report.Wire.Requests > 0 {
		fmt.Fprintln(w, "\nWire:")
		fmt.Fprintf(w, "  Requests:       %d\n", report.Wire.Requests)
		fmt.Fprintf(w, "  Bytes sent:     %d\n", report.Wire.BytesSent)
		fmt.Fprintf(w, "  Bytes received: %d\n", report.Wire.BytesReceived)
	}
	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		labels := make([]string, 0, len(stats.Errors))
		for label := range stats.Errors {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			fmt.Fprintf(w, "  %s: %d\n", label, stats.Errors[label])
		}
	}

	if report.Summary.Healthy() {
		fmt.Fprintln(w, "\n✅ All concurrent requests completed successfully!")
		fmt.Fprintln(w, "The interpreter pool is handling concurrent load properly.")
	} else {
		fmt.Fprintln(w, "\n⚠️  Some requests failed - check pool configuration")
	}
}

// PrintJSONReport outputs the machine-readable report.
func PrintJSONReport(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
