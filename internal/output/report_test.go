package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/talonlabs/talonfire/internal/harness"
	"github.com/talonlabs/talonfire/internal/metrics"
	"github.com/talonlabs/talonfire/internal/session"
	"github.com/talonlabs/talonfire/internal/transport"
)

func TestPrintCallOutcome(t *testing.T) {
	var buf bytes.Buffer
	PrintCallOutcome(&buf, session.Outcome{
		ID:      4,
		Success: true,
		Output:  "Script 4 completed in 12ms, sum=125250\n",
	})
	if got := buf.String(); got != "  ✓ Script 4: Script 4 completed in 12ms, sum=125250\n" {
		t.Errorf("success line = %q", got)
	}

	buf.Reset()
	PrintCallOutcome(&buf, session.Outcome{ID: 7, Err: "connection failed: refused"})
	if got := buf.String(); got != "  ✗ Script 7: connection failed: refused\n" {
		t.Errorf("failure line = %q", got)
	}
}

func TestPrintWaveHeader(t *testing.T) {
	var buf bytes.Buffer
	PrintWaveHeader(&buf, 0, 10)
	if got := buf.String(); got != "\nWave 1 - Sending 10 concurrent requests...\n" {
		t.Errorf("header = %q", got)
	}
}

func TestPrintWaveSummary(t *testing.T) {
	result := harness.WaveResult{
		Wave: 1,
		Outcomes: []session.Outcome{
			{ID: 10, Success: true, ResponseTime: 0.100},
			{ID: 11, Success: true, ResponseTime: 0.300},
			{ID: 12, Err: "request timeout", ResponseTime: -1},
		},
	}

	var buf bytes.Buffer
	PrintWaveSummary(&buf, result, 3)

	out := buf.String()
	for _, want := range []string{
		"Wave 2 Summary:",
		"Success: 2/3",
		"Failed: 1/3",
		"Average response time: 0.200s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrintWaveSummaryAllFailedOmitsAverage(t *testing.T) {
	result := harness.WaveResult{
		Outcomes: []session.Outcome{{ID: 0, Err: "boom", ResponseTime: -1}},
	}

	var buf bytes.Buffer
	PrintWaveSummary(&buf, result, 1)
	if strings.Contains(buf.String(), "Average response time") {
		t.Errorf("average printed with no successful calls:\n%s", buf.String())
	}
}

func TestPrintReportHealthy(t *testing.T) {
	report := Report{
		RunID:       "01J0TEST",
		Endpoint:    "http://localhost:8080/mcp",
		Waves:       3,
		Concurrency: 10,
		Summary: harness.Summary{
			TotalRequests: 30,
			TotalSuccess:  30,
			SuccessRate:   100.0,
		},
		Stats: metrics.Stats{Total: 30, Successes: 30, MinLatencyMs: 1.2, MeanLatencyMs: 3.4, MaxLatencyMs: 9.8},
		Wire:  transport.WireStats{Requests: 30, BytesSent: 9000, BytesReceived: 12000},
	}

	var buf bytes.Buffer
	PrintReport(&buf, report)

	out := buf.String()
	for _, want := range []string{
		"Overall Test Summary:",
		"Total requests: 30",
		"Total success: 30",
		"Total failed: 0",
		"Success rate: 100.0%",
		"Bytes sent:     9000",
		"✅ All concurrent requests completed successfully!",
		"The interpreter pool is handling concurrent load properly.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "⚠️") {
		t.Errorf("healthy report carries warning:\n%s", out)
	}
}

func TestPrintReportUnhealthy(t *testing.T) {
	report := Report{
		Summary: harness.Summary{TotalRequests: 10, TotalSuccess: 8, TotalFailed: 2, SuccessRate: 80.0},
		Stats: metrics.Stats{
			Total:    10,
			Failures: 2,
			Errors:   map[string]int{"Request timeout": 2},
		},
	}

	var buf bytes.Buffer
	PrintReport(&buf, report)

	out := buf.String()
	if !strings.Contains(out, "⚠️  Some requests failed - check pool configuration") {
		t.Errorf("report missing warning:\n%s", out)
	}
	if !strings.Contains(out, "Request timeout: 2") {
		t.Errorf("report missing failure breakdown:\n%s", out)
	}
	if strings.Contains(out, "✅") {
		t.Errorf("unhealthy report claims success:\n%s", out)
	}
}

func TestPrintJSONReportRoundTrip(t *testing.T) {
	report := Report{
		RunID:       "01J0TEST",
		Endpoint:    "http://localhost:8080/mcp",
		Waves:       2,
		Concurrency: 5,
		Summary:     harness.Summary{TotalRequests: 10, TotalSuccess: 10, SuccessRate: 100.0},
	}

	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, report); err != nil {
		t.Fatalf("PrintJSONReport: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.RunID != report.RunID || decoded.Summary.TotalRequests != 10 {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}
