// Package metrics aggregates per-call latency and failure statistics
// for the pool harness.
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector records per-call metrics in a thread-safe manner.
type Collector struct {
	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	successes    int64
	failures     int64
	errorsByType map[string]int64
	start        time.Time
}

// Stats represents aggregated metrics. Latency figures come from the
// histogram; calls that never produced a response (sentinel latency)
// count toward the totals but not the latency distribution.
type Stats struct {
	Total       int64   `json:"total"`
	Successes   int64   `json:"successes"`
	Failures    int64   `json:"failures"`
	SuccessRate float64 `json:"success_rate"`

	MinLatency  time.Duration `json:"-"`
	MaxLatency  time.Duration `json:"-"`
	MeanLatency time.Duration `json:"-"`
	Duration    time.Duration `json:"-"`

	// JSON-friendly millisecond fields.
	MinLatencyMs   float64        `json:"min_latency_ms"`
	MaxLatencyMs   float64        `json:"max_latency_ms"`
	MeanLatencyMs  float64        `json:"mean_latency_ms"`
	DurationMs     float64        `json:"duration_ms"`
	RequestsPerSec float64        `json:"requests_per_sec"`
	Errors         map[string]int `json:"errors,omitempty"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:         h,
		errorsByType: make(map[string]int64),
		start:        time.Now(),
	}
}

// Start marks the actual beginning of the run for RPS calculation.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

// Elapsed returns the time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// RecordCall records a single call's latency and error state. A
// negative latency means the call never produced a response; it is
// counted but excluded from the latency distribution.
func (c *Collector) RecordCall(latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency >= 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}

	if err == nil {
		c.successes++
	} else {
		c.failures++
		c.errorsByType[Label(err)]++
	}
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:     total,
		Successes: c.successes,
		Failures:  c.failures,
	}
	if total > 0 {
		stats.SuccessRate = float64(c.successes) / float64(total) * 100
	}

	if c.hist.TotalCount() > 0 {
		stats.MinLatency = time.Duration(c.hist.Min()) * time.Microsecond
		stats.MaxLatency = time.Duration(c.hist.Max()) * time.Microsecond
		stats.MeanLatency = time.Duration(c.hist.Mean()) * time.Microsecond
	}

	stats.MinLatencyMs = float64(stats.MinLatency) / float64(time.Millisecond)
	stats.MaxLatencyMs = float64(stats.MaxLatency) / float64(time.Millisecond)
	stats.MeanLatencyMs = float64(stats.MeanLatency) / float64(time.Millisecond)

	stats.Duration = elapsed
	stats.DurationMs = float64(elapsed) / float64(time.Millisecond)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(c.errorsByType) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.Errors[k] = int(v)
		}
	}

	return stats
}

// ErrorBreakdown returns a map of error labels to their counts.
func (c *Collector) ErrorBreakdown() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[string]int)
	for k, v := range c.errorsByType {
		result[k] = int(v)
	}
	return result
}
