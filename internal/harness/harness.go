// Package harness fans script executions out in sequential waves of
// concurrent calls and aggregates their outcomes.
package harness

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/talonlabs/talonfire/internal/session"
)

// Caller produces the outcome of one call. It is invoked from the
// wave's worker goroutines and must return exactly one Outcome per
// invocation, failure or not; callID is the wave-global JSON-RPC id.
type Caller func(ctx context.Context, wave, slot, callID int) session.Outcome

// Observer receives progress callbacks. All callbacks fire from the
// collector goroutine, in completion order; nil funcs are skipped.
type Observer struct {
	WaveStarted     func(wave, concurrency int)
	OutcomeRecorded func(wave int, outcome session.Outcome)
	WaveFinished    func(result WaveResult)
}

// WaveResult is one finished wave. Outcomes are in completion order,
// which deliberately differs from slot order under load.
type WaveResult struct {
	Wave     int               `json:"wave"`
	Outcomes []session.Outcome `json:"outcomes"`
}

// Summary is the pure fold over all wave outcomes. It holds no state of
// its own and can be recomputed from the same waves at any time.
type Summary struct {
	TotalRequests int     `json:"total_requests"`
	TotalSuccess  int     `json:"total_success"`
	TotalFailed   int     `json:"total_failed"`
	SuccessRate   float64 `json:"success_rate"`
}

// Healthy reports the run's acceptance criterion: every call across
// every wave completed successfully.
func (s Summary) Healthy() bool {
	return s.TotalRequests > 0 && s.TotalFailed == 0
}

// Options configures a harness run.
type Options struct {
	Waves       int
	Concurrency int
	// WavePause sleeps between waves (skipped after the last one).
	WavePause time.Duration
	// Rate paces launches inside a wave in calls per second; 0 launches
	// every slot immediately.
	Rate     int
	Caller   Caller
	Observer Observer
}

func (o *Options) normalize() {
	if o.Waves < 1 {
		o.Waves = 1
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.WavePause < 0 {
		o.WavePause = 0
	}
	if o.Rate < 0 {
		o.Rate = 0
	}
}

// Harness coordinates wave-based concurrent execution.
type Harness struct {
	opt Options
}

func New(opt Options) *Harness {
	opt.normalize()
	return &Harness{opt: opt}
}

// Run executes every wave in order and returns the per-wave results
// plus the folded summary. A wave only ends once all of its calls have
// produced an outcome; waves never overlap. Individual call failures
// arrive as outcome data and never abort the run.
func (h *Harness) Run(ctx context.Context) ([]WaveResult, Summary) {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]WaveResult, 0, h.opt.Waves)
	for wave := 0; wave < h.opt.Waves; wave++ {
		results = append(results, h.runWave(ctx, wave))

		if wave < h.opt.Waves-1 && h.opt.WavePause > 0 {
			select {
			case <-time.After(h.opt.WavePause):
			case <-ctx.Done():
			}
		}
	}
	return results, Summarize(results)
}

// runWave launches Concurrency calls and drains exactly that many
// outcomes from the completion channel. The channel is the only shared
// structure, so collection is loss- and duplication-free by
// construction regardless of completion interleaving.
func (h *Harness) runWave(ctx context.Context, wave int) WaveResult {
	concurrency := h.opt.Concurrency
	if h.opt.Observer.WaveStarted != nil {
		h.opt.Observer.WaveStarted(wave, concurrency)
	}

	var limiter *rate.Limiter
	if h.opt.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.opt.Rate), 1)
	}

	completions := make(chan session.Outcome, concurrency)
	for slot := 0; slot < concurrency; slot++ {
		go func(slot int) {
			callID := wave*concurrency + slot
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					completions <- session.Outcome{ID: callID, Err: err.Error(), ResponseTime: -1}
					return
				}
			}
			completions <- h.opt.Caller(ctx, wave, slot, callID)
		}(slot)
	}

	result := WaveResult{Wave: wave, Outcomes: make([]session.Outcome, 0, concurrency)}
	for i := 0; i < concurrency; i++ {
		outcome := <-completions
		result.Outcomes = append(result.Outcomes, outcome)
		if h.opt.Observer.OutcomeRecorded != nil {
			h.opt.Observer.OutcomeRecorded(wave, outcome)
		}
	}
	if h.opt.Observer.WaveFinished != nil {
		h.opt.Observer.WaveFinished(result)
	}
	return result
}

// Summarize folds wave results into totals. Calling it twice over the
// same waves yields identical summaries.
func Summarize(waves []WaveResult) Summary {
	var s Summary
	for _, wave := range waves {
		for _, outcome := range wave.Outcomes {
			s.TotalRequests++
			if outcome.Success {
				s.TotalSuccess++
			} else {
				s.TotalFailed++
			}
		}
	}
	if s.TotalRequests > 0 {
		s.SuccessRate = float64(s.TotalSuccess) / float64(s.TotalRequests) * 100
	}
	return s
}

// AverageResponse returns the mean response time in seconds over the
// successful outcomes of one wave, mirroring how the per-wave summary
// line is computed. False when no call succeeded.
func AverageResponse(outcomes []session.Outcome) (float64, bool) {
	var sum float64
	var n int
	for _, outcome := range outcomes {
		if outcome.Success && outcome.ResponseTime >= 0 {
			sum += outcome.ResponseTime
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// DelayCycle returns the artificial per-slot delay embedded in pool
// scripts: 0ms, 100ms, 200ms cycling by slot, so completion order
// diverges from submission order within a wave.
func DelayCycle(slot int) time.Duration {
	return time.Duration(slot%3) * 100 * time.Millisecond
}
