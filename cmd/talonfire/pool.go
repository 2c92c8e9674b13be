package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/talonlabs/talonfire/internal/config"
	"github.com/talonlabs/talonfire/internal/dashboard"
	"github.com/talonlabs/talonfire/internal/harness"
	"github.com/talonlabs/talonfire/internal/history"
	"github.com/talonlabs/talonfire/internal/metrics"
	"github.com/talonlabs/talonfire/internal/output"
	"github.com/talonlabs/talonfire/internal/protocol"
	"github.com/talonlabs/talonfire/internal/scripts"
	"github.com/talonlabs/talonfire/internal/session"
	"github.com/talonlabs/talonfire/internal/threshold"
	"github.com/talonlabs/talonfire/internal/tracing"
	"github.com/talonlabs/talonfire/internal/transport"
)

func newPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Stress the interpreter pool with waves of concurrent scripts",
		Long: `Send sequential waves of concurrent script executions and judge
whether the interpreter pool handled them all. Each call carries its
own generated script with a per-slot delay, so completion order
diverges from submission order within a wave.`,
		Args: cobra.NoArgs,
		RunE: runPool,
	}

	config.RegisterCommonFlags(cmd)
	config.RegisterExecFlags(cmd)
	config.RegisterPoolFlags(cmd)
	return cmd
}

func runPool(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	asserts, err := threshold.ParseMultiple(cfg.Asserts)
	if err != nil {
		return err
	}

	provider, shutdown, err := initTracing(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	// Generated pool scripts carry everything they need, so no
	// environment mapping goes on the wire unless the user set one. A
	// non-nil empty map keeps the builder from substituting its
	// standard default.
	poolEnv := cfg.Env
	if poolEnv == nil {
		poolEnv = map[string]string{}
	}

	builder := protocol.NewBuilder(protocol.Defaults{
		SecurityLevel: cfg.Security,
		OutputFormat:  cfg.Format,
		Env:           poolEnv,
		WorkingDir:    cfg.WorkingDir,
	})
	client := transport.NewClient(cfg.Endpoint, cfg.Timeout)
	client.EnablePropagation(provider.ShouldPropagate())
	collector := metrics.NewCollector()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	caller := func(ctx context.Context, wave, slot, callID int) session.Outcome {
		script := scripts.Concurrent(callID, harness.DelayCycle(slot))
		sess := session.New(builder, client, provider.Tracer())
		outcome, err := sess.Run(ctx, callID, script, protocol.Options{})
		// The collector classifies from the outcome, so a decoded
		// reply with a failing verdict counts as a failure in the
		// stats block as well as the summary.
		callErr := err
		if callErr == nil && !outcome.Success {
			callErr = metrics.ErrScriptFailure
		}
		collector.RecordCall(time.Duration(outcome.ResponseTime*float64(time.Second)), callErr)
		return outcome
	}

	out := cmd.OutOrStdout()

	var dash *dashboard.Dashboard
	observer := harness.Observer{}
	if cfg.Dashboard {
		dash, err = dashboard.New(collector, dashboard.RunConfig{
			Endpoint:    cfg.Endpoint,
			Waves:       cfg.Waves,
			Concurrency: cfg.Concurrency,
			WavePause:   cfg.WavePause,
			Rate:        cfg.Rate,
			Timeout:     cfg.Timeout,
			ConfigFile:  cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
		observer = harness.Observer{
			WaveStarted: func(wave, concurrency int) {
				dash.WaveStarted(wave)
			},
			OutcomeRecorded: func(wave int, outcome session.Outcome) {
				dash.RecordOutcome(outcome)
			},
		}
	} else if !cfg.JSONOutput {
		output.PrintRunHeader(out)
		observer = harness.Observer{
			WaveStarted: func(wave, concurrency int) {
				output.PrintWaveHeader(out, wave, concurrency)
			},
			OutcomeRecorded: func(wave int, outcome session.Outcome) {
				output.PrintCallOutcome(out, outcome)
			},
			WaveFinished: func(result harness.WaveResult) {
				output.PrintWaveSummary(out, result, cfg.Concurrency)
			},
		}
	}
	observer = withWaveSpans(observer, provider, cfg.Concurrency)

	collector.Start()
	_, summary := harness.New(harness.Options{
		Waves:       cfg.Waves,
		Concurrency: cfg.Concurrency,
		WavePause:   cfg.WavePause,
		Rate:        cfg.Rate,
		Caller:      caller,
		Observer:    observer,
	}).Run(ctx)

	var stats metrics.Stats
	if dash != nil {
		dash.Stop()
		stats = dash.FinalStats()
	} else {
		stats = collector.Stats(collector.Elapsed())
	}

	report := output.Report{
		RunID:       history.NewRunID(),
		Endpoint:    cfg.Endpoint,
		Waves:       cfg.Waves,
		Concurrency: cfg.Concurrency,
		Summary:     summary,
		Stats:       stats,
		Wire:        client.Wire(),
	}

	if cfg.History {
		if err := appendHistory(cfg, report); err != nil {
			fmt.Fprintf(os.Stderr, "recording history: %v\n", err)
		}
	}

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(out, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(out, report)
	}

	results := threshold.NewEvaluator(asserts).Evaluate(summary, stats)
	if len(results) > 0 && !cfg.JSONOutput {
		fmt.Fprintln(out, "\nAssertions:")
		for _, r := range results {
			fmt.Fprintf(out, "  %s\n", r.Message)
		}
	}

	if !threshold.AllPassed(results) {
		return fmt.Errorf("assertions failed")
	}
	if !summary.Healthy() {
		return fmt.Errorf("%d requests failed", summary.TotalFailed)
	}
	return nil
}

// withWaveSpans layers a per-wave span around the given observer so an
// exported trace groups each wave's calls together.
func withWaveSpans(base harness.Observer, provider *tracing.Provider, concurrency int) harness.Observer {
	if !provider.Active() {
		return base
	}

	var span trace.Span
	started := base.WaveStarted
	finished := base.WaveFinished

	base.WaveStarted = func(wave, concurrency int) {
		_, span = tracing.StartWaveSpan(context.Background(), provider.Tracer(), wave, concurrency)
		if started != nil {
			started(wave, concurrency)
		}
	}
	base.WaveFinished = func(result harness.WaveResult) {
		if finished != nil {
			finished(result)
		}
		if span != nil {
			tracing.EndSpan(span, nil)
			span = nil
		}
	}
	return base
}

func appendHistory(cfg *config.Config, report output.Report) error {
	path := cfg.HistoryPath
	if path == "" {
		var err error
		path, err = history.DefaultPath()
		if err != nil {
			return err
		}
	}
	return history.NewStore(path).Append(history.Entry{
		RunID:       report.RunID,
		Timestamp:   time.Now(),
		Endpoint:    report.Endpoint,
		Waves:       report.Waves,
		Concurrency: report.Concurrency,
		Summary:     report.Summary,
	})
}
