// Package dashboard renders a live terminal UI while the pool harness
// is sending waves.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/talonlabs/talonfire/internal/metrics"
	"github.com/talonlabs/talonfire/internal/session"
)

// RunConfig holds the pool run parameters for display.
type RunConfig struct {
	Endpoint    string        // Target JSON-RPC endpoint
	Waves       int           // Total waves to send
	Concurrency int           // Concurrent calls per wave
	WavePause   time.Duration // Pause between waves
	Rate        int           // Calls per second (0 = unlimited)
	Timeout     time.Duration // Per-call timeout
	ConfigFile  string        // Path to config file if used
}

// Dashboard renders live pool run metrics. Feed it from the harness
// observer via WaveStarted and RecordOutcome.
type Dashboard struct {
	collector    *metrics.Collector
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	waveGauge      *widgets.Gauge
	errorList      *widgets.List
	recentList     *widgets.List
	summaryPara    *widgets.Paragraph
	metricsPara    *widgets.Paragraph

	latencyHistory []float64
	recentRows     []string
	currentWave    int
	startTime      time.Time
	runDuration    time.Duration
	cfg            RunConfig
}

// New creates a Dashboard and takes over the terminal.
func New(collector *metrics.Collector, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		collector:      collector,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, 100),
		startTime:      time.Now(),
		cfg:            cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Real-time Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.waveGauge = widgets.NewGauge()
	d.waveGauge.Title = "Wave Progress"
	d.waveGauge.Percent = 0
	d.waveGauge.BarColor = ui.ColorBlue
	d.waveGauge.BorderStyle.Fg = ui.ColorCyan
	d.waveGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.errorList = widgets.NewList()
	d.errorList.Title = "Failure Breakdown"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.recentList = widgets.NewList()
	d.recentList.Title = "Recent Calls"
	d.recentList.Rows = []string{"Awaiting data"}
	d.recentList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.recentList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Pool Run"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Metrics"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.18,
			ui.NewCol(0.5, d.waveGauge),
			ui.NewCol(0.5, d.metricsPara),
		),
		ui.NewRow(0.30,
			ui.NewCol(1.0, d.latencySparkle),
		),
		ui.NewRow(0.36,
			ui.NewCol(0.5, d.recentList),
			ui.NewCol(0.5, d.errorList),
		),
	)
}

// WaveStarted records that a new wave is underway.
func (d *Dashboard) WaveStarted(wave int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.currentWave = wave + 1
}

// RecordOutcome adds a completed call to the recent-calls panel. The
// latency itself is already in the collector.
func (d *Dashboard) RecordOutcome(outcome session.Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var row string
	if outcome.Success {
		row = fmt.Sprintf("[✓ Script %d](fg:green) %.3fs", outcome.ID, outcome.ResponseTime)
	} else {
		row = fmt.Sprintf("[✗ Script %d](fg:red) %s", outcome.ID, outcome.Err)
	}
	d.recentRows = append(d.recentRows, row)
	if len(d.recentRows) > 12 {
		d.recentRows = d.recentRows[1:]
	}
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	d.runDuration = time.Since(d.startTime)
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// FinalStats returns the statistics frozen at Stop time.
func (d *Dashboard) FinalStats() metrics.Stats {
	return d.collector.Stats(d.runDuration)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Do not return here; wait for Stop() to cancel context
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	stats := d.collector.Stats(elapsed)

	if stats.MeanLatency > 0 {
		d.latencyHistory = append(d.latencyHistory, stats.MeanLatencyMs)
		if len(d.latencyHistory) > 100 {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Real-time Latency | Mean: %.2fms | Min: %.2fms | Max: %.2fms",
			stats.MeanLatencyMs,
			stats.MinLatencyMs,
			stats.MaxLatencyMs,
		)
	}

	totalCalls := d.cfg.Waves * d.cfg.Concurrency
	percent := 0
	if totalCalls > 0 {
		percent = int(float64(stats.Total) / float64(totalCalls) * 100)
		if percent > 100 {
			percent = 100
		}
	}
	d.waveGauge.Percent = percent
	d.waveGauge.Label = fmt.Sprintf("Wave %d/%d | %d/%d calls", d.currentWave, d.cfg.Waves, stats.Total, totalCalls)

	d.summaryPara.Text = fmt.Sprintf(
		"Endpoint: %s\n%s\nElapsed: %s | Total: %d | Success Rate: %.1f%%",
		d.cfg.Endpoint,
		d.formatRunParams(),
		elapsed.Round(time.Second),
		stats.Total,
		stats.SuccessRate,
	)

	d.metricsPara.Text = fmt.Sprintf(
		"Total Calls:     %d\nSuccessful:      %d\nFailed:          %d\nCurrent RPS:     %.2f\nMin Latency:     %.2fms\nMean Latency:    %.2fms\nMax Latency:     %.2fms",
		stats.Total,
		stats.Successes,
		stats.Failures,
		stats.RequestsPerSec,
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.MaxLatencyMs,
	)

	d.errorList.Rows = formatErrorRows(stats.Errors)

	if len(d.recentRows) > 0 {
		rows := make([]string, len(d.recentRows))
		copy(rows, d.recentRows)
		d.recentList.Rows = rows
	}
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func formatErrorRows(errs map[string]int) []string {
	if len(errs) == 0 {
		return []string{"[No failures](fg:green)"}
	}

	labels := make([]string, 0, len(errs))
	for label := range errs {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if errs[labels[i]] == errs[labels[j]] {
			return labels[i] < labels[j]
		}
		return errs[labels[i]] > errs[labels[j]]
	})

	maxRows := len(labels)
	if maxRows > 10 {
		maxRows = 10
	}
	formatted := make([]string, 0, maxRows)
	for i := 0; i < maxRows; i++ {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d", labels[i], errs[labels[i]]))
	}
	return formatted
}

// formatRunParams formats the run configuration for display.
func (d *Dashboard) formatRunParams() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Waves: %d", d.cfg.Waves))
	parts = append(parts, fmt.Sprintf("Concurrency: %d", d.cfg.Concurrency))

	if d.cfg.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/s", d.cfg.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}
	if d.cfg.WavePause > 0 {
		parts = append(parts, fmt.Sprintf("Pause: %s", d.cfg.WavePause))
	}
	if d.cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", d.cfg.Timeout))
	}
	if d.cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.cfg.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
