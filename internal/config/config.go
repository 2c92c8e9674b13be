package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/talonlabs/talonfire/internal/protocol"
	"github.com/talonlabs/talonfire/internal/tracing"
)

// Config holds everything a talonfire invocation needs: where the
// JSON-RPC endpoint lives, how scripts execute, and how the pool
// harness paces its waves.
type Config struct {
	Endpoint   string        `mapstructure:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout"`
	JSONOutput bool          `mapstructure:"json_output"`

	// Script execution settings.
	Security   string            `mapstructure:"security"`
	Format     string            `mapstructure:"format"`
	WorkingDir string            `mapstructure:"workdir"`
	Env        map[string]string `mapstructure:"env"`
	ScriptDir  string            `mapstructure:"script_dir"`

	// Pool harness settings.
	Waves       int           `mapstructure:"waves"`
	Concurrency int           `mapstructure:"concurrency"`
	WavePause   time.Duration `mapstructure:"wave_pause"`
	Rate        int           `mapstructure:"rate"`
	Dashboard   bool          `mapstructure:"dashboard"`
	Asserts     []string      `mapstructure:"asserts"`

	// Run history settings.
	History     bool   `mapstructure:"history"`
	HistoryPath string `mapstructure:"history_path"`

	Tracing tracing.Config `mapstructure:"tracing"`

	ConfigFile string `mapstructure:"-"`
}

// Default returns a Config carrying the standard defaults; loading
// layers config file values and flag overrides on top of it. Env stays
// nil until the user supplies a mapping: the request builder treats nil
// as "use the standard environment".
func Default() *Config {
	return &Config{
		Endpoint:    "http://localhost:8080/mcp",
		Timeout:     30 * time.Second,
		Security:    string(protocol.SecurityStandard),
		Format:      string(protocol.FormatPlain),
		WorkingDir:  "/tmp",
		Waves:       3,
		Concurrency: 10,
		WavePause:   time.Second,
		History:     true,
		Tracing:     tracing.Config{Protocol: "grpc", SampleRate: 1},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Endpoint) == "" {
		issues = append(issues, "endpoint is required (use --help for usage information)")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Waves < 1 {
		issues = append(issues, "waves must be >= 1")
	}
	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if c.WavePause < 0 {
		issues = append(issues, "wave-pause must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	if _, err := protocol.ParseSecurityLevel(c.Security); err != nil {
		issues = append(issues, err.Error())
	}
	if _, err := protocol.ParseOutputFormat(c.Format); err != nil {
		issues = append(issues, err.Error())
	}

	if c.Tracing.Enabled {
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			issues = append(issues, "tracing sample_rate must be between 0 and 1")
		}
		switch strings.ToLower(strings.TrimSpace(c.Tracing.Protocol)) {
		case "", "grpc", "http":
		default:
			issues = append(issues, fmt.Sprintf("tracing protocol %q is not supported (use grpc or http)", c.Tracing.Protocol))
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}
