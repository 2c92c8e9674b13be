package config

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterCommonFlags registers the flags every talonfire command
// shares.
func RegisterCommonFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("endpoint", "http://localhost:8080/mcp", "JSON-RPC endpoint of the script-execution service")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout")
	flags.Bool("json-output", false, "Emit JSON formatted output")

	// Tracing flags
	flags.Bool("trace", false, "Enable OpenTelemetry tracing")
	flags.String("trace-endpoint", "", "OTLP collector endpoint")
	flags.String("trace-protocol", "grpc", "OTLP transport: 'grpc' or 'http'")
	flags.Bool("trace-insecure", false, "Disable TLS for the OTLP connection")
	flags.Float64("trace-sample-rate", 1.0, "Trace sampling rate between 0 and 1")
	flags.Bool("trace-propagate", false, "Inject W3C trace context into outgoing requests")
}

// RegisterExecFlags registers flags controlling how scripts execute.
func RegisterExecFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("security", "Standard", "Security level: Minimal, Standard, Elevated, or Maximum")
	flags.String("format", "plain", "Output format: plain, json, xml, yaml, table, or csv")
	flags.String("workdir", "/tmp", "Working directory for the script on the service")
	flags.StringToString("env", nil, "Environment variables in key=value form (repeatable)")
	flags.String("script-dir", "", "Extra directory to search for scripts")
}

// RegisterPoolFlags registers flags controlling the concurrent pool
// harness.
func RegisterPoolFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("waves", 3, "Number of sequential waves to send")
	flags.IntP("concurrency", "c", 10, "Concurrent calls per wave")
	flags.Duration("wave-pause", time.Second, "Pause between waves")
	flags.IntP("rate", "r", 0, "Calls per second limit (0 means unlimited)")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.StringSlice("assert", nil, "Pass/fail assertions (repeatable, e.g., 'success_rate >= 100')")
	flags.Bool("no-history", false, "Do not record this run in the local history")
	flags.String("history-path", "", "Override the history file location")
}

// applyFlagOverrides applies flag values the user actually set,
// overriding values from the config file. Flags a command never
// registered are skipped.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	var firstErr error

	override := func(name string, apply func(flag *pflag.Flag) error) {
		if firstErr != nil {
			return
		}
		flag := fs.Lookup(name)
		if flag == nil || !flag.Changed {
			return
		}
		firstErr = apply(flag)
	}

	override("endpoint", func(*pflag.Flag) error {
		val, err := fs.GetString("endpoint")
		if err != nil {
			return err
		}
		cfg.Endpoint = strings.TrimSpace(val)
		return nil
	})
	override("timeout", func(*pflag.Flag) error {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
		return nil
	})
	override("json-output", func(*pflag.Flag) error {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
		return nil
	})
	override("security", func(*pflag.Flag) error {
		val, err := fs.GetString("security")
		if err != nil {
			return err
		}
		cfg.Security = val
		return nil
	})
	override("format", func(*pflag.Flag) error {
		val, err := fs.GetString("format")
		if err != nil {
			return err
		}
		cfg.Format = val
		return nil
	})
	override("workdir", func(*pflag.Flag) error {
		val, err := fs.GetString("workdir")
		if err != nil {
			return err
		}
		cfg.WorkingDir = strings.TrimSpace(val)
		return nil
	})
	override("env", func(*pflag.Flag) error {
		val, err := fs.GetStringToString("env")
		if err != nil {
			return err
		}
		if cfg.Env == nil {
			cfg.Env = map[string]string{}
		}
		for k, v := range val {
			cfg.Env[k] = v
		}
		return nil
	})
	override("script-dir", func(*pflag.Flag) error {
		val, err := fs.GetString("script-dir")
		if err != nil {
			return err
		}
		cfg.ScriptDir = strings.TrimSpace(val)
		return nil
	})
	override("waves", func(*pflag.Flag) error {
		val, err := fs.GetInt("waves")
		if err != nil {
			return err
		}
		cfg.Waves = val
		return nil
	})
	override("concurrency", func(*pflag.Flag) error {
		val, err := fs.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Concurrency = val
		return nil
	})
	override("wave-pause", func(*pflag.Flag) error {
		val, err := fs.GetDuration("wave-pause")
		if err != nil {
			return err
		}
		cfg.WavePause = val
		return nil
	})
	override("rate", func(*pflag.Flag) error {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
		return nil
	})
	override("dashboard", func(*pflag.Flag) error {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
		return nil
	})
	override("assert", func(*pflag.Flag) error {
		val, err := fs.GetStringSlice("assert")
		if err != nil {
			return err
		}
		cfg.Asserts = val
		return nil
	})
	override("no-history", func(*pflag.Flag) error {
		val, err := fs.GetBool("no-history")
		if err != nil {
			return err
		}
		cfg.History = !val
		return nil
	})
	override("history-path", func(*pflag.Flag) error {
		val, err := fs.GetString("history-path")
		if err != nil {
			return err
		}
		cfg.HistoryPath = strings.TrimSpace(val)
		return nil
	})
	override("trace", func(*pflag.Flag) error {
		val, err := fs.GetBool("trace")
		if err != nil {
			return err
		}
		cfg.Tracing.Enabled = val
		return nil
	})
	override("trace-endpoint", func(*pflag.Flag) error {
		val, err := fs.GetString("trace-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
		return nil
	})
	override("trace-protocol", func(*pflag.Flag) error {
		val, err := fs.GetString("trace-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
		return nil
	})
	override("trace-insecure", func(*pflag.Flag) error {
		val, err := fs.GetBool("trace-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
		return nil
	})
	override("trace-sample-rate", func(*pflag.Flag) error {
		val, err := fs.GetFloat64("trace-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
		return nil
	})
	override("trace-propagate", func(*pflag.Flag) error {
		val, err := fs.GetBool("trace-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = val
		return nil
	})

	return firstErr
}
