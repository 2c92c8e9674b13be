package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/talonlabs/talonfire/internal/tracing"
)

// Loader layers configuration sources: defaults, then a config file
// read through viper, then explicit flag overrides.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// Load builds a Config from the parsed flag set. The --config flag
// names an optional YAML or JSON file; flags the user actually set
// win over file values.
func (Loader) Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	configPath := ""
	if flag := fs.Lookup("config"); flag != nil {
		configPath = strings.TrimSpace(flag.Value.String())
	}
	cfg.ConfigFile = configPath

	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
			return nil, err
		}
		if err := applyFileEnv(cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		return nil, err
	}

	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)

	return cfg, nil
}

// applyFileEnv merges the config file's env section into cfg. Viper
// lowercases every key it stores, which would mangle environment
// variable names, so the section is decoded from the raw file instead.
func applyFileEnv(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var raw struct {
		Env         map[string]interface{} `yaml:"env"`
		Environment map[string]interface{} `yaml:"environment"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	section := raw.Env
	if section == nil {
		section = raw.Environment
	}
	if len(section) == 0 {
		return nil
	}

	env, err := asStringMap(section)
	if err != nil {
		return fmt.Errorf("env: %w", err)
	}
	if cfg.Env == nil {
		cfg.Env = make(map[string]string, len(env))
	}
	for key, value := range env {
		cfg.Env[key] = value
	}
	return nil
}

// applyConfigSettings applies settings from a config file to the Config.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "endpoint", "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		cfg.Endpoint = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "security", "securitylevel", "security_level", "security-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("security: %w", err)
		}
		if val != "" {
			cfg.Security = val
		}
	}

	if raw, ok := lookupSetting(settings, "format", "outputformat", "output_format", "output-format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		if val != "" {
			cfg.Format = val
		}
	}

	if raw, ok := lookupSetting(settings, "workdir", "working_dir", "working-dir"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("workdir: %w", err)
		}
		cfg.WorkingDir = strings.TrimSpace(val)
	}

	// The env section is deliberately skipped here; applyFileEnv reads
	// it case-preserving from the raw file.

	if raw, ok := lookupSetting(settings, "scriptdir", "script_dir", "script-dir"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("scriptDir: %w", err)
		}
		cfg.ScriptDir = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "waves"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("waves: %w", err)
		}
		cfg.Waves = val
	}

	if raw, ok := lookupSetting(settings, "concurrency"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("concurrency: %w", err)
		}
		cfg.Concurrency = val
	}

	if raw, ok := lookupSetting(settings, "wavepause", "wave_pause", "wave-pause"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("wavePause: %w", err)
		}
		cfg.WavePause = dur
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "asserts", "assertions"); ok {
		asserts, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("asserts: %w", err)
		}
		cfg.Asserts = asserts
	}

	if raw, ok := lookupSetting(settings, "history"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		cfg.History = val
	}

	if raw, ok := lookupSetting(settings, "historypath", "history_path", "history-path"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("historyPath: %w", err)
		}
		cfg.HistoryPath = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		trc, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = trc
	}

	return nil
}

// parseTracing applies a tracing settings map over the current tracing
// config, so omitted keys keep their defaults.
func parseTracing(value interface{}, trc tracing.Config) (tracing.Config, error) {
	if value == nil {
		return trc, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return tracing.Config{}, err
	}
	if raw, ok := lookupSetting(entry, "enabled"); ok {
		val, err := asBool(raw)
		if err != nil {
			return tracing.Config{}, fmt.Errorf("enabled: %w", err)
		}
		trc.Enabled = val
	}
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return tracing.Config{}, fmt.Errorf("endpoint: %w", err)
		}
		trc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return tracing.Config{}, fmt.Errorf("protocol: %w", err)
		}
		trc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return tracing.Config{}, fmt.Errorf("insecure: %w", err)
		}
		trc.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return tracing.Config{}, fmt.Errorf("sample_rate: %w", err)
		}
		trc.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return tracing.Config{}, fmt.Errorf("service_name: %w", err)
		}
		trc.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return tracing.Config{}, fmt.Errorf("propagate: %w", err)
		}
		trc.Propagate = val
	}
	return trc, nil
}
