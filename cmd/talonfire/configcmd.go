package main

import (
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/talonlabs/talonfire/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE:  runConfig,
	}

	config.RegisterCommonFlags(cmd)
	config.RegisterExecFlags(cmd)
	config.RegisterPoolFlags(cmd)
	return cmd
}

// effectiveConfig mirrors config.Config with YAML-friendly fields so
// the dump reads the same as an input config file.
type effectiveConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Timeout     string            `yaml:"timeout"`
	JSONOutput  bool              `yaml:"json_output"`
	Security    string            `yaml:"security"`
	Format      string            `yaml:"format"`
	WorkingDir  string            `yaml:"workdir"`
	Env         map[string]string `yaml:"env,omitempty"`
	ScriptDir   string            `yaml:"script_dir,omitempty"`
	Waves       int               `yaml:"waves"`
	Concurrency int               `yaml:"concurrency"`
	WavePause   string            `yaml:"wave_pause"`
	Rate        int               `yaml:"rate"`
	Dashboard   bool              `yaml:"dashboard"`
	Asserts     []string          `yaml:"asserts,omitempty"`
	History     bool              `yaml:"history"`
	HistoryPath string            `yaml:"history_path,omitempty"`
	Tracing     effectiveTracing  `yaml:"tracing"`
}

type effectiveTracing struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint,omitempty"`
	Protocol   string  `yaml:"protocol,omitempty"`
	Insecure   bool    `yaml:"insecure"`
	SampleRate float64 `yaml:"sample_rate"`
	Propagate  bool    `yaml:"propagate"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dump := effectiveConfig{
		Endpoint:    cfg.Endpoint,
		Timeout:     cfg.Timeout.Round(time.Millisecond).String(),
		JSONOutput:  cfg.JSONOutput,
		Security:    cfg.Security,
		Format:      cfg.Format,
		WorkingDir:  cfg.WorkingDir,
		Env:         cfg.Env,
		ScriptDir:   cfg.ScriptDir,
		Waves:       cfg.Waves,
		Concurrency: cfg.Concurrency,
		WavePause:   cfg.WavePause.String(),
		Rate:        cfg.Rate,
		Dashboard:   cfg.Dashboard,
		Asserts:     cfg.Asserts,
		History:     cfg.History,
		HistoryPath: cfg.HistoryPath,
		Tracing: effectiveTracing{
			Enabled:    cfg.Tracing.Enabled,
			Endpoint:   cfg.Tracing.Endpoint,
			Protocol:   cfg.Tracing.Protocol,
			Insecure:   cfg.Tracing.Insecure,
			SampleRate: cfg.Tracing.SampleRate,
			Propagate:  cfg.Tracing.Propagate,
		},
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(dump)
}
