package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talonlabs/talonfire/internal/config"
	"github.com/talonlabs/talonfire/internal/extract"
	"github.com/talonlabs/talonfire/internal/protocol"
	"github.com/talonlabs/talonfire/internal/scripts"
	"github.com/talonlabs/talonfire/internal/session"
	"github.com/talonlabs/talonfire/internal/transport"
)

// securityScript probes what the requested privilege tier allows; a
// failing verdict at a restrictive level is an expected result, not an
// error.
const securityScript = "SecurityPolicy.test.tcl"

func newSecurityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "security [level]",
		Short: "Run the security policy script at a given privilege level",
		Long: `Run the security policy probe script at the given level (Minimal,
Standard, Elevated, or Maximum; default Standard) and report what the
service allowed. A script-level failure is part of the probe's result
and does not fail the command.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSecurity,
	}

	config.RegisterCommonFlags(cmd)
	config.RegisterExecFlags(cmd)
	return cmd
}

func runSecurity(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level := cfg.Security
	if len(args) == 1 {
		level = args[0]
	}
	canonical, err := protocol.ParseSecurityLevel(level)
	if err != nil {
		return err
	}

	script, err := scripts.NewFinder(cfg.ScriptDir).Load(securityScript)
	if err != nil {
		return err
	}

	provider, shutdown, err := initTracing(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	builder := protocol.NewBuilder(protocol.Defaults{
		OutputFormat: cfg.Format,
		Env:          cfg.Env,
		WorkingDir:   cfg.WorkingDir,
	})
	client := transport.NewClient(cfg.Endpoint, cfg.Timeout)
	client.EnablePropagation(provider.ShouldPropagate())
	sess := session.New(builder, client, provider.Tracer())

	out := cmd.OutOrStdout()
	outcome, err := sess.Run(cmd.Context(), 1, script, protocol.Options{
		SecurityLevel: string(canonical),
	})
	if err != nil {
		// The probe reports what happened and exits clean; only a
		// missing script file fails this command.
		var formatErr *extract.FormatError
		if errors.As(err, &formatErr) {
			fmt.Fprintln(out, prettyRaw(formatErr.Raw))
			return nil
		}
		fmt.Fprintf(out, "Error: %v\n", err)
		return nil
	}
	if cfg.JSONOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	fmt.Fprintf(out, "Security level: %s\n", canonical)
	printRunOutcome(out, securityScript, outcome)
	if !outcome.Success {
		fmt.Fprintln(out, "The policy denied part of the probe at this level.")
	}
	return nil
}

// prettyRaw indents a raw reply for display, falling back to the bytes
// as-is when they are not valid JSON.
func prettyRaw(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
