package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/talonlabs/talonfire/internal/config"
	"github.com/talonlabs/talonfire/internal/protocol"
	"github.com/talonlabs/talonfire/internal/scripts"
	"github.com/talonlabs/talonfire/internal/session"
	"github.com/talonlabs/talonfire/internal/transport"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Execute one test script against the service",
		Long: `Execute one test script against the service and report its outcome.

The script argument is resolved against the deployment script
directory, the directory next to the executable, and the current
project; an absolute path is taken as-is.`,
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}

	config.RegisterCommonFlags(cmd)
	config.RegisterExecFlags(cmd)
	cmd.Flags().String("session-id", "", "Reuse an existing interpreter session")
	cmd.Flags().Bool("new-session", false, "Start a fresh interpreter session for this call")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	script, err := scripts.NewFinder(cfg.ScriptDir).Load(args[0])
	if err != nil {
		return err
	}

	opts := protocol.Options{}
	if cmd.Flags().Changed("session-id") {
		id, err := cmd.Flags().GetString("session-id")
		if err != nil {
			return err
		}
		opts.SessionID = &id
	}
	if newSession, _ := cmd.Flags().GetBool("new-session"); newSession {
		id := uuid.NewString()
		opts.SessionID = &id
	}

	provider, shutdown, err := initTracing(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	builder := protocol.NewBuilder(protocol.Defaults{
		SecurityLevel: cfg.Security,
		OutputFormat:  cfg.Format,
		Env:           cfg.Env,
		WorkingDir:    cfg.WorkingDir,
	})
	client := transport.NewClient(cfg.Endpoint, cfg.Timeout)
	client.EnablePropagation(provider.ShouldPropagate())
	sess := session.New(builder, client, provider.Tracer())

	outcome, err := sess.Run(cmd.Context(), 1, script, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.JSONOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcome); err != nil {
			return err
		}
	} else {
		printRunOutcome(out, args[0], outcome)
	}

	if !outcome.Success {
		return fmt.Errorf("script %s reported failure", args[0])
	}
	return nil
}

func printRunOutcome(w io.Writer, name string, outcome session.Outcome) {
	if outcome.Success {
		fmt.Fprintf(w, "✓ %s succeeded in %.3fs\n", name, outcome.ResponseTime)
	} else {
		fmt.Fprintf(w, "✗ %s failed in %.3fs\n", name, outcome.ResponseTime)
	}
	if output := strings.TrimSpace(outcome.Output); output != "" {
		fmt.Fprintln(w, output)
	}
	if outcome.ExecutionID != "" {
		fmt.Fprintf(w, "Execution ID: %s\n", outcome.ExecutionID)
	}
	if outcome.SessionID != "" {
		fmt.Fprintf(w, "Session ID: %s\n", outcome.SessionID)
	}
}
