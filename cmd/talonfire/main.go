// Command talonfire exercises an Eagle script-execution service over
// its JSON-RPC interface: single executions, security level probes,
// and concurrent interpreter pool tests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talonlabs/talonfire/internal/config"
	"github.com/talonlabs/talonfire/internal/tracing"
)

const shutdownGrace = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "talonfire",
		Short:         "Test harness for the Eagle script-execution service",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		newRunCmd(),
		newSecurityCmd(),
		newPoolCmd(),
		newHistoryCmd(),
		newConfigCmd(),
	)
	return root
}

// loadConfig builds the effective configuration from the command's
// flags and validates it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.NewLoader().Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initTracing starts the tracing provider and returns it with a
// shutdown func that flushes pending spans.
func initTracing(ctx context.Context, cfg *config.Config) (*tracing.Provider, func(), error) {
	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, nil, err
	}
	shutdown := func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := provider.Shutdown(flushCtx); err != nil {
			fmt.Fprintf(os.Stderr, "tracing shutdown: %v\n", err)
		}
	}
	return provider, shutdown, nil
}
