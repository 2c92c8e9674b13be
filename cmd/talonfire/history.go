package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talonlabs/talonfire/internal/config"
	"github.com/talonlabs/talonfire/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent pool runs recorded on this machine",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	config.RegisterCommonFlags(cmd)
	cmd.Flags().IntP("count", "n", 10, "Number of runs to show (0 means all)")
	cmd.Flags().String("history-path", "", "Override the history file location")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	count, err := cmd.Flags().GetInt("count")
	if err != nil {
		return err
	}

	path := cfg.HistoryPath
	if path == "" {
		path, err = history.DefaultPath()
		if err != nil {
			return err
		}
	}

	entries, err := history.NewStore(path).Recent(count)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.JSONOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No recorded runs.")
		return nil
	}

	for _, entry := range entries {
		verdict := "✅"
		if !entry.Summary.Healthy() {
			verdict = "⚠️"
		}
		fmt.Fprintf(out, "%s  %s  %s  %dx%d  %d/%d ok (%.1f%%)  %s\n",
			verdict,
			entry.RunID,
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.Waves,
			entry.Concurrency,
			entry.Summary.TotalSuccess,
			entry.Summary.TotalRequests,
			entry.Summary.SuccessRate,
			entry.Endpoint,
		)
	}
	return nil
}
