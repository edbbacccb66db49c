package main

import (
	"log/slog"
	"os"

	"github.com/nao1215/dorkscan/internal/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for dorkscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dorkscan",
		Short: "Search-engine dork scanner for authorized reconnaissance",
		Long: `dorkscan expands a catalog of search-engine dorks against a target domain,
runs them through the Google Custom Search API or DuckDuckGo, and records
every result to results.jsonl and results.csv.

Only scan domains you are authorized to assess. Dorks marked sensitive are
skipped unless --allow-sensitive is given.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write log records as JSON")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewAnalyzeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewTorCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		newConsole(os.Stdout, os.Stderr).Errorf("%v", err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	return getPersistentBool(cmd, "verbose")
}

// getPersistentBool reads a root persistent flag from cmd, falling back to
// the root when cmd does not inherit it.
func getPersistentBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// setupLogger creates the credential-masking logger and makes it the default.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	verbose := getVerboseFlag(cmd)
	logger := log.NewSecureLogger(cmd.ErrOrStderr(), verbose)
	if getPersistentBool(cmd, "log-json") {
		logger = log.NewSecureJSONLogger(cmd.ErrOrStderr(), verbose)
	}
	slog.SetDefault(logger)
	return logger
}
