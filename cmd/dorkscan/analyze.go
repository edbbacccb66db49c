package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nao1215/dorkscan/internal/analyze"
	"github.com/nao1215/dorkscan/internal/config"
	"github.com/nao1215/dorkscan/internal/report"
	"github.com/spf13/cobra"
)

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [results-file-or-dir]",
		Short: "Summarize a result set",
		Long: `Analyze reads results.jsonl or results.csv and prints the number of results
per category, the most frequent domains and whether any result came from a
sensitive dork or matched the credential pattern.

The argument may be a result file or an output directory. It defaults to
the default output directory (gds_output).

Examples:
  # Summarize the default output directory
  dorkscan analyze

  # Summarize a CSV file and list every record
  dorkscan analyze scans/acme/results.csv --details

  # Write a Markdown report
  dorkscan analyze --markdown -o report.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAnalyzeCmd,
	}

	cmd.Flags().BoolP("json", "j", false,
		"Output a JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output a Markdown report (mutually exclusive with --json)")
	cmd.Flags().Int("top", report.DefaultTop,
		"Number of domains listed")
	cmd.Flags().Bool("details", false,
		"List every record")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to a file instead of stdout")
	cmd.Flags().Bool("no-color", false,
		"Disable colored output")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	path := config.DefaultOutputDir
	if len(args) == 1 {
		path = args[0]
	}

	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOut, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	top, err := cmd.Flags().GetInt("top")
	if err != nil {
		return err
	}
	details, err := cmd.Flags().GetBool("details")
	if err != nil {
		return err
	}
	reportFile, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	noColor, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return err
	}

	setupLogger(cmd)

	file, records, err := analyze.Load(path)
	if err != nil {
		return err
	}
	summary := analyze.Summarize(records)
	summary.Source = file

	var out io.Writer = cmd.OutOrStdout()
	if reportFile != "" {
		f, err := createReportFile(reportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	opts := []report.Option{report.WithTop(top)}
	if details {
		opts = append(opts, report.WithDetails(records))
	}

	var w report.Writer
	switch {
	case jsonOut:
		w = report.NewJSONWriter(out, getVersion(), append(opts, report.WithPrettyPrint())...)
	case markdownOut:
		w = report.NewMarkdownWriter(out, opts...)
	default:
		color := !noColor && reportFile == ""
		w = report.NewSimpleWriter(out, append(opts, report.WithColor(color))...)
	}

	if _, err := w.Write(summary); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// createReportFile creates or truncates path. Reports list URLs that may be
// sensitive, so the file is readable by the owner only.
func createReportFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // user-provided report path
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
