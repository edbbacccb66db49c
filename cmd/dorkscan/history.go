package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/dorkscan/internal/config"
	"github.com/nao1215/dorkscan/internal/database"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is the number of runs listed without --limit.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show previous scan runs",
		Long: `History lists the scan runs recorded in the history database, newest
first. Every run records its target, backend, categories, result counts and
the queries the backend failed to answer.

The database lives in the XDG data directory (~/.local/share/dorkscan).

Examples:
  # List the last 20 runs
  dorkscan history

  # Show one run with its failed queries
  dorkscan history --run 12

  # Dump every run as JSON
  dorkscan history --limit 0 --json`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Number of runs listed (0 lists all)")
	cmd.Flags().Int64P("run", "r", 0,
		"Show the run with this ID, including its failed queries")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	runID, err := cmd.Flags().GetInt64("run")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	out := cmd.OutOrStdout()

	// Listing history never creates the database.
	if _, err := os.Stat(filepath.Join(dbDir, database.FileName)); errors.Is(err, os.ErrNotExist) {
		if jsonOutput {
			_, err := fmt.Fprintln(out, "[]")
			return err
		}
		fmt.Fprintln(out, "No scan history found.")
		fmt.Fprintln(out, "\nUse 'dorkscan scan' to run a scan.")
		return nil
	}

	db, err := database.Open(dbDir, database.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if runID > 0 {
		run, err := db.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(out, newRunView(run, true))
		}
		printRun(out, run)
		return nil
	}

	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		views := make([]runView, 0, len(runs))
		for i := range runs {
			views = append(views, newRunView(&runs[i], false))
		}
		return writeJSON(out, views)
	}
	printRuns(out, runs)
	return nil
}

// runView is the JSON form of a recorded run.
type runView struct {
	ID          int64         `json:"id"`
	Started     time.Time     `json:"started"`
	Finished    time.Time     `json:"finished"`
	DurationMS  int64         `json:"duration_ms"`
	Target      string        `json:"target,omitempty"`
	Backend     string        `json:"backend"`
	Categories  []string      `json:"categories"`
	OutputDir   string        `json:"output_dir"`
	Queries     int           `json:"queries"`
	Attempted   int           `json:"attempted"`
	Results     int           `json:"results"`
	Duplicates  int           `json:"duplicates"`
	Failed      int           `json:"failed"`
	Interrupted bool          `json:"interrupted"`
	Failures    []failureView `json:"failures,omitempty"`
}

type failureView struct {
	Category string    `json:"category"`
	Query    string    `json:"query"`
	Kind     string    `json:"kind"`
	Status   int       `json:"status,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

func newRunView(run *database.RunRecord, withFailures bool) runView {
	v := runView{
		ID:          run.ID,
		Started:     run.Started,
		Finished:    run.Finished,
		DurationMS:  run.Duration().Milliseconds(),
		Target:      run.Target,
		Backend:     run.Backend,
		Categories:  run.Categories,
		OutputDir:   run.OutputDir,
		Queries:     run.Queries,
		Attempted:   run.Attempted,
		Results:     run.Results,
		Duplicates:  run.Duplicates,
		Failed:      run.FailureCount,
		Interrupted: run.Interrupted,
	}
	if withFailures {
		for _, f := range run.Failures {
			v.Failures = append(v.Failures, failureView(f))
		}
	}
	return v
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// printRuns prints one line per run.
func printRuns(w io.Writer, runs []database.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No scan history found.")
		fmt.Fprintln(w, "\nUse 'dorkscan scan' to run a scan.")
		return
	}

	fmt.Fprintf(w, "Scan history (%d runs):\n\n", len(runs))
	fmt.Fprintf(w, "  %-5s  %-19s  %-20s  %-10s  %7s  %7s  %6s\n",
		"ID", "Date", "Target", "Backend", "Queries", "Results", "Failed")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 86))

	for _, run := range runs {
		target := run.Target
		if target == "" {
			target = "(unscoped)"
		}
		status := ""
		if run.Interrupted {
			status = "  interrupted"
		}
		fmt.Fprintf(w, "  %-5d  %-19s  %-20s  %-10s  %7d  %7d  %6d%s\n",
			run.ID,
			run.Started.Local().Format("2006-01-02 15:04:05"),
			shorten(target, 20),
			shorten(run.Backend, 10),
			run.Attempted,
			run.Results,
			run.FailureCount,
			status,
		)
	}

	fmt.Fprintln(w, "\nUse 'dorkscan history --run <id>' to see the failed queries of a run.")
}

// printRun prints the details of one run.
func printRun(w io.Writer, run *database.RunRecord) {
	target := run.Target
	if target == "" {
		target = "(unscoped)"
	}

	fmt.Fprintf(w, "Run #%d\n\n", run.ID)
	fmt.Fprintf(w, "  Started:     %s\n", run.Started.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  Duration:    %s\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  Target:      %s\n", target)
	fmt.Fprintf(w, "  Backend:     %s\n", run.Backend)
	fmt.Fprintf(w, "  Categories:  %s\n", strings.Join(run.Categories, ", "))
	fmt.Fprintf(w, "  Output:      %s\n", run.OutputDir)
	fmt.Fprintf(w, "  Queries:     %d of %d attempted\n", run.Attempted, run.Queries)
	fmt.Fprintf(w, "  Results:     %d (%d duplicates skipped)\n", run.Results, run.Duplicates)
	if run.Interrupted {
		fmt.Fprintln(w, "  Status:      interrupted")
	}

	if len(run.Failures) == 0 {
		fmt.Fprintln(w, "\nNo failed queries.")
		return
	}

	fmt.Fprintf(w, "\nFailed queries (%d):\n\n", len(run.Failures))
	for _, f := range run.Failures {
		kind := f.Kind
		if f.Status != 0 {
			kind = fmt.Sprintf("%s %d", f.Kind, f.Status)
		}
		fmt.Fprintf(w, "  [%s] %s: %s\n", kind, f.Category, f.Query)
		if f.Message != "" {
			fmt.Fprintf(w, "      %s\n", f.Message)
		}
	}
}

// shorten truncates s to n runes, marking the cut with "~".
func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}
