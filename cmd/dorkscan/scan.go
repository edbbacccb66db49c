package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/nao1215/dorkscan/internal/catalog"
	"github.com/nao1215/dorkscan/internal/config"
	"github.com/nao1215/dorkscan/internal/database"
	"github.com/nao1215/dorkscan/internal/dispatch"
	"github.com/nao1215/dorkscan/internal/log"
	"github.com/nao1215/dorkscan/internal/model"
	"github.com/nao1215/dorkscan/internal/netclient"
	"github.com/nao1215/dorkscan/internal/output"
	"github.com/nao1215/dorkscan/internal/query"
	"github.com/nao1215/dorkscan/internal/search"
	"github.com/nao1215/dorkscan/internal/snapshot"
	"github.com/nao1215/dorkscan/internal/tor"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// errInterrupted is returned when a signal stops the run early.
	errInterrupted = errors.New("scan interrupted")

	// errBackendUnreachable is returned when every attempted query failed
	// with a network failure.
	errBackendUnreachable = errors.New("search backend unreachable: every query failed with a network failure")
)

// historySaveTimeout bounds recording a run after it has finished.
const historySaveTimeout = 10 * time.Second

// scanDeps holds the parts of a scan that tests replace.
type scanDeps struct {
	// backend overrides the backend chosen by search.Select.
	backend search.Backend
}

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run dork queries against a search backend",
		Long: `Scan expands the dork catalog into queries, optionally scoped to a target
domain, and runs them through the Google Custom Search API or DuckDuckGo.
Every result is appended to results.jsonl and results.csv in the output
directory.

Without --category every category in the catalog runs. Sensitive dorks
are skipped unless --allow-sensitive is given.

Examples:
  # Run the login panel dorks against example.com
  dorkscan scan -c login_panels -t example.com

  # Run several categories with the Custom Search API
  dorkscan scan -c login_panels,files -t example.com \
    --google-api-key KEY --google-cx CX

  # Force DuckDuckGo scraping through a local Tor proxy
  dorkscan scan -b scrape --tor -t example.com

  # Save a snapshot of every result page
  dorkscan scan -t example.com --snapshot

  # List the categories of the catalog
  dorkscan scan --list`,
		Args: cobra.NoArgs,
		RunE: runScanCmd,
	}

	// Query selection flags
	cmd.Flags().StringSliceP("category", "c", nil,
		"Dork categories to run (comma separated, default: all)")
	cmd.Flags().StringP("target", "t", "",
		"Target domain to scope every query to (e.g., example.com)")
	cmd.Flags().IntP("num", "n", config.DefaultNum,
		"Number of results kept per query")
	cmd.Flags().Bool("allow-sensitive", false,
		"Run dorks marked sensitive")
	cmd.Flags().String("dorks-file", config.DefaultDorksFile,
		"Dork catalog path")
	cmd.Flags().BoolP("list", "l", false,
		"List the catalog categories and exit")

	// Dispatch flags
	cmd.Flags().Int("concurrency", config.DefaultConcurrency,
		"Number of queries in flight at once")
	cmd.Flags().Float64("delay", config.DefaultDelay.Seconds(),
		"Seconds each worker waits between queries")

	// Backend flags
	cmd.Flags().StringP("backend", "b", string(search.SelectorAuto),
		"Search backend: auto, api or scrape")
	cmd.Flags().String("google-api-key", "",
		"Google Custom Search API key")
	cmd.Flags().String("google-cx", "",
		"Google Custom Search engine ID")

	// Output flags
	cmd.Flags().StringP("output-dir", "o", config.DefaultOutputDir,
		"Directory for results.jsonl, results.csv and snapshots")
	cmd.Flags().Bool("snapshot", false,
		"Save the HTML of every result page")
	cmd.Flags().Bool("no-history", false,
		"Do not record this run in the history database")

	// Network flags
	cmd.Flags().Bool("ignore-ssl", false,
		"Skip TLS certificate verification")
	cmd.Flags().String("proxy", "",
		"HTTP or SOCKS5 proxy URL (e.g., socks5h://127.0.0.1:9050)")
	cmd.Flags().Duration("timeout", config.DefaultTimeout,
		"Timeout for each HTTP request")
	cmd.Flags().String("user-agent", "",
		"User-Agent header sent with every request")

	// Tor flags
	cmd.Flags().Bool("tor", false,
		"Route traffic through a running Tor SOCKS proxy")
	cmd.Flags().String("tor-host", config.DefaultTorHost,
		"Tor SOCKS proxy host")
	cmd.Flags().Int("tor-port", config.DefaultTorPort,
		"Tor SOCKS proxy port")
	cmd.Flags().Bool("embedded-tor", false,
		"Start a private Tor daemon for this run")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration file
	cmd.Flags().String("config", "",
		"Configuration file path (default: .dorkscan in current or home directory)")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	con := newConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())

	list, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	if list {
		return listCategories(con, cfg.ResolveDorksFile())
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			con.Warnf("interrupt received, stopping after in-flight queries")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runScan(ctx, cfg, logger, con, scanDeps{})
}

// buildConfig layers defaults, the config file and explicitly set flags.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := &flagReader{fs: cmd.Flags()}

	flags.str("config", &cfg.ConfigFilePath)
	if flags.err != nil {
		return nil, flags.err
	}

	// A missing file is only an error when the path was given explicitly.
	explicitConfigPath := cfg.ConfigFilePath != ""
	if configPath := config.FindConfigFile(cfg.ConfigFilePath); configPath != "" {
		file, err := config.LoadConfigFile(configPath)
		switch {
		case err == nil:
			file.Apply(cfg)
		case errors.Is(err, config.ErrConfigNotFound) && !explicitConfigPath:
		default:
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, fmt.Errorf("config file not found: %s", cfg.ConfigFilePath)
	}

	flags.strSlice("category", &cfg.Categories)
	flags.str("target", &cfg.Target)
	flags.integer("num", &cfg.Num)
	flags.boolean("allow-sensitive", &cfg.AllowSensitive)
	flags.str("dorks-file", &cfg.DorksFile)
	flags.integer("concurrency", &cfg.Concurrency)
	flags.seconds("delay", &cfg.Delay)
	flags.str("backend", &cfg.Backend)
	flags.str("google-api-key", &cfg.GoogleAPIKey)
	flags.str("google-cx", &cfg.GoogleCX)
	flags.str("output-dir", &cfg.OutputDir)
	flags.boolean("snapshot", &cfg.Snapshot)
	flags.boolean("no-history", &cfg.NoHistory)
	flags.boolean("ignore-ssl", &cfg.IgnoreSSL)
	flags.str("proxy", &cfg.ProxyURL)
	flags.duration("timeout", &cfg.Timeout)
	flags.str("user-agent", &cfg.UserAgent)
	flags.boolean("tor", &cfg.UseTor)
	flags.str("tor-host", &cfg.TorHost)
	flags.integer("tor-port", &cfg.TorPort)
	flags.boolean("embedded-tor", &cfg.EmbeddedTor)
	flags.duration("tor-timeout", &cfg.TorStartupTimeout)
	if flags.err != nil {
		return nil, flags.err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// flagReader copies flags the user set onto config fields, so that values
// from the config file survive unless overridden. The first error sticks.
type flagReader struct {
	fs  *pflag.FlagSet
	err error
}

func (r *flagReader) changed(name string) bool {
	return r.err == nil && r.fs.Changed(name)
}

func (r *flagReader) str(name string, dst *string) {
	if !r.changed(name) {
		return
	}
	*dst, r.err = r.fs.GetString(name)
}

func (r *flagReader) strSlice(name string, dst *[]string) {
	if !r.changed(name) {
		return
	}
	*dst, r.err = r.fs.GetStringSlice(name)
}

func (r *flagReader) integer(name string, dst *int) {
	if !r.changed(name) {
		return
	}
	*dst, r.err = r.fs.GetInt(name)
}

func (r *flagReader) boolean(name string, dst *bool) {
	if !r.changed(name) {
		return
	}
	*dst, r.err = r.fs.GetBool(name)
}

func (r *flagReader) duration(name string, dst *time.Duration) {
	if !r.changed(name) {
		return
	}
	*dst, r.err = r.fs.GetDuration(name)
}

func (r *flagReader) seconds(name string, dst *time.Duration) {
	if !r.changed(name) {
		return
	}
	var secs float64
	secs, r.err = r.fs.GetFloat64(name)
	if r.err == nil {
		*dst = time.Duration(secs * float64(time.Second))
	}
}

// runScan loads the catalog, builds the queries and dispatches them.
func runScan(ctx context.Context, cfg *config.Config, logger *slog.Logger, con *console, deps scanDeps) error {
	target, err := query.NormalizeTarget(cfg.Target)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(cfg.ResolveDorksFile())
	if err != nil {
		return err
	}
	logger.Debug("catalog loaded",
		"path", cat.Path(),
		"categories", len(cat.Categories()),
		"dorks", cat.Len(),
	)

	plan := query.BuildCatalog(cat, cfg.Categories, target, cfg.AllowSensitive)
	reportPlan(con, plan)
	if len(plan.Queries) == 0 {
		con.Warnf("no queries to run")
		return nil
	}

	httpClient, stopTor, err := buildHTTPClient(ctx, cfg, logger, con)
	if err != nil {
		return err
	}
	defer stopTor()

	backend := deps.backend
	if backend == nil {
		backend, err = search.Select(cfg.Selector(), cfg.Credentials(), httpClient, search.WithLogger(logger))
		if err != nil {
			return err
		}
	}
	if q := plan.Queries[0]; q.HasTarget() {
		con.Infof("target: %s", q.TargetDomain)
	} else {
		con.Warnf("no target given, queries are not scoped to a domain")
	}
	con.Infof("backend: %s, %d queries, %d workers", backend.Name(), len(plan.Queries), cfg.Concurrency)

	writer, err := output.Open(cfg.OutputDir, output.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close result files", "error", err)
		}
	}()
	con.Infof("writing results to %s", writer.Dir())

	opts := []dispatch.Option{
		dispatch.WithConcurrency(cfg.Concurrency),
		dispatch.WithDelay(cfg.Delay),
		dispatch.WithCount(cfg.Num),
		dispatch.WithLogger(logger),
		dispatch.OnQueryDone(func(res dispatch.QueryResult) {
			printQueryResult(con, res)
		}),
	}
	if cfg.Snapshot {
		fetcher, err := snapshot.NewFetcher(httpClient, cfg.OutputDir,
			snapshot.WithMaxBodySize(cfg.MaxBodySize),
			snapshot.WithLogger(logger))
		if err != nil {
			return err
		}
		opts = append(opts, dispatch.WithCapturer(fetcher))
		con.Infof("saving page snapshots to %s", fetcher.Dir())
	}

	report, runErr := dispatch.New(backend, writer, opts...).Run(ctx, plan.Queries)
	interrupted := ctx.Err() != nil

	printRunSummary(con, report, writer)

	if cfg.HistoryEnabled() {
		run := newRunRecord(cfg, target, backend.Name(), selectedCategories(cat, cfg.Categories), report, interrupted)
		if err := saveHistory(cfg.DBDir, run); err != nil {
			logger.Warn("failed to record scan history", "error", err)
		} else {
			logger.Debug("recorded scan history", "run", run.ID)
		}
	}

	switch {
	case interrupted:
		return errInterrupted
	case runErr != nil:
		return fmt.Errorf("scan aborted: %w", runErr)
	case report.BackendUnreachable():
		return errBackendUnreachable
	}
	return nil
}

// buildHTTPClient creates the shared HTTP client, routed through Tor or a
// proxy when configured. The returned function stops an embedded Tor daemon.
func buildHTTPClient(ctx context.Context, cfg *config.Config, logger *slog.Logger, con *console) (*http.Client, func(), error) {
	stop := func() {}
	proxyURL := cfg.ProxyURL

	switch {
	case cfg.EmbeddedTor:
		con.Infof("starting embedded Tor daemon (this may take 1-3 minutes)...")
		et := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
		if err := et.Start(ctx); err != nil {
			return nil, stop, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		stop = func() {
			if err := et.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}
		client, err := et.Client(tor.DefaultCheckTimeout)
		if err != nil {
			stop()
			return nil, func() {}, err
		}
		if err := client.Check(ctx); err != nil {
			stop()
			return nil, func() {}, fmt.Errorf("embedded Tor proxy check failed: %w", err)
		}
		proxyURL = client.ProxyURL()
		con.Successf("embedded Tor ready at %s", client.Address())

	case cfg.UseTor:
		client, err := tor.NewClientFromHostPort(cfg.TorHost, cfg.TorPort, tor.DefaultCheckTimeout)
		if err != nil {
			return nil, stop, err
		}
		if err := client.Check(ctx); err != nil {
			return nil, stop, fmt.Errorf("tor proxy check failed (is Tor running at %s?): %w", client.Address(), err)
		}
		proxyURL = client.ProxyURL()
		con.Successf("using Tor proxy at %s", client.Address())
	}

	opts := []netclient.Option{
		netclient.WithProxy(proxyURL),
		netclient.WithInsecureSkipVerify(cfg.IgnoreSSL),
		netclient.WithTimeout(cfg.Timeout),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, netclient.WithUserAgent(cfg.UserAgent))
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.Headers)) {
		opts = append(opts, netclient.WithHeader(name, cfg.Headers[name]))
	}

	client, err := netclient.New(opts...)
	if err != nil {
		stop()
		return nil, func() {}, err
	}
	if cfg.IgnoreSSL {
		con.Warnf("TLS certificate verification is disabled")
	}
	return client, stop, nil
}

// reportPlan prints what the query builder selected and skipped.
func reportPlan(con *console, plan *query.Plan) {
	for _, name := range plan.Unknown {
		con.Errorf("category %q not found, skipping", name)
	}
	for _, name := range plan.Empty {
		con.Warnf("category %q has an empty dork list, skipping", name)
	}
	if total := plan.SkippedTotal(); total > 0 {
		for _, name := range slices.Sorted(maps.Keys(plan.SkippedSensitive)) {
			con.Warnf("%d sensitive dork(s) in %q skipped", plan.SkippedSensitive[name], name)
		}
		con.Warnf("%d sensitive dork(s) skipped in total, use --allow-sensitive to run them", total)
	}

	var order []string
	counts := make(map[string]int)
	for _, q := range plan.Queries {
		if _, ok := counts[q.Category]; !ok {
			order = append(order, q.Category)
		}
		counts[q.Category]++
	}
	for _, name := range order {
		con.Successf("running category %q (%d dorks)", name, counts[name])
	}
}

// printQueryResult prints one line per finished query.
func printQueryResult(con *console, res dispatch.QueryResult) {
	if res.Err != nil {
		if kind, ok := search.KindOf(res.Err); ok {
			con.Warnf("%s: %s (%s)", kind, res.Query.Text, log.ScrubText(res.Err.Error()))
			return
		}
		con.Warnf("%s: %s", res.Query.Text, log.ScrubText(res.Err.Error()))
		return
	}
	if res.Duplicates > 0 {
		con.Successf("%d result(s), %d duplicate(s): %s", res.Items, res.Duplicates, res.Query.Text)
		return
	}
	con.Successf("%d result(s): %s", res.Items, res.Query.Text)
}

// printRunSummary prints the totals of a run.
func printRunSummary(con *console, report *dispatch.Report, writer *output.Writer) {
	con.Printf("\n")
	con.Infof("queries: %d of %d attempted, %d failed",
		report.Attempted, report.Queries, len(report.Failures))
	con.Infof("results: %d written, %d duplicate(s) skipped", len(report.Items), report.Duplicates)

	byKind := report.FailuresByKind()
	for _, kind := range slices.Sorted(maps.Keys(byKind)) {
		con.Warnf("%d quer(ies) failed with %s", byKind[kind], kind)
	}
	if report.WriteErrors > 0 {
		con.Warnf("%d result(s) could not be written", report.WriteErrors)
	}
	if report.SnapshotErrors > 0 {
		con.Warnf("%d snapshot(s) could not be saved", report.SnapshotErrors)
	}
	con.Infof("output: %s, %s", writer.JSONLPath(), writer.CSVPath())
	con.Infof("duration: %s", report.Finished.Sub(report.Started).Round(time.Millisecond))
}

// listCategories prints the catalog without running anything.
func listCategories(con *console, path string) error {
	cat, err := catalog.Load(path)
	if err != nil {
		return err
	}

	con.Printf("Catalog: %s (%d categories, %d dorks)\n\n", cat.Path(), len(cat.Categories()), cat.Len())
	for _, name := range cat.Categories() {
		c, _ := cat.Category(name)
		var marks []string
		if c.Sensitive {
			marks = append(marks, "sensitive")
		} else if n := c.SensitiveCount(); n > 0 {
			marks = append(marks, fmt.Sprintf("%d sensitive", n))
		}
		if c.Risk != model.RiskNone {
			marks = append(marks, "risk: "+strings.ToLower(c.Risk.String()))
		}

		con.Printf("  %-20s %3d dorks", name, len(c.Entries))
		if len(marks) > 0 {
			con.Printf("  [%s]", strings.Join(marks, ", "))
		}
		con.Printf("\n")
		if c.Description != "" {
			con.Printf("  %-20s %s\n", "", c.Description)
		}
	}
	return nil
}

// selectedCategories returns the categories a run covered, as recorded in
// the history database.
func selectedCategories(cat *catalog.Catalog, requested []string) []string {
	if len(requested) == 0 {
		return cat.Categories()
	}
	var names []string
	for _, name := range requested {
		name = strings.TrimSpace(name)
		if cat.Has(name) && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

func newRunRecord(cfg *config.Config, target, backend string, categories []string, report *dispatch.Report, interrupted bool) *database.RunRecord {
	run := &database.RunRecord{
		Started:     report.Started,
		Finished:    report.Finished,
		Target:      target,
		Backend:     backend,
		Categories:  categories,
		OutputDir:   cfg.OutputDir,
		Queries:     report.Queries,
		Attempted:   report.Attempted,
		Results:     len(report.Items),
		Duplicates:  report.Duplicates,
		Interrupted: interrupted,
	}
	for _, f := range report.Failures {
		msg := ""
		if f.Err != nil {
			msg = log.ScrubText(f.Err.Error())
		}
		run.Failures = append(run.Failures, database.FailureRecord{
			Category: f.Query.Category,
			Query:    f.Query.Text,
			Kind:     string(f.Kind),
			Status:   f.Status,
			Message:  msg,
			Time:     f.Time,
		})
	}
	return run
}

// saveHistory records a run. It uses its own context so an interrupted
// scan is still recorded.
func saveHistory(dir string, run *database.RunRecord) error {
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), historySaveTimeout)
	defer cancel()
	return db.SaveRun(ctx, run)
}
