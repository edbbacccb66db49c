package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/dorkscan/internal/netclient"
	"github.com/nao1215/dorkscan/internal/search"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "dorkscan"

	// DefaultNum is the number of results kept per query.
	DefaultNum = 5

	// MaxNum is the most results a query can ask for. The Custom Search
	// API stops paging at 100.
	MaxNum = 100

	// DefaultConcurrency is the number of queries in flight at once.
	DefaultConcurrency = 6

	// DefaultDelay is the pause each worker takes between its queries.
	DefaultDelay = 1500 * time.Millisecond

	// DefaultOutputDir receives results.jsonl, results.csv and snapshots.
	DefaultOutputDir = "gds_output"

	// DefaultDorksFile is the catalog looked up in the working directory
	// and then in the XDG config directory.
	DefaultDorksFile = "dorks.yaml"

	// DefaultTorHost and DefaultTorPort locate a local Tor SOCKS proxy.
	DefaultTorHost = "127.0.0.1"
	DefaultTorPort = 9050

	// DefaultTimeout bounds each HTTP request.
	DefaultTimeout = netclient.DefaultTimeout

	// DefaultTorStartupTimeout is how long the embedded Tor daemon may take
	// to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultMaxBodySize limits snapshot downloads.
	DefaultMaxBodySize = 5 * 1024 * 1024
)

// Config holds every option of a scan run. It is built once from the
// config file and flags and is read-only while the run is in progress.
type Config struct {
	// Categories selects catalog categories. Empty means all of them.
	Categories []string

	// Target restricts queries to one registrable domain. Empty means
	// queries run unscoped.
	Target string

	// Num is the number of results kept per query.
	Num int

	// Concurrency is the number of dispatcher workers.
	Concurrency int

	// Delay is the pause each worker takes between queries.
	Delay time.Duration

	// Backend is "auto", "api" or "scrape".
	Backend string

	// GoogleAPIKey and GoogleCX are the Custom Search credentials.
	GoogleAPIKey string
	GoogleCX     string

	// AllowSensitive lets sensitive dorks through the query builder.
	AllowSensitive bool

	// Snapshot saves the HTML of every result page.
	Snapshot bool

	// OutputDir receives the result files.
	OutputDir string

	// IgnoreSSL disables TLS certificate verification.
	IgnoreSSL bool

	// DorksFile is the catalog path.
	DorksFile string

	// ProxyURL routes traffic through an HTTP or SOCKS5 proxy.
	ProxyURL string

	// UseTor routes traffic through the Tor SOCKS proxy at TorHost:TorPort.
	UseTor  bool
	TorHost string
	TorPort int

	// EmbeddedTor starts a private Tor daemon for the run. It implies UseTor.
	EmbeddedTor       bool
	TorStartupTimeout time.Duration

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// UserAgent overrides the browser User-Agent sent with requests.
	UserAgent string

	// Headers are extra request headers.
	Headers map[string]string

	// MaxBodySize limits snapshot downloads. Zero means the default.
	MaxBodySize int64

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the config file to load. Empty means search for one.
	ConfigFilePath string

	// NoHistory disables recording the run in the history database.
	NoHistory bool

	// DBDir is the history database directory.
	DBDir string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Num:               DefaultNum,
		Concurrency:       DefaultConcurrency,
		Delay:             DefaultDelay,
		Backend:           string(search.SelectorAuto),
		OutputDir:         DefaultOutputDir,
		DorksFile:         DefaultDorksFile,
		TorHost:           DefaultTorHost,
		TorPort:           DefaultTorPort,
		TorStartupTimeout: DefaultTorStartupTimeout,
		Timeout:           DefaultTimeout,
		MaxBodySize:       DefaultMaxBodySize,
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for dorkscan, where the
// history database lives.
// On Linux: ~/.local/share/dorkscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for dorkscan.
// On Linux: ~/.config/dorkscan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Num < 1 || c.Num > MaxNum {
		return ErrInvalidNum
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Delay < 0 {
		return ErrInvalidDelay
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	sel, err := search.ParseSelector(c.Backend)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Backend)
	}
	if sel == search.SelectorAPI && !c.Credentials().Complete() {
		return ErrMissingCredentials
	}

	if c.ProxyURL != "" && c.TorEnabled() {
		return ErrConflictingProxy
	}
	if c.TorEnabled() && !c.EmbeddedTor && (c.TorPort < 1 || c.TorPort > 65535) {
		return ErrInvalidTorPort
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if strings.TrimSpace(c.DorksFile) == "" {
		return ErrNoDorksFile
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return ErrNoOutputDir
	}
	return nil
}

// Selector returns the parsed backend selector. Call Validate first.
func (c *Config) Selector() search.Selector {
	sel, err := search.ParseSelector(c.Backend)
	if err != nil {
		return search.SelectorAuto
	}
	return sel
}

// Credentials returns the Custom Search credentials.
func (c *Config) Credentials() search.Credentials {
	return search.Credentials{APIKey: c.GoogleAPIKey, EngineID: c.GoogleCX}
}

// TorEnabled reports whether traffic goes through Tor.
func (c *Config) TorEnabled() bool {
	return c.UseTor || c.EmbeddedTor
}

// HistoryEnabled reports whether the run should be recorded.
func (c *Config) HistoryEnabled() bool {
	return !c.NoHistory && c.DBDir != ""
}

// ResolveDorksFile returns the catalog path to load. An existing DorksFile
// is used as is. When the default name is missing from the working
// directory, the XDG config directory is tried next. Otherwise DorksFile is
// returned unchanged so the loader reports the missing file.
func (c *Config) ResolveDorksFile() string {
	if _, err := os.Stat(c.DorksFile); err == nil {
		return c.DorksFile
	}
	if c.DorksFile == DefaultDorksFile {
		candidate := filepath.Join(XDGConfigDir(), DefaultDorksFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return c.DorksFile
}
