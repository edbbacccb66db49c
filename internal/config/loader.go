package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".dorkscan"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the structure of the .dorkscan configuration file. Every field
// is optional; zero values leave the corresponding default untouched.
type File struct {
	DorksFile      string            `yaml:"dorks_file,omitempty"`
	OutputDir      string            `yaml:"output_dir,omitempty"`
	Categories     []string          `yaml:"categories,omitempty"`
	Target         string            `yaml:"target,omitempty"`
	Num            int               `yaml:"num,omitempty"`
	Concurrency    int               `yaml:"concurrency,omitempty"`
	Delay          time.Duration     `yaml:"delay,omitempty"`
	Backend        string            `yaml:"backend,omitempty"`
	Google         GoogleFile        `yaml:"google,omitempty"`
	AllowSensitive bool              `yaml:"allow_sensitive,omitempty"`
	Snapshot       bool              `yaml:"snapshot,omitempty"`
	IgnoreSSL      bool              `yaml:"ignore_ssl,omitempty"`
	Proxy          string            `yaml:"proxy,omitempty"`
	Tor            TorFile           `yaml:"tor,omitempty"`
	Timeout        time.Duration     `yaml:"timeout,omitempty"`
	UserAgent      string            `yaml:"user_agent,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	MaxBodySize    int64             `yaml:"max_body_size,omitempty"`
	History        HistoryFile       `yaml:"history,omitempty"`
}

// GoogleFile holds the Custom Search credentials.
type GoogleFile struct {
	APIKey string `yaml:"api_key,omitempty"`
	CX     string `yaml:"cx,omitempty"`
}

// TorFile holds the Tor routing settings.
type TorFile struct {
	Enabled        bool          `yaml:"enabled,omitempty"`
	Host           string        `yaml:"host,omitempty"`
	Port           int           `yaml:"port,omitempty"`
	Embedded       bool          `yaml:"embedded,omitempty"`
	StartupTimeout time.Duration `yaml:"startup_timeout,omitempty"`
}

// HistoryFile controls the run history database.
type HistoryFile struct {
	// Enabled defaults to true when omitted.
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// LoadConfigFile loads a configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// Apply copies the values set in the file onto cfg.
func (cf *File) Apply(cfg *Config) {
	setString(&cfg.DorksFile, cf.DorksFile)
	setString(&cfg.OutputDir, cf.OutputDir)
	if len(cf.Categories) > 0 {
		cfg.Categories = append([]string(nil), cf.Categories...)
	}
	setString(&cfg.Target, cf.Target)
	setInt(&cfg.Num, cf.Num)
	setInt(&cfg.Concurrency, cf.Concurrency)
	if cf.Delay != 0 {
		cfg.Delay = cf.Delay
	}
	setString(&cfg.Backend, cf.Backend)
	setString(&cfg.GoogleAPIKey, cf.Google.APIKey)
	setString(&cfg.GoogleCX, cf.Google.CX)
	cfg.AllowSensitive = cfg.AllowSensitive || cf.AllowSensitive
	cfg.Snapshot = cfg.Snapshot || cf.Snapshot
	cfg.IgnoreSSL = cfg.IgnoreSSL || cf.IgnoreSSL
	setString(&cfg.ProxyURL, cf.Proxy)

	cfg.UseTor = cfg.UseTor || cf.Tor.Enabled
	cfg.EmbeddedTor = cfg.EmbeddedTor || cf.Tor.Embedded
	setString(&cfg.TorHost, cf.Tor.Host)
	setInt(&cfg.TorPort, cf.Tor.Port)
	if cf.Tor.StartupTimeout != 0 {
		cfg.TorStartupTimeout = cf.Tor.StartupTimeout
	}

	if cf.Timeout != 0 {
		cfg.Timeout = cf.Timeout
	}
	setString(&cfg.UserAgent, cf.UserAgent)
	if len(cf.Headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(cf.Headers))
		}
		for k, v := range cf.Headers {
			cfg.Headers[k] = v
		}
	}
	if cf.MaxBodySize != 0 {
		cfg.MaxBodySize = cf.MaxBodySize
	}

	if cf.History.Enabled != nil && !*cf.History.Enabled {
		cfg.NoHistory = true
	}
	setString(&cfg.DBDir, cf.History.Dir)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .dorkscan in the current directory
// 3. Look for .dorkscan in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
