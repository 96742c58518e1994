package configinfra

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Defaults
const (
	DefaultBaseName        = "gbnf-engine"
	DefaultLanguageID      = "gbnf"
	DefaultExtension       = ".gbnf"
	DefaultReleaseBaseURL  = "https://github.com/gbnf-dev/gbnf-lsp/releases/download"
	DefaultDownloadTimeout = 5 * time.Minute
	DefaultStartTimeout    = 10 * time.Second
	DefaultStopTimeout     = 2 * time.Second
	DefaultChannelName     = "GBNF LSP"
	ManifestFileName       = "package.json"
)

// LogConfig configures the output channel's optional log file
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Config is the effective client configuration
type Config struct {
	InstallRoot     string        `yaml:"install_root"`
	BaseName        string        `yaml:"base_name"`
	LanguageID      string        `yaml:"language_id"`
	Extensions      []string      `yaml:"extensions"`
	ReleaseBaseURL  string        `yaml:"release_base_url"`
	ManifestPath    string        `yaml:"manifest_path"`
	Version         string        `yaml:"version"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	StartTimeout    time.Duration `yaml:"start_timeout"`
	StopTimeout     time.Duration `yaml:"stop_timeout"`
	Log             LogConfig     `yaml:"log"`
	Debug           bool          `yaml:"debug"`

	sources Snapshot
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		InstallRoot:     defaultInstallRoot(),
		BaseName:        DefaultBaseName,
		LanguageID:      DefaultLanguageID,
		Extensions:      []string{DefaultExtension},
		ReleaseBaseURL:  DefaultReleaseBaseURL,
		DownloadTimeout: DefaultDownloadTimeout,
		StartTimeout:    DefaultStartTimeout,
		StopTimeout:     DefaultStopTimeout,
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func defaultInstallRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "gbnf-client")
	}
	return filepath.Join(os.TempDir(), "gbnf-client")
}

// DefaultConfigPath returns $GBNF_CLIENT_CONFIG or the per-user config file
func DefaultConfigPath() string {
	if path := os.Getenv("GBNF_CLIENT_CONFIG"); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gbnf-client", "config.yaml")
}

// EffectiveManifestPath returns the manifest location, defaulting to the
// install root.
func (c *Config) EffectiveManifestPath() string {
	if c.ManifestPath != "" {
		return c.ManifestPath
	}
	return filepath.Join(c.InstallRoot, ManifestFileName)
}

// LanguageFor returns the language id for a file path, or "" when its
// extension is not configured.
func (c *Config) LanguageFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range c.Extensions {
		if strings.ToLower(candidate) == ext {
			return c.LanguageID
		}
	}
	return ""
}

// Sources returns the winning entry for every key that was set by a loader
func (c *Config) Sources() Snapshot {
	out := make(Snapshot, len(c.sources))
	for k, v := range c.sources {
		out[k] = v
	}
	return out
}

// Validate checks the configuration for values that can never work
func (c *Config) Validate() error {
	if strings.TrimSpace(c.InstallRoot) == "" {
		return fmt.Errorf("install root cannot be empty")
	}
	if strings.TrimSpace(c.BaseName) == "" {
		return fmt.Errorf("base name cannot be empty")
	}
	if strings.ContainsAny(c.BaseName, `/\`) {
		return fmt.Errorf("base name cannot contain path separators: %s", c.BaseName)
	}
	if strings.TrimSpace(c.LanguageID) == "" {
		return fmt.Errorf("language id cannot be empty")
	}
	if err := validateReleaseURL(c.ReleaseBaseURL); err != nil {
		return err
	}
	if c.DownloadTimeout <= 0 {
		return fmt.Errorf("download timeout must be positive, got %s", c.DownloadTimeout)
	}
	if c.StartTimeout <= 0 {
		return fmt.Errorf("start timeout must be positive, got %s", c.StartTimeout)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("stop timeout must be positive, got %s", c.StopTimeout)
	}
	return nil
}

func validateReleaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("release base URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid release base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("release base URL must include host")
	}
	return nil
}
