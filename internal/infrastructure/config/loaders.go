package configinfra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source priorities; a lower number wins
const (
	PriorityFlag = 1
	PriorityEnv  = 2
	PriorityFile = 3
)

// Entry is one configuration value together with where it came from
type Entry struct {
	Key        string
	Value      interface{}
	Source     string
	SourcePath string
	Priority   int
}

// Snapshot maps configuration keys to entries
type Snapshot map[string]Entry

// Loader produces a snapshot from one configuration source
type Loader interface {
	Name() string
	Load(ctx context.Context) (Snapshot, error)
}

// Load builds the effective configuration from defaults and the given loaders,
// then validates it.
func Load(ctx context.Context, loaders ...Loader) (*Config, error) {
	cfg := Default()
	merged := make(Snapshot)

	for _, loader := range loaders {
		snap, err := loader.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s configuration: %w", loader.Name(), err)
		}
		for key, entry := range snap {
			if current, ok := merged[key]; ok && current.Priority <= entry.Priority {
				continue
			}
			merged[key] = entry
		}
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := cfg.set(merged[key]); err != nil {
			return nil, err
		}
	}
	cfg.sources = merged

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) set(entry Entry) error {
	wrong := func() error {
		return fmt.Errorf("invalid value for %s from %s (%s): %v", entry.Key, entry.Source, entry.SourcePath, entry.Value)
	}

	switch entry.Key {
	case "install_root", "base_name", "language_id", "release_base_url", "manifest_path", "version", "log.file":
		s, ok := entry.Value.(string)
		if !ok {
			return wrong()
		}
		switch entry.Key {
		case "install_root":
			c.InstallRoot = s
		case "base_name":
			c.BaseName = s
		case "language_id":
			c.LanguageID = s
		case "release_base_url":
			c.ReleaseBaseURL = s
		case "manifest_path":
			c.ManifestPath = s
		case "version":
			c.Version = s
		case "log.file":
			c.Log.File = s
		}
	case "extensions":
		exts, ok := entry.Value.([]string)
		if !ok {
			return wrong()
		}
		c.Extensions = exts
	case "download_timeout", "start_timeout", "stop_timeout":
		d, ok := entry.Value.(time.Duration)
		if !ok {
			return wrong()
		}
		switch entry.Key {
		case "download_timeout":
			c.DownloadTimeout = d
		case "start_timeout":
			c.StartTimeout = d
		case "stop_timeout":
			c.StopTimeout = d
		}
	case "log.max_size_mb", "log.max_backups", "log.max_age_days":
		n, ok := entry.Value.(int)
		if !ok {
			return wrong()
		}
		switch entry.Key {
		case "log.max_size_mb":
			c.Log.MaxSizeMB = n
		case "log.max_backups":
			c.Log.MaxBackups = n
		case "log.max_age_days":
			c.Log.MaxAgeDays = n
		}
	case "log.compress", "debug":
		b, ok := entry.Value.(bool)
		if !ok {
			return wrong()
		}
		if entry.Key == "debug" {
			c.Debug = b
		} else {
			c.Log.Compress = b
		}
	default:
		return fmt.Errorf("unknown configuration key %q from %s", entry.Key, entry.Source)
	}
	return nil
}

// FileLoader reads a YAML configuration file. A missing file yields an empty snapshot.
type FileLoader struct {
	path string
}

func NewFileLoader(path string) *FileLoader { return &FileLoader{path: path} }

func (l *FileLoader) Name() string { return "file" }

func (l *FileLoader) Load(ctx context.Context) (Snapshot, error) {
	snap := make(Snapshot)
	if l.path == "" {
		return snap, nil
	}

	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Pointers distinguish "absent" from zero values.
	var raw struct {
		InstallRoot     *string   `yaml:"install_root"`
		BaseName        *string   `yaml:"base_name"`
		LanguageID      *string   `yaml:"language_id"`
		Extensions      *[]string `yaml:"extensions"`
		ReleaseBaseURL  *string   `yaml:"release_base_url"`
		ManifestPath    *string   `yaml:"manifest_path"`
		Version         *string   `yaml:"version"`
		DownloadTimeout *string   `yaml:"download_timeout"`
		StartTimeout    *string   `yaml:"start_timeout"`
		StopTimeout     *string   `yaml:"stop_timeout"`
		Debug           *bool     `yaml:"debug"`
		Log             *struct {
			File       *string `yaml:"file"`
			MaxSizeMB  *int    `yaml:"max_size_mb"`
			MaxBackups *int    `yaml:"max_backups"`
			MaxAgeDays *int    `yaml:"max_age_days"`
			Compress   *bool   `yaml:"compress"`
		} `yaml:"log"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", l.path, err)
	}

	add := func(key string, v interface{}) {
		snap[key] = Entry{Key: key, Value: v, Source: l.Name(), SourcePath: l.path, Priority: PriorityFile}
	}
	addString := func(key string, v *string) {
		if v != nil {
			add(key, *v)
		}
	}
	addDuration := func(key string, v *string) error {
		if v == nil {
			return nil
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s in %s: %w", key, l.path, err)
		}
		add(key, d)
		return nil
	}

	addString("install_root", raw.InstallRoot)
	addString("base_name", raw.BaseName)
	addString("language_id", raw.LanguageID)
	addString("release_base_url", raw.ReleaseBaseURL)
	addString("manifest_path", raw.ManifestPath)
	addString("version", raw.Version)
	if raw.Extensions != nil {
		add("extensions", *raw.Extensions)
	}
	for key, v := range map[string]*string{
		"download_timeout": raw.DownloadTimeout,
		"start_timeout":    raw.StartTimeout,
		"stop_timeout":     raw.StopTimeout,
	} {
		if err := addDuration(key, v); err != nil {
			return nil, err
		}
	}
	if raw.Debug != nil {
		add("debug", *raw.Debug)
	}
	if raw.Log != nil {
		addString("log.file", raw.Log.File)
		if raw.Log.MaxSizeMB != nil {
			add("log.max_size_mb", *raw.Log.MaxSizeMB)
		}
		if raw.Log.MaxBackups != nil {
			add("log.max_backups", *raw.Log.MaxBackups)
		}
		if raw.Log.MaxAgeDays != nil {
			add("log.max_age_days", *raw.Log.MaxAgeDays)
		}
		if raw.Log.Compress != nil {
			add("log.compress", *raw.Log.Compress)
		}
	}

	return snap, nil
}

// EnvLoader reads GBNF_* environment variables
type EnvLoader struct {
	lookup func(string) (string, bool)
}

func NewEnvLoader() *EnvLoader { return &EnvLoader{lookup: os.LookupEnv} }

// NewEnvLoaderFrom reads variables from a fixed map instead of the process environment
func NewEnvLoaderFrom(env map[string]string) *EnvLoader {
	return &EnvLoader{lookup: func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}}
}

func (l *EnvLoader) Name() string { return "env" }

func (l *EnvLoader) Load(ctx context.Context) (Snapshot, error) {
	snap := make(Snapshot)
	var errs []error

	add := func(key, field string, convert func(string) (interface{}, error)) {
		v, ok := l.lookup(key)
		if !ok || v == "" {
			return
		}
		val := interface{}(v)
		if convert != nil {
			converted, err := convert(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			val = converted
		}
		snap[field] = Entry{Key: field, Value: val, Source: l.Name(), SourcePath: key, Priority: PriorityEnv}
	}
	duration := func(s string) (interface{}, error) { return time.ParseDuration(s) }
	boolean := func(s string) (interface{}, error) { return strconv.ParseBool(s) }
	list := func(s string) (interface{}, error) {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}

	add("GBNF_INSTALL_ROOT", "install_root", nil)
	add("GBNF_BASE_NAME", "base_name", nil)
	add("GBNF_LANGUAGE_ID", "language_id", nil)
	add("GBNF_EXTENSIONS", "extensions", list)
	add("GBNF_RELEASE_BASE_URL", "release_base_url", nil)
	add("GBNF_MANIFEST_PATH", "manifest_path", nil)
	add("GBNF_VERSION", "version", nil)
	add("GBNF_DOWNLOAD_TIMEOUT", "download_timeout", duration)
	add("GBNF_START_TIMEOUT", "start_timeout", duration)
	add("GBNF_STOP_TIMEOUT", "stop_timeout", duration)
	add("GBNF_LOG_FILE", "log.file", nil)
	add("GBNF_DEBUG", "debug", boolean)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return snap, nil
}

// FlagLoader holds values set explicitly on the command line
type FlagLoader struct {
	values Snapshot
}

func NewFlagLoader() *FlagLoader { return &FlagLoader{values: make(Snapshot)} }

func (l *FlagLoader) Name() string { return "flags" }

// Set records a flag value for key
func (l *FlagLoader) Set(key, flag string, value interface{}) {
	l.values[key] = Entry{Key: key, Value: value, Source: l.Name(), SourcePath: "--" + flag, Priority: PriorityFlag}
}

func (l *FlagLoader) Load(ctx context.Context) (Snapshot, error) {
	out := make(Snapshot, len(l.values))
	for k, v := range l.values {
		out[k] = v
	}
	return out, nil
}

var (
	_ Loader = (*FileLoader)(nil)
	_ Loader = (*EnvLoader)(nil)
	_ Loader = (*FlagLoader)(nil)
)
