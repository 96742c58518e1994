package configinfra

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseName, cfg.BaseName)
	assert.Equal(t, DefaultLanguageID, cfg.LanguageID)
	assert.Equal(t, []string{".gbnf"}, cfg.Extensions)
	assert.Equal(t, DefaultStopTimeout, cfg.StopTimeout)
	assert.Equal(t, filepath.Join(cfg.InstallRoot, "package.json"), cfg.EffectiveManifestPath())
	assert.Empty(t, cfg.Sources())
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(context.Background(), NewFileLoader(filepath.Join(t.TempDir(), "absent.yaml")))
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseName, cfg.BaseName)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfigFile(t, `
install_root: /opt/gbnf
base_name: grammar-server
extensions: [".gbnf", ".grammar"]
release_base_url: https://mirror.example.com/releases/download
version: 2.0.1
stop_timeout: 5s
debug: true
log:
  file: /var/log/gbnf.log
  max_backups: 7
`)

	cfg, err := Load(context.Background(), NewFileLoader(path))
	require.NoError(t, err)

	assert.Equal(t, "/opt/gbnf", cfg.InstallRoot)
	assert.Equal(t, "grammar-server", cfg.BaseName)
	assert.Equal(t, []string{".gbnf", ".grammar"}, cfg.Extensions)
	assert.Equal(t, "https://mirror.example.com/releases/download", cfg.ReleaseBaseURL)
	assert.Equal(t, "2.0.1", cfg.Version)
	assert.Equal(t, 5*time.Second, cfg.StopTimeout)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "/var/log/gbnf.log", cfg.Log.File)
	assert.Equal(t, 7, cfg.Log.MaxBackups)
	assert.Equal(t, 28, cfg.Log.MaxAgeDays, "unset nested values keep defaults")
	assert.Equal(t, filepath.Join("/opt/gbnf", "package.json"), cfg.EffectiveManifestPath())

	sources := cfg.Sources()
	assert.Equal(t, "file", sources["base_name"].Source)
	assert.Equal(t, path, sources["base_name"].SourcePath)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfigFile(t, "base_name: from-file\nlanguage_id: file-lang\nversion: 1.0.0\n")
	env := NewEnvLoaderFrom(map[string]string{
		"GBNF_BASE_NAME": "from-env",
		"GBNF_VERSION":   "2.0.0",
	})
	flags := NewFlagLoader()
	flags.Set("version", "server-version", "3.0.0")

	cfg, err := Load(context.Background(), flags, NewFileLoader(path), env)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.BaseName)
	assert.Equal(t, "file-lang", cfg.LanguageID)
	assert.Equal(t, "3.0.0", cfg.Version)
	assert.Equal(t, "--server-version", cfg.Sources()["version"].SourcePath)
}

func TestEnvLoader_ParsesTypedValues(t *testing.T) {
	env := NewEnvLoaderFrom(map[string]string{
		"GBNF_EXTENSIONS":       ".gbnf, .g ,",
		"GBNF_DOWNLOAD_TIMEOUT": "90s",
		"GBNF_DEBUG":            "true",
	})

	cfg, err := Load(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, []string{".gbnf", ".g"}, cfg.Extensions)
	assert.Equal(t, 90*time.Second, cfg.DownloadTimeout)
	assert.True(t, cfg.Debug)
}

func TestEnvLoader_RejectsMalformedValues(t *testing.T) {
	_, err := Load(context.Background(), NewEnvLoaderFrom(map[string]string{"GBNF_STOP_TIMEOUT": "soon"}))
	assert.Error(t, err)
}

func TestFileLoader_RejectsMalformedFile(t *testing.T) {
	_, err := Load(context.Background(), NewFileLoader(writeConfigFile(t, "base_name: [unterminated")))
	assert.Error(t, err)

	_, err = Load(context.Background(), NewFileLoader(writeConfigFile(t, "stop_timeout: forever\n")))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"EmptyBaseName", func(c *Config) { c.BaseName = "" }},
		{"BaseNameWithSeparator", func(c *Config) { c.BaseName = "../engine" }},
		{"EmptyLanguage", func(c *Config) { c.LanguageID = " " }},
		{"FTPReleaseURL", func(c *Config) { c.ReleaseBaseURL = "ftp://example.com/releases" }},
		{"ReleaseURLWithoutHost", func(c *Config) { c.ReleaseBaseURL = "https://" }},
		{"ZeroDownloadTimeout", func(c *Config) { c.DownloadTimeout = 0 }},
		{"NegativeStopTimeout", func(c *Config) { c.StopTimeout = -time.Second }},
		{"ZeroStartTimeout", func(c *Config) { c.StartTimeout = 0 }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_LanguageFor(t *testing.T) {
	cfg := Default()
	cfg.Extensions = []string{".gbnf", ".GRAMMAR"}

	assert.Equal(t, "gbnf", cfg.LanguageFor("/work/json.gbnf"))
	assert.Equal(t, "gbnf", cfg.LanguageFor("/work/c.grammar"))
	assert.Equal(t, "", cfg.LanguageFor("/work/readme.md"))
}
