package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir keeps .env and config.yaml lookups away from the real
// working directory and home.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("GITHUB_TOKEN", "")
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := inTempDir(t)

	cfg, err := Load(New(), "")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".repolens", "index.db"), cfg.DB)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama)
	assert.Equal(t, "nomic-embed-text", cfg.Model)
	assert.Equal(t, "qwen3:8b", cfg.ChatModel)
	assert.Equal(t, "main", cfg.Branch)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 2000, cfg.MaxChunkSize)
	assert.Equal(t, 2000, cfg.MaxAnswerTokens)
	assert.InDelta(t, 0.3, cfg.Temperature, 1e-9)
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	inTempDir(t)
	t.Setenv("REPOLENS_CHAT_MODEL", "llama3")
	t.Setenv("REPOLENS_BATCH_SIZE", "4")

	cfg, err := Load(New(), "")

	require.NoError(t, err)
	assert.Equal(t, "llama3", cfg.ChatModel)
	assert.Equal(t, 4, cfg.BatchSize)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("REPOLENS_BRANCH=develop\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("REPOLENS_BRANCH") })

	cfg, err := Load(New(), "")

	require.NoError(t, err)
	assert.Equal(t, "develop", cfg.Branch)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: mxbai-embed-large\nworkers: 2\n"), 0o644))

	cfg, err := Load(New(), path)

	require.NoError(t, err)
	assert.Equal(t, "mxbai-embed-large", cfg.Model)
	assert.Equal(t, 2, cfg.Workers)
}

func TestLoad_GitHubTokenFallback(t *testing.T) {
	inTempDir(t)
	t.Setenv("GITHUB_TOKEN", "ghp_fallback")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "ghp_fallback", cfg.GitHubToken)

	t.Setenv("REPOLENS_GITHUB_TOKEN", "ghp_explicit")
	cfg, err = Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "ghp_explicit", cfg.GitHubToken)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	dir := inTempDir(t)

	_, err := Load(New(), filepath.Join(dir, "nope.yaml"))

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DB: "/tmp/x.db", Store: "sqlite", Workers: 1, BatchSize: 1,
			MaxChunkSize: 100, EmbedCacheSize: 1, MaxAnswerTokens: 1, Temperature: 0.3,
		}
	}
	cases := map[string]struct {
		mutate  func(c *Config)
		wantErr string
	}{
		"valid":            {mutate: func(c *Config) {}},
		"zero workers":     {mutate: func(c *Config) { c.Workers = 0 }, wantErr: "workers must be positive"},
		"negative batch":   {mutate: func(c *Config) { c.BatchSize = -1 }, wantErr: "batch_size must be positive"},
		"unknown store":    {mutate: func(c *Config) { c.Store = "mongo" }, wantErr: "unknown store"},
		"postgres w/o dsn": {mutate: func(c *Config) { c.Store = "postgres" }, wantErr: "postgres_dsn is required"},
		"postgres ok": {mutate: func(c *Config) {
			c.Store = "postgres"
			c.PostgresDSN = "postgres://localhost/repolens"
		}},
		"hot temperature": {mutate: func(c *Config) { c.Temperature = 3 }, wantErr: "temperature"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
