// Package config resolves settings from flags, REPOLENS_* environment
// variables, an optional config file and defaults, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "REPOLENS"

// Config holds every runtime setting.
type Config struct {
	DB              string  `mapstructure:"db"`
	Store           string  `mapstructure:"store"`
	PostgresDSN     string  `mapstructure:"postgres_dsn"`
	Ollama          string  `mapstructure:"ollama"`
	Model           string  `mapstructure:"model"`
	ChatModel       string  `mapstructure:"chat_model"`
	Branch          string  `mapstructure:"branch"`
	GitHubToken     string  `mapstructure:"github_token"`
	Workers         int     `mapstructure:"workers"`
	BatchSize       int     `mapstructure:"batch_size"`
	MaxChunkSize    int     `mapstructure:"max_chunk_size"`
	EmbedCacheSize  int     `mapstructure:"embed_cache_size"`
	MaxAnswerTokens int     `mapstructure:"max_answer_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	LogFile         string  `mapstructure:"log_file"`
	LogLevel        string  `mapstructure:"log_level"`
	Addr            string  `mapstructure:"addr"`
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db", filepath.Join("~", ".repolens", "index.db"))
	v.SetDefault("store", "sqlite")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("ollama", "http://localhost:11434")
	v.SetDefault("model", "nomic-embed-text")
	v.SetDefault("chat_model", "qwen3:8b")
	v.SetDefault("branch", "main")
	v.SetDefault("github_token", "")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("batch_size", 10)
	v.SetDefault("max_chunk_size", 2000)
	v.SetDefault("embed_cache_size", 10000)
	v.SetDefault("max_answer_tokens", 2000)
	v.SetDefault("temperature", 0.3)
	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("addr", ":8080")
}

// Load reads .env (if present) and the config file, then decodes and
// validates the result. An empty cfgFile searches ~/.repolens and the
// working directory for config.{yaml,json,toml}.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".repolens"))
		}
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.GitHubToken == "" {
		cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	}
	cfg.DB = expandHome(cfg.DB)
	cfg.LogFile = expandHome(cfg.LogFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks sizes and backend settings.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"workers":           c.Workers,
		"batch_size":        c.BatchSize,
		"max_chunk_size":    c.MaxChunkSize,
		"embed_cache_size":  c.EmbedCacheSize,
		"max_answer_tokens": c.MaxAnswerTokens,
	}
	for _, key := range []string{"workers", "batch_size", "max_chunk_size", "embed_cache_size", "max_answer_tokens"} {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, positive[key]))
		}
	}
	switch c.Store {
	case "sqlite":
		if c.DB == "" {
			errs = append(errs, errors.New("db path is required for the sqlite store"))
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q (want sqlite or postgres)", c.Store))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2], got %g", c.Temperature))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
