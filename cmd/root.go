package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"repolens/internal/config"
	"repolens/internal/logging"
)

var (
	flagConfig  string
	flagProject string

	v      = config.New()
	cfg    *config.Config
	logger *slog.Logger
	logOut io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "repolens",
	Short:         "Index code repositories and ask questions about them",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(v, flagConfig)
		if err != nil {
			return err
		}
		cfg = c
		// Front ends that own the terminal log to the file only.
		newLogger := logging.New
		if cmd.Annotations["terminal"] == "owned" {
			newLogger = logging.NewFile
		}
		logger, logOut, err = newLogger(cfg.LogLevel, cfg.LogFile)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logOut != nil {
			return logOut.Close()
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd)
	},
	Annotations: map[string]string{"terminal": "owned"},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorColor.Sprint("Error: ")+err.Error())
		os.Exit(1)
	}
}

// persistentFlag maps a flag name to its config key.
type persistentFlag struct {
	flag, key string
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default ~/.repolens/config.yaml)")
	pf.StringVarP(&flagProject, "project", "p", "", "project ID (default derived from the repository)")
	pf.String("db", "~/.repolens/index.db", "SQLite database path")
	pf.String("store", "sqlite", "vector store backend: sqlite or postgres")
	pf.String("postgres-dsn", "", "PostgreSQL connection string for the postgres store")
	pf.String("ollama", "http://localhost:11434", "ollama base URL")
	pf.String("model", "nomic-embed-text", "embedding model")
	pf.String("chat-model", "qwen3:8b", "generative model for summaries and answers")
	pf.String("branch", "main", "branch to fetch for GitHub repositories")
	pf.String("token", "", "GitHub access token (default $GITHUB_TOKEN)")
	pf.Int("workers", runtime.NumCPU(), "parallel summarize/embed workers")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-file", "", "also append logs to this file")

	for _, f := range []persistentFlag{
		{"db", "db"},
		{"store", "store"},
		{"postgres-dsn", "postgres_dsn"},
		{"ollama", "ollama"},
		{"model", "model"},
		{"chat-model", "chat_model"},
		{"branch", "branch"},
		{"token", "github_token"},
		{"workers", "workers"},
		{"log-level", "log_level"},
		{"log-file", "log_file"},
	} {
		if err := v.BindPFlag(f.key, pf.Lookup(f.flag)); err != nil {
			panic(err)
		}
	}
}
