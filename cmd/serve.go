package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"repolens/internal/index"
	"repolens/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := newServices(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		queue := index.NewQueue(ctx, svc.indexer, 0, logger)
		defer queue.Close()

		s := server.New(cfg.Addr, server.Deps{
			Estimator:    svc.indexer,
			Jobs:         queue,
			Searcher:     svc.retriever,
			Answerer:     svc.orchestrator,
			Projects:     svc.store,
			DefaultToken: cfg.GitHubToken,
		}, logger)
		return s.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	if err := v.BindPFlag("addr", serveCmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(serveCmd)
}
