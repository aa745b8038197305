package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"repolens/internal/tui"
)

var flagRepo string

var tuiCmd = &cobra.Command{
	Use:         "tui",
	Short:       "Interactive terminal UI (the default command)",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"terminal": "owned"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd)
	},
}

// runTUI opens the project named by --project or --repo. With neither it
// works on the current directory.
func runTUI(cmd *cobra.Command) error {
	repo := flagRepo
	if repo == "" && flagProject == "" {
		repo = "."
	}
	projectID, err := resolveProject(repo)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	svc, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	return tui.Run(ctx, tui.Config{
		ProjectID: projectID,
		RepoRef:   repo,
		Token:     cfg.GitHubToken,
		Model:     cfg.Model,
		ChatModel: cfg.ChatModel,
	}, tui.Services{
		Status:   svc.store,
		Indexer:  svc.indexer,
		Answerer: svc.orchestrator,
	})
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, tuiCmd} {
		c.Flags().StringVar(&flagRepo, "repo", "", "repository to index from the TUI (local directory or GitHub)")
	}
	rootCmd.AddCommand(tuiCmd)
}
