package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"repolens/internal/index"
)

var flagReplace bool

var indexCmd = &cobra.Command{
	Use:   "index <repo>",
	Short: "Index a local directory or GitHub repository",
	Long: `Index a local directory or GitHub repository (owner/repo,
github.com/owner/repo or https://github.com/owner/repo).

Without --replace new fragments are added to what the project already
holds. With --replace the project's fragments are cleared once the
repository has been fetched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := args[0]
		projectID, err := resolveProject(ref)
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

		titleColor.Printf("Indexing %s", ref)
		dimColor.Printf(" (project %s)\n", projectID)

		res, err := svc.indexer.Index(ctx, index.Request{
			ProjectID:   projectID,
			RepoRef:     ref,
			Credentials: credentials(),
			Replace:     flagReplace,
		}, progressPrinter())
		fmt.Println()
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

// progressPrinter rewrites a single status line per phase.
func progressPrinter() index.ProgressFunc {
	last := ""
	return func(phase string, processed, total int) {
		if phase != last && last != "" {
			fmt.Println()
		}
		last = phase
		if total > 0 {
			fmt.Printf("\r  %-12s %d/%d", phase, processed, total)
			return
		}
		fmt.Printf("\r  %-12s", phase)
	}
}

func printResult(res *index.Result) {
	successColor.Printf("Done in %s\n", res.Duration.Round(time.Millisecond))
	fmt.Printf("  Files:      %d\n", res.Files)
	fmt.Printf("  Fragments:  %d\n", res.Fragments)
	fmt.Printf("  Indexed:    %d\n", res.SuccessCount)
	if res.ErrorCount > 0 {
		warnColor.Printf("  Failed:     %d (see log for details)\n", res.ErrorCount)
	}
	if res.Replaced {
		dimColor.Println("  Previous fragments were replaced.")
	}
}

func init() {
	indexCmd.Flags().BoolVar(&flagReplace, "replace", false, "clear the project's fragments before storing new ones")
	rootCmd.AddCommand(indexCmd)
}
