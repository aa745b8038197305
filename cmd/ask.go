package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"repolens/internal/rag"
	"repolens/internal/store"
)

var flagShowContext bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask questions about an indexed project",
	Long: `Ask a question about an indexed project. With a question argument the
answer is printed and the command exits; without one an interactive
session starts. Ctrl-C stops the answer being generated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := resolveProject("")
		if err != nil {
			return err
		}
		svc, err := newServices(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		n, err := svc.store.CountChunks(cmd.Context(), projectID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("project %s has no indexed code\nRun 'repolens index <repo> --project %s' first", projectID, projectID)
		}

		if len(args) > 0 {
			return askOnce(cmd.Context(), svc.orchestrator, strings.Join(args, " "), projectID)
		}
		return askLoop(cmd.Context(), svc, projectID)
	},
}

func askLoop(ctx context.Context, svc *services, projectID string) error {
	scanner := bufio.NewScanner(os.Stdin)

	titleColor.Printf("repolens ask • %s\n", projectID)
	dimColor.Println("type /help for commands, /exit to quit")
	fmt.Println()

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}

		switch question {
		case "/exit", "/quit":
			fmt.Println("Goodbye.")
			return nil
		case "/overview":
			text, err := svc.store.GetMeta(ctx, projectID, store.MetaOverview)
			switch {
			case err != nil:
				errorColor.Fprintf(os.Stderr, "%v\n", err)
			case text == "":
				dimColor.Println("No overview yet; re-index the project to generate one.")
			default:
				fmt.Println(text)
			}
			fmt.Println()
			continue
		case "/help":
			fmt.Println("Commands:")
			fmt.Println("  /overview - show the project overview")
			fmt.Println("  /exit     - quit")
			fmt.Println("  /help     - show this help")
			fmt.Println("  Ctrl-C    - stop the current answer")
			continue
		}

		if err := askOnce(ctx, svc.orchestrator, question, projectID); err != nil {
			errorColor.Fprintf(os.Stderr, "%v\n", err)
		}
		fmt.Println()
	}

	return scanner.Err()
}

// askOnce streams one answer to stdout. Interrupting cancels generation
// and keeps what was already printed.
func askOnce(ctx context.Context, orch *rag.Orchestrator, question, projectID string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	dimColor.Println("[Searching...]")
	ans, err := orch.Answer(ctx, question, projectID)
	if err != nil {
		return err
	}
	defer ans.Stream.Close()

	if flagShowContext {
		dimColor.Printf("[%d context tokens]\n", ans.ContextTokens)
	}
	fmt.Println()

	for {
		tok, err := ans.Stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Println()
			if ctx.Err() != nil {
				warnColor.Println("[stopped]")
				return nil
			}
			return err
		}
		fmt.Print(tok)
	}
	fmt.Println()

	if len(ans.Cited) > 0 {
		fmt.Println()
		dimColor.Println("Sources:")
		for _, r := range ans.Cited {
			dimColor.Printf("  %s:%d-%d (%.0f%%)\n", r.FileName, r.StartLine+1, r.EndLine+1, r.Similarity*100)
		}
	}
	return nil
}

func init() {
	askCmd.Flags().BoolVar(&flagShowContext, "show-context", false, "print the size of the prompt context")
	rootCmd.AddCommand(askCmd)
}
