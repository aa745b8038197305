package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"repolens/internal/fetcher"
	"repolens/internal/index"
)

var flagDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Re-index a local directory whenever its files change",
	Long: `Index a local directory, then watch it and re-index after changes
settle. Every pass replaces the project's fragments.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if !fetcher.IsLocal(root) {
			return fmt.Errorf("%s is not a local directory", args[0])
		}
		projectID, err := resolveProject(root)
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

		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer w.Close()
		if err := watchTree(w, root); err != nil {
			return err
		}

		reindex := func() {
			titleColor.Printf("Indexing %s", root)
			dimColor.Printf(" (project %s)\n", projectID)
			res, err := svc.indexer.Index(ctx, index.Request{
				ProjectID: projectID,
				RepoRef:   root,
				Replace:   true,
			}, progressPrinter())
			fmt.Println()
			if err != nil {
				if ctx.Err() == nil {
					errorColor.Fprintf(os.Stderr, "index failed: %v\n", err)
				}
				return
			}
			printResult(res)
			dimColor.Println("Watching for changes (Ctrl-C to stop)...")
		}

		reindex()
		changes := make(chan struct{}, 1)
		go forwardEvents(ctx, w, root, changes)
		debounce(ctx, changes, flagDebounce, reindex)
		return nil
	},
}

// watchTree adds root and every directory below it that is not ignored.
func watchTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && fetcher.IgnoredDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

// forwardEvents signals changes on out and starts watching directories
// created after startup.
func forwardEvents(ctx context.Context, w *fsnotify.Watcher, root string, out chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("watch error", "error", err)
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !relevant(root, ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := watchTree(w, ev.Name); err != nil {
						logger.Warn("watch new directory", "dir", ev.Name, "error", err)
					}
				}
			}
			logger.Debug("change", "path", ev.Name, "op", ev.Op.String())
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}
}

func relevant(root string, ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(root, ev.Name)
	if err != nil {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if fetcher.IgnoredDir(seg) {
			return false
		}
	}
	return true
}

// debounce calls fn once no signal has arrived on in for wait. It
// returns when ctx is done.
func debounce(ctx context.Context, in <-chan struct{}, wait time.Duration, fn func()) {
	timer := time.NewTimer(wait)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-in:
			timer.Reset(wait)
		case <-timer.C:
			fn()
		}
	}
}

func init() {
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", 2*time.Second, "quiet period before re-indexing")
	rootCmd.AddCommand(watchCmd)
}
