package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"repolens/internal/fetcher"
	"repolens/internal/index"
)

type indexingModel struct {
	spinner   spinner.Model
	phase     string
	processed int
	total     int
	done      bool
	result    *index.Result
	err       error
}

func newIndexingModel() indexingModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return indexingModel{
		spinner: sp,
		phase:   index.PhaseFetch,
	}
}

// indexDoneMsg is sent when indexing completes.
type indexDoneMsg struct {
	result *index.Result
	err    error
}

// indexProgressMsg is sent as indexing advances.
type indexProgressMsg struct {
	phase     string
	processed int
	total     int
}

func runIndex(ctx context.Context, cfg Config, idx Indexer, replace bool) tea.Cmd {
	return func() tea.Msg {
		res, err := idx.Index(ctx, index.Request{
			ProjectID:   cfg.ProjectID,
			RepoRef:     cfg.RepoRef,
			Credentials: fetcher.Credentials{Token: cfg.Token},
			Replace:     replace,
		}, func(phase string, processed, total int) {
			cfg.program.send(indexProgressMsg{phase: phase, processed: processed, total: total})
		})
		return indexDoneMsg{result: res, err: err}
	}
}

func (m indexingModel) Update(msg tea.Msg) (indexingModel, tea.Cmd) {
	switch msg := msg.(type) {
	case indexDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, nil
	case indexProgressMsg:
		m.phase = msg.phase
		m.processed = msg.processed
		m.total = msg.total
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m indexingModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  Indexing") + "\n\n"

	if m.done {
		if m.err != nil {
			s += errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n"
			s += dimStyle.Render("  Press Enter to continue to chat anyway, or q to quit.") + "\n"
			return s
		}
		s += successStyle.Render("  ✓ Indexing complete!") + "\n\n"
		if r := m.result; r != nil {
			s += fmt.Sprintf("  Files: %d, fragments: %d\n", r.Files, r.Fragments)
			s += fmt.Sprintf("  Indexed: %d, failed: %d\n", r.SuccessCount, r.ErrorCount)
			s += fmt.Sprintf("  Took %s\n", r.Duration.Round(100*time.Millisecond))
		}
		s += "\n"
		s += dimStyle.Render("  Press Enter to start chatting") + "\n"
		return s
	}

	s += fmt.Sprintf("  %s %s\n", m.spinner.View(), m.phase)
	if m.total > 0 {
		s += fmt.Sprintf("  %d / %d\n", m.processed, m.total)
	}
	s += "\n"
	s += dimStyle.Render("  This may take a while for large repositories...") + "\n"
	return s
}
