package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"repolens/internal/store"
)

type indexStatus int

const (
	indexNotFound indexStatus = iota
	indexReady
	indexStale
)

type welcomeModel struct {
	status      indexStatus
	staleReason string
	chunks      int
	note        string
	err         error
	ready       bool // true once the check has completed
}

// checkIndexMsg is sent after checking the index status.
type checkIndexMsg struct {
	status      indexStatus
	staleReason string
	chunks      int
	err         error
}

func checkIndex(ctx context.Context, cfg Config, st ProjectStatus) tea.Cmd {
	return func() tea.Msg {
		n, err := st.CountChunks(ctx, cfg.ProjectID)
		if err != nil {
			return checkIndexMsg{status: indexNotFound, err: err}
		}
		if n == 0 {
			return checkIndexMsg{status: indexNotFound}
		}

		lastModel, err := st.GetMeta(ctx, cfg.ProjectID, store.MetaEmbeddingModel)
		if err != nil {
			return checkIndexMsg{status: indexNotFound, chunks: n, err: err}
		}
		if lastModel != "" && lastModel != cfg.Model {
			return checkIndexMsg{
				status:      indexStale,
				chunks:      n,
				staleReason: fmt.Sprintf("model changed: %s → %s", lastModel, cfg.Model),
			}
		}
		return checkIndexMsg{status: indexReady, chunks: n}
	}
}

func (m welcomeModel) Update(msg tea.Msg) (welcomeModel, tea.Cmd) {
	switch msg := msg.(type) {
	case checkIndexMsg:
		m.status = msg.status
		m.staleReason = msg.staleReason
		m.chunks = msg.chunks
		m.err = msg.err
		m.ready = true
	}
	return m, nil
}

func (m welcomeModel) View(cfg Config, width, height int) string {
	s := "\n"
	s += titleStyle.Render("  ◆ RepoLens") + "\n"
	s += taglineStyle.Render("  Ask questions about a code repository") + "\n\n"
	s += dimStyle.Render(fmt.Sprintf("  project: %s", cfg.ProjectID)) + "\n"
	if cfg.RepoRef != "" {
		s += dimStyle.Render(fmt.Sprintf("  repo:    %s", cfg.RepoRef)) + "\n"
	}
	s += "\n"

	if !m.ready {
		s += dimStyle.Render("  Checking index...") + "\n"
		return s
	}

	switch m.status {
	case indexReady:
		s += successStyle.Render(fmt.Sprintf("  ✓ Index ready (%d chunks)", m.chunks)) + "\n"
	case indexNotFound:
		s += warnStyle.Render("  ✗ No index found") + "\n"
	case indexStale:
		s += warnStyle.Render("  ⚠ Index stale") + "\n"
		s += dimStyle.Render("    "+m.staleReason) + "\n"
	}
	if m.err != nil {
		s += errorStyle.Render("  "+m.err.Error()) + "\n"
	}
	if m.note != "" {
		s += warnStyle.Render("  "+m.note) + "\n"
	}

	s += "\n"
	switch m.status {
	case indexReady:
		s += helpStyle.Render("  Enter to chat, r to re-index, q to quit") + "\n"
	default:
		s += helpStyle.Render("  Enter to index, q to quit") + "\n"
	}
	return s
}
