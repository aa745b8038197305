// Package tui is the interactive terminal front end: project status,
// indexing progress and a streaming chat over the indexed code.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"repolens/internal/index"
	"repolens/internal/rag"
)

// ViewState represents which screen is active.
type ViewState int

const (
	ViewWelcome ViewState = iota
	ViewIndexing
	ViewChat
)

// programRef is an indirect pointer to the tea.Program so background goroutines
// can send messages. It must be set after tea.NewProgram returns but before Run.
type programRef struct {
	p *tea.Program
}

func (r *programRef) send(msg tea.Msg) {
	if r != nil && r.p != nil {
		r.p.Send(msg)
	}
}

// ProjectStatus reports what is indexed for a project.
type ProjectStatus interface {
	CountChunks(ctx context.Context, projectID string) (int, error)
	GetMeta(ctx context.Context, projectID, key string) (string, error)
}

// Indexer runs one indexing pass. *index.Indexer implements it.
type Indexer interface {
	Index(ctx context.Context, req index.Request, onProgress index.ProgressFunc) (*index.Result, error)
}

// Answerer answers questions as a token stream. *rag.Orchestrator
// implements it.
type Answerer interface {
	Answer(ctx context.Context, question, projectID string) (*rag.Answer, error)
}

// Services are the collaborators the screens call into.
type Services struct {
	Status   ProjectStatus
	Indexer  Indexer
	Answerer Answerer
}

// Config holds configuration passed from the CLI layer.
type Config struct {
	ProjectID string
	RepoRef   string
	Token     string
	Model     string
	ChatModel string

	// program is set internally so background goroutines can send messages.
	program *programRef
}

// Model is the top-level Bubble Tea model.
type Model struct {
	ctx    context.Context
	state  ViewState
	config Config
	svc    Services
	width  int
	height int

	welcome  welcomeModel
	indexing indexingModel
	chat     chatModel
}

// New creates a new TUI model with the given config.
func New(ctx context.Context, cfg Config, svc Services) Model {
	return Model{
		ctx:    ctx,
		state:  ViewWelcome,
		config: cfg,
		svc:    svc,
	}
}

func (m Model) Init() tea.Cmd {
	return checkIndex(m.ctx, m.config, m.svc.Status)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.state == ViewChat {
			var c tea.Cmd
			m.chat, c = m.chat.Update(msg)
			return m, c
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.chat.cancel()
			return m, tea.Quit
		case "q":
			if m.state != ViewChat {
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd

	switch m.state {
	case ViewWelcome:
		m.welcome, cmd = m.welcome.Update(msg)
		if cmd != nil {
			return m, cmd
		}
		keyMsg, ok := msg.(tea.KeyMsg)
		if !ok || !m.welcome.ready {
			break
		}
		switch {
		case keyMsg.Type == tea.KeyEnter && m.welcome.status == indexReady:
			return m, m.transitionToChat()
		case keyMsg.Type == tea.KeyEnter, keyMsg.String() == "r":
			if m.config.RepoRef == "" {
				m.welcome.note = "No repository given; start with --repo to index."
				return m, nil
			}
			m.state = ViewIndexing
			m.indexing = newIndexingModel()
			replace := keyMsg.String() == "r"
			return m, tea.Batch(m.indexing.spinner.Tick, runIndex(m.ctx, m.config, m.svc.Indexer, replace))
		}

	case ViewIndexing:
		m.indexing, cmd = m.indexing.Update(msg)
		if cmd != nil {
			return m, cmd
		}
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter && m.indexing.done {
			return m, m.transitionToChat()
		}

	case ViewChat:
		m.chat, cmd = m.chat.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) transitionToChat() tea.Cmd {
	m.chat = newChatModel(m.ctx, m.svc.Answerer, m.config.ProjectID, m.config.ChatModel)
	m.chat.initViewport(m.width, m.height)
	m.state = ViewChat
	return nil
}

func (m Model) View() string {
	switch m.state {
	case ViewWelcome:
		return m.welcome.View(m.config, m.width, m.height)
	case ViewIndexing:
		return m.indexing.View(m.width, m.height)
	case ViewChat:
		return m.chat.View(m.width, m.height)
	}
	return ""
}

// Run starts the TUI program and blocks until it exits.
func Run(ctx context.Context, cfg Config, svc Services) error {
	ref := &programRef{}
	cfg.program = ref
	model := New(ctx, cfg, svc)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	ref.p = p
	_, err := p.Run()
	return err
}
