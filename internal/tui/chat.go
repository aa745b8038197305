package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"repolens/internal/llm"
	"repolens/internal/rag"
	"repolens/internal/store"
)

type chatState int

const (
	chatIdle chatState = iota
	chatSearching
	chatGenerating
)

type chatModel struct {
	ctx         context.Context
	answerer    Answerer
	projectID   string
	modelName   string
	viewport    viewport.Model
	input       textinput.Model
	spinner     spinner.Model
	renderer    *glamour.TermRenderer
	messages    []chatMessage
	active      *activeAnswer
	seq         int
	state       chatState
	width       int
	height      int
	initialized bool
}

type chatMessage struct {
	role    string
	content string
}

// activeAnswer is the answer being streamed. It is shared by pointer so
// copies of the model see the same stream.
type activeAnswer struct {
	seq    int
	stream llm.Stream
	cancel context.CancelFunc
	cited  []store.SearchResult
	text   strings.Builder
}

// answerStartedMsg is sent once retrieval finished and tokens can be read.
type answerStartedMsg struct {
	seq    int
	answer *rag.Answer
	cancel context.CancelFunc
	err    error
}

// tokenMsg carries one generated token.
type tokenMsg struct {
	seq   int
	token string
}

// streamEndMsg is sent when the stream ends; err is nil on a clean end.
type streamEndMsg struct {
	seq int
	err error
}

func newChatModel(ctx context.Context, a Answerer, projectID, chatModelName string) chatModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ti := textinput.New()
	ti.Placeholder = "Ask a question about the repository..."
	ti.CharLimit = 2000
	ti.Focus()

	return chatModel{
		ctx:       ctx,
		answerer:  a,
		projectID: projectID,
		modelName: chatModelName,
		spinner:   sp,
		input:     ti,
		state:     chatIdle,
	}
}

func (m *chatModel) initViewport(width, height int) {
	m.width = width
	m.height = height

	// Layout: viewport + status bar (1 line) + input (1 line) + borders/gaps (1 line).
	vpHeight := height - 3
	if vpHeight < 5 {
		vpHeight = 5
	}
	m.viewport = viewport.New(width, vpHeight)
	m.viewport.SetContent(dimStyle.Render("Ask a question about the repository.\n\nEsc stops an answer. Commands: /help, /clear, /exit"))

	m.input.Width = width - 4

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err == nil {
		m.renderer = r
	}

	m.initialized = true
}

func startAnswer(ctx context.Context, a Answerer, question, projectID string, seq int) tea.Cmd {
	return func() tea.Msg {
		actx, cancel := context.WithCancel(ctx)
		ans, err := a.Answer(actx, question, projectID)
		if err != nil {
			cancel()
			return answerStartedMsg{seq: seq, err: err}
		}
		return answerStartedMsg{seq: seq, answer: ans, cancel: cancel}
	}
}

func recvToken(s llm.Stream, seq int) tea.Cmd {
	return func() tea.Msg {
		tok, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return streamEndMsg{seq: seq}
		}
		if err != nil {
			return streamEndMsg{seq: seq, err: err}
		}
		return tokenMsg{seq: seq, token: tok}
	}
}

// cancel stops the answer in flight, if any.
func (m *chatModel) cancel() {
	if m.active == nil {
		return
	}
	m.active.stream.Close()
	m.active.cancel()
	m.active = nil
}

func (m *chatModel) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m chatModel) Update(msg tea.Msg) (chatModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.initViewport(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case answerStartedMsg:
		if msg.seq != m.seq || m.state != chatSearching {
			if msg.answer != nil {
				msg.answer.Stream.Close()
				msg.cancel()
			}
			return m, nil
		}
		if msg.err != nil {
			m.state = chatIdle
			m.messages = append(m.messages, chatMessage{role: "error", content: msg.err.Error()})
			m.refresh()
			return m, nil
		}
		m.active = &activeAnswer{
			seq:    msg.seq,
			stream: msg.answer.Stream,
			cancel: msg.cancel,
			cited:  msg.answer.Cited,
		}
		m.state = chatGenerating
		m.refresh()
		return m, recvToken(m.active.stream, m.seq)

	case tokenMsg:
		if m.active == nil || msg.seq != m.active.seq {
			return m, nil
		}
		m.active.text.WriteString(msg.token)
		m.refresh()
		return m, recvToken(m.active.stream, msg.seq)

	case streamEndMsg:
		if m.active == nil || msg.seq != m.active.seq {
			return m, nil
		}
		a := m.active
		m.active.stream.Close()
		m.active.cancel()
		m.active = nil
		m.state = chatIdle
		if text := a.text.String(); text != "" {
			m.messages = append(m.messages, chatMessage{role: "assistant", content: text})
		}
		if msg.err != nil {
			m.messages = append(m.messages, chatMessage{role: "error", content: msg.err.Error() + " (ask again to retry)"})
		}
		if len(a.cited) > 0 {
			m.messages = append(m.messages, chatMessage{role: "sources", content: formatSources(a.cited)})
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.state != chatIdle {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			m.refresh()
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if m.state != chatIdle {
			if msg.Type == tea.KeyEsc {
				var partial string
				if m.active != nil {
					partial = m.active.text.String()
				}
				m.cancel()
				m.seq++
				m.state = chatIdle
				if partial != "" {
					m.messages = append(m.messages, chatMessage{role: "assistant", content: partial})
				}
				m.messages = append(m.messages, chatMessage{role: "system", content: "Answer stopped."})
				m.refresh()
			}
			return m, nil
		}
		switch msg.Type {
		case tea.KeyEnter:
			question := strings.TrimSpace(m.input.Value())
			if question == "" {
				return m, nil
			}
			m.input.Reset()

			switch question {
			case "/exit", "/quit":
				return m, tea.Quit
			case "/clear":
				m.messages = nil
				m.viewport.SetContent(dimStyle.Render("Conversation cleared."))
				return m, nil
			case "/help":
				helpText := "Commands:\n  /clear  - clear the screen\n  /exit   - quit\n  /help   - show this help\n  Esc     - stop the current answer"
				m.messages = append(m.messages, chatMessage{role: "system", content: helpText})
				m.refresh()
				return m, nil
			}

			m.messages = append(m.messages, chatMessage{role: "user", content: question})
			m.seq++
			m.state = chatSearching
			m.refresh()

			return m, tea.Batch(
				m.spinner.Tick,
				startAnswer(m.ctx, m.answerer, question, m.projectID, m.seq),
			)
		}
	}

	if m.state == chatIdle {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func formatSources(cited []store.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("Sources:")
	for _, r := range cited {
		fmt.Fprintf(&sb, "\n  %s:%d-%d (%.0f%%)", r.FileName, r.StartLine+1, r.EndLine+1, r.Similarity*100)
	}
	return sb.String()
}

func (m chatModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return answerStyle.Render(content)
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return answerStyle.Render(content)
	}
	return strings.TrimRight(rendered, "\n")
}

func (m chatModel) renderMessages() string {
	var sb strings.Builder
	for _, msg := range m.messages {
		switch msg.role {
		case "user":
			sb.WriteString(questionStyle.Render("You: ") + msg.content + "\n\n")
		case "assistant":
			sb.WriteString(m.renderMarkdown(msg.content) + "\n\n")
		case "error":
			sb.WriteString(errorStyle.Render("Error: "+msg.content) + "\n\n")
		case "sources":
			sb.WriteString(sourceStyle.Render(msg.content) + "\n\n")
		case "system":
			sb.WriteString(dimStyle.Render(msg.content) + "\n\n")
		}
	}

	switch m.state {
	case chatSearching:
		sb.WriteString(m.spinner.View() + " " + dimStyle.Render("Searching...") + "\n")
	case chatGenerating:
		// Raw text while streaming; markdown is rendered once complete.
		if m.active != nil {
			sb.WriteString(answerStyle.Render(m.active.text.String()))
		}
		sb.WriteString("\n" + m.spinner.View() + " " + dimStyle.Render("Generating... (Esc to stop)") + "\n")
	}

	return sb.String()
}

func (m chatModel) View(width, height int) string {
	if !m.initialized {
		return ""
	}

	statusText := "idle"
	switch m.state {
	case chatSearching:
		statusText = "searching..."
	case chatGenerating:
		statusText = "generating..."
	}
	statusBar := footerStyle.
		Width(m.width).
		Render(fmt.Sprintf(" repolens • %s • %s • %s", m.projectID, m.modelName, statusText))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.viewport.View(),
		statusBar,
		m.input.View(),
	)
}
