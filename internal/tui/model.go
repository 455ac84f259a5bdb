// Package tui is the terminal front end for a single in-process chat session.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/duckmesh/dbchat/internal/conversation"
	"github.com/duckmesh/dbchat/internal/gateway"
)

const (
	sidebarWidth = 32
	inputHeight  = 3
)

type Options struct {
	// Params is the connection offered in the sidebar.
	Params      gateway.ConnectParams
	AutoConnect bool
	// GlamourStyle selects a glamour standard style. Empty means auto-detect.
	GlamourStyle string
}

type connectedMsg struct {
	err error
}

type turnDoneMsg struct {
	outcome conversation.Outcome
	err     error
}

type Model struct {
	ctx     context.Context
	session *conversation.Session
	opts    Options
	styles  styles

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer

	ready      bool
	width      int
	height     int
	awaiting   bool
	connecting bool
	pending    string
	lastSQL    string
	status     string
	statusErr  bool
}

func New(ctx context.Context, session *conversation.Session, opts Options) Model {
	st := defaultStyles()

	ti := textinput.New()
	ti.Placeholder = "Ask a question about your data..."
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(st.Spinner))

	m := Model{
		ctx:     ctx,
		session: session,
		opts:    opts,
		styles:  st,
		input:   ti,
		spinner: sp,
		status:  "not connected",
	}
	if opts.AutoConnect {
		m.connecting = true
		m.status = "connecting..."
	}
	return m
}

func (m Model) Init() tea.Cmd {
	if m.opts.AutoConnect {
		return tea.Batch(textinput.Blink, m.spinner.Tick, m.connect())
	}
	return textinput.Blink
}

func (m Model) connect() tea.Cmd {
	session, ctx, params := m.session, m.ctx, m.opts.Params
	return func() tea.Msg {
		return connectedMsg{err: session.Connect(ctx, params)}
	}
}

func (m Model) submit(text string) tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		outcome, err := session.Submit(ctx, text)
		return turnDoneMsg{outcome: outcome, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+r":
			if m.awaiting || m.connecting {
				return m, nil
			}
			m.connecting = true
			m.status = "connecting..."
			m.statusErr = false
			return m, tea.Batch(m.spinner.Tick, m.connect())
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "enter":
			// Input stays in the box until the turn can actually run.
			if m.awaiting || m.connecting {
				return m, nil
			}
			text := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			m.awaiting = true
			m.pending = text
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.submit(text))
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		if m.awaiting || m.connecting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case connectedMsg:
		m.connecting = false
		if msg.err != nil {
			m.status = "connect failed: " + msg.err.Error()
			m.statusErr = true
			return m, nil
		}
		m.status = "connected"
		m.statusErr = false
		return m, nil

	case turnDoneMsg:
		m.awaiting = false
		m.pending = ""
		switch {
		case errors.Is(msg.err, conversation.ErrTurnInProgress):
			m.status = "a turn is already running"
			m.statusErr = true
		case msg.outcome.Err != nil:
			m.status = "last turn failed: " + string(msg.outcome.Err.Kind)
			m.statusErr = true
		default:
			m.lastSQL = msg.outcome.SQL
			if m.session.Connected() {
				m.status = "connected"
				m.statusErr = false
			}
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	chatWidth := width - sidebarWidth - 2
	if chatWidth < 20 {
		chatWidth = 20
	}
	chatHeight := height - inputHeight
	if chatHeight < 1 {
		chatHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(chatWidth, chatHeight)
		m.ready = true
	} else {
		m.viewport.Width = chatWidth
		m.viewport.Height = chatHeight
	}
	m.input.Width = chatWidth - 4

	styleOpt := glamour.WithAutoStyle()
	if m.opts.GlamourStyle != "" {
		styleOpt = glamour.WithStandardStyle(m.opts.GlamourStyle)
	}
	renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(chatWidth-4))
	if err == nil {
		m.renderer = renderer
	}
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}
