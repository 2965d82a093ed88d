// Package tui is the local chat transport: a terminal chat window that
// feeds typed input to the bot engine and renders its replies. It
// serves one session; a network transport would map chat ids to
// sessions the same way.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/avoytenko/timetalk/internal/bot"
)

const localSession = "local"

// message types

type botReplyMsg struct {
	text    string
	buttons []bot.ButtonSpec
}

type dispatchDoneMsg struct{}

// Transport runs the chat window. Engine replies arrive through the
// Responder methods and are injected into the running program.
type Transport struct {
	mu      sync.Mutex
	program *tea.Program
}

func New() *Transport {
	return &Transport{}
}

func (t *Transport) SendMessage(sessionID, text string) error {
	return t.deliver(botReplyMsg{text: text})
}

func (t *Transport) SendButtons(sessionID, text string, buttons []bot.ButtonSpec) error {
	return t.deliver(botReplyMsg{text: text, buttons: buttons})
}

func (t *Transport) deliver(msg botReplyMsg) error {
	t.mu.Lock()
	p := t.program
	t.mu.Unlock()
	if p == nil {
		return fmt.Errorf("tui: transport is not running")
	}
	p.Send(msg)
	return nil
}

// Run starts the chat window and blocks until the user quits.
func (t *Transport) Run(ctx context.Context, dispatch bot.DispatchFunc) error {
	p := tea.NewProgram(initialModel(ctx, dispatch), tea.WithAltScreen(), tea.WithContext(ctx))

	t.mu.Lock()
	t.program = p
	t.mu.Unlock()

	_, err := p.Run()

	t.mu.Lock()
	t.program = nil
	t.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// transcript entry

type role int

const (
	roleUser role = iota
	roleBot
)

type entry struct {
	role role
	text string
}

// model

type model struct {
	ctx      context.Context
	dispatch bot.DispatchFunc

	transcript []entry
	buttons    []bot.ButtonSpec // choices from the last bot reply, if any
	busy       bool             // a trigger is being processed

	input    textinput.Model
	view     viewport.Model
	width    int
	height   int
	ready    bool
	quitting bool
}

func initialModel(ctx context.Context, dispatch bot.DispatchFunc) model {
	ti := textinput.New()
	ti.Placeholder = "Type a message, /help for commands..."
	ti.Focus()
	ti.Prompt = "> "
	ti.PromptStyle = styleInputPrompt
	ti.TextStyle = styleInput
	ti.CharLimit = 2048

	return model{
		ctx:      ctx,
		dispatch: dispatch,
		input:    ti,
		view:     viewport.New(0, 0),
	}
}

func (m model) Init() tea.Cmd {
	// kick off the conversation like a fresh chat would
	return tea.Batch(textinput.Blink, m.dispatchCmd(bot.Command{Name: "start"}))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.view = viewport.New(m.width, m.viewHeight())
		m.view.SetContent(m.renderTranscript())
		m.view.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.Enter):
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			m.input.SetValue("")
			return m.submit(line)

		case key.Matches(msg, keys.ScrollUp):
			m.view.LineUp(m.viewHeight() / 2)
			return m, nil

		case key.Matches(msg, keys.ScrollDn):
			m.view.LineDown(m.viewHeight() / 2)
			return m, nil

		case key.Matches(msg, keys.PageUp):
			m.view.LineUp(m.viewHeight())
			return m, nil

		case key.Matches(msg, keys.PageDown):
			m.view.LineDown(m.viewHeight())
			return m, nil
		}

		var tiCmd tea.Cmd
		m.input, tiCmd = m.input.Update(msg)
		cmds = append(cmds, tiCmd)
		return m, tea.Batch(cmds...)

	case botReplyMsg:
		m.transcript = append(m.transcript, entry{role: roleBot, text: msg.text})
		m.buttons = msg.buttons
		m.refreshView()
		return m, nil

	case dispatchDoneMsg:
		m.busy = false
		return m, nil
	}

	return m, tea.Batch(cmds...)
}

// submit turns one typed line into a trigger. A leading slash is a
// command; a bare number picks the matching button from the last
// reply; anything else is free text.
func (m model) submit(line string) (tea.Model, tea.Cmd) {
	m.transcript = append(m.transcript, entry{role: roleUser, text: line})

	var trg bot.Trigger
	switch {
	case strings.HasPrefix(line, "/"):
		fields := strings.Fields(strings.TrimPrefix(line, "/"))
		if len(fields) == 0 {
			trg = bot.Text{Body: line}
			break
		}
		trg = bot.Command{Name: strings.ToLower(fields[0])}
	default:
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(m.buttons) {
			trg = bot.Button{Payload: m.buttons[n-1].Payload}
			break
		}
		trg = bot.Text{Body: line}
	}

	m.buttons = nil
	m.busy = true
	m.refreshView()
	return m, m.dispatchCmd(trg)
}

// dispatchCmd hands the trigger to the engine off the UI goroutine;
// replies come back as botReplyMsg via the Responder.
func (m model) dispatchCmd(trg bot.Trigger) tea.Cmd {
	ctx, dispatch := m.ctx, m.dispatch
	return func() tea.Msg {
		dispatch(ctx, localSession, trg)
		return dispatchDoneMsg{}
	}
}

func (m *model) refreshView() {
	if !m.ready {
		return
	}
	m.view.SetContent(m.renderTranscript())
	m.view.GotoBottom()
}

func (m model) renderTranscript() string {
	wrap := lipgloss.NewStyle().Width(m.contentWidth())
	var b strings.Builder
	for _, e := range m.transcript {
		switch e.role {
		case roleUser:
			b.WriteString(styleUser.Render("you: " + e.text))
		case roleBot:
			b.WriteString(wrap.Render(styleBot.Render(e.text)))
		}
		b.WriteString("\n\n")
	}
	if len(m.buttons) > 0 {
		for i, btn := range m.buttons {
			b.WriteString(styleButton.Render(fmt.Sprintf("  [%d] %s", i+1, btn.Label)))
			b.WriteString("\n")
		}
		b.WriteString(styleHint.Render("  type a number to choose"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) View() string {
	if m.quitting || !m.ready {
		return ""
	}

	m.view.Width = m.width
	m.view.Height = m.viewHeight()

	return lipgloss.JoinVertical(lipgloss.Left,
		m.view.View(),
		m.input.View(),
		m.statusBar(),
	)
}

func (m model) viewHeight() int {
	if m.height <= 0 {
		return 20
	}
	// input row (1) + status bar (1)
	h := m.height - 2
	if h < 5 {
		h = 5
	}
	return h
}

func (m model) contentWidth() int {
	if m.width <= 0 {
		return 80
	}
	return m.width
}

func (m model) statusBar() string {
	parts := []string{"Enter send", "C-u/C-d scroll", "Esc quit"}
	if m.busy {
		parts = append([]string{"working..."}, parts...)
	}
	return styleStatusBar.Render(strings.Join(parts, " | "))
}
