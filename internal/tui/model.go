// Package tui is the terminal front end: a conversation list, the active
// conversation's history and an input line.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskchat/internal/domain"
)

const sidebarWidth = 24

// Sender is the part of the lifecycle client the UI drives.
type Sender interface {
	Send(ctx context.Context, conversationID, text string) error
	DeleteConversation(ctx context.Context, id string) bool
}

// Conversations is the read side of the store plus the UI-only mutations.
type Conversations interface {
	List() []domain.Conversation
	ActiveID() string
	Create(ctx context.Context) domain.Conversation
	SetActive(ctx context.Context, id string) bool
	Changes() <-chan struct{}
}

type storeChangedMsg struct{}

type sendDoneMsg struct {
	conversationID string
	err            error
}

// Model is the bubbletea model for the whole screen.
type Model struct {
	ctx    context.Context
	client Sender
	store  Conversations
	title  string

	convs    []domain.Conversation
	activeID string
	// sending holds conversations whose submission has not returned yet.
	sending map[string]bool

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model
	theme    theme

	width  int
	height int
	status string
	err    error
}

// New builds a Model showing the store's current state. ctx bounds sends.
func New(ctx context.Context, client Sender, store Conversations, title string) Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Type a message and press enter"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true

	m := Model{
		ctx:      ctx,
		client:   client,
		store:    store,
		title:    title,
		input:    input,
		timeline: timeline,
		spinner:  sp,
		theme:    newTheme(),
		sending:  make(map[string]bool),
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		waitChange(m.store.Changes()),
	)
}

// waitChange turns the next store change signal into a message.
func waitChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return storeChangedMsg{}
	}
}

func (m Model) sendCmd(conversationID, text string) tea.Cmd {
	ctx, client := m.ctx, m.client
	return func() tea.Msg {
		return sendDoneMsg{conversationID: conversationID, err: client.Send(ctx, conversationID, text)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTimeline()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.busy(m.active()) {
			m.renderTimeline()
		}
		cmds = append(cmds, cmd)
	case storeChangedMsg:
		m.refresh()
		cmds = append(cmds, waitChange(m.store.Changes()))
	case sendDoneMsg:
		delete(m.sending, msg.conversationID)
		m.err = msg.err
		m.refresh()
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			text := m.input.Value()
			active := m.active()
			if strings.TrimSpace(text) == "" || active.ID == "" || m.busy(active) {
				return m, nil
			}
			m.sending[active.ID] = true
			m.input.Reset()
			m.err = nil
			m.renderTimeline()
			return m, m.sendCmd(active.ID, text)
		case "ctrl+n":
			c := m.store.Create(m.ctx)
			m.status = "created " + c.Name
			m.refresh()
			return m, nil
		case "ctrl+d":
			if active := m.active(); active.ID != "" {
				m.client.DeleteConversation(m.ctx, active.ID)
				m.status = "deleted " + active.Name
			}
			m.refresh()
			return m, nil
		case "tab":
			m.selectRelative(1)
			return m, nil
		case "shift+tab":
			m.selectRelative(-1)
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) selectRelative(step int) {
	if len(m.convs) == 0 {
		return
	}
	idx := 0
	for i, c := range m.convs {
		if c.ID == m.activeID {
			idx = i
			break
		}
	}
	idx = (idx + step + len(m.convs)) % len(m.convs)
	m.store.SetActive(m.ctx, m.convs[idx].ID)
	m.refresh()
}

func (m *Model) refresh() {
	m.convs = m.store.List()
	m.activeID = m.store.ActiveID()
	m.renderTimeline()
}

func (m Model) active() domain.Conversation {
	for _, c := range m.convs {
		if c.ID == m.activeID {
			return c
		}
	}
	return domain.Conversation{}
}

// busy reports whether c is waiting on the agent or on a send that has not
// reached the store yet.
func (m Model) busy(c domain.Conversation) bool {
	return c.IsTyping || m.sending[c.ID]
}

func (m *Model) resize() {
	w := m.width - sidebarWidth - 8
	if w < 20 {
		w = 20
	}
	h := m.height - 8
	if h < 3 {
		h = 3
	}
	m.timeline.Width = w
	m.timeline.Height = h
	m.input.Width = m.width - 8
}

func (m *Model) renderTimeline() {
	active := m.active()
	width := m.timeline.Width
	if width <= 0 {
		width = 60
	}
	var b strings.Builder
	for _, msg := range active.Messages {
		label := m.theme.botLabel.Render("Agent")
		if msg.Sender == domain.SenderUser {
			label = m.theme.userLabel.Render("You")
		}
		b.WriteString(label)
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(msg.Text))
		b.WriteString("\n\n")
	}
	if m.busy(active) {
		b.WriteString(m.spinner.View() + " " + m.theme.typing.Render("waiting for the agent"))
	}
	m.timeline.SetContent(b.String())
	m.timeline.GotoBottom()
}

func (m Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(m.theme.panelTitle.Render("Conversations"))
	b.WriteString("\n")
	for _, c := range m.convs {
		name := c.Name
		if c.IsTyping {
			name += " …"
		}
		if c.ID == m.activeID {
			b.WriteString(m.theme.convActive.Render("> " + name))
		} else {
			b.WriteString(m.theme.convIdle.Render("  " + name))
		}
		b.WriteString("\n")
	}
	return m.theme.panel.Width(sidebarWidth).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) View() string {
	header := m.theme.header.Render(m.title)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderSidebar(),
		m.theme.panel.Render(m.timeline.View()),
	)
	input := m.theme.inputPanel.Render(m.input.View())

	footer := m.theme.footer.Render("enter send · ctrl+n new · ctrl+d delete · tab switch · ctrl+c quit")
	switch {
	case m.err != nil:
		footer = m.theme.errorStatus.Render(fmt.Sprintf("error: %v", m.err))
	case m.status != "":
		footer = m.theme.footer.Render(m.status) + "  " + footer
	}
	return m.theme.root.Render(lipgloss.JoinVertical(lipgloss.Left, header, body, input, footer))
}
