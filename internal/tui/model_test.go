package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"taskchat/internal/conversation"
	"taskchat/internal/domain"
)

type memPersister struct {
	mu    sync.Mutex
	state conversation.State
}

func (p *memPersister) Load(context.Context) (conversation.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, nil
}

func (p *memPersister) Save(_ context.Context, s conversation.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
	return nil
}

type sent struct {
	conversationID string
	text           string
}

type fakeSender struct {
	store   *conversation.Store
	sent    []sent
	deleted []string
}

func (f *fakeSender) Send(ctx context.Context, conversationID, text string) error {
	f.sent = append(f.sent, sent{conversationID, text})
	f.store.Update(ctx, conversationID, conversation.Patch{
		Append: []domain.Message{{Sender: domain.SenderUser, Text: text}, {Sender: domain.SenderBot, Text: "echo: " + text}},
	})
	return nil
}

func (f *fakeSender) DeleteConversation(ctx context.Context, id string) bool {
	f.deleted = append(f.deleted, id)
	return f.store.Delete(ctx, id)
}

func newTestModel(t *testing.T) (Model, *conversation.Store, *fakeSender) {
	t.Helper()
	store, err := conversation.Open(context.Background(), &memPersister{})
	require.NoError(t, err)
	sender := &fakeSender{store: store}
	m := New(context.Background(), sender, store, "Personal Helper")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), store, sender
}

func press(t *testing.T, m Model, key tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(key)
	return next.(Model), cmd
}

func TestView_ShowsConversations(t *testing.T) {
	m, _, _ := newTestModel(t)
	view := m.View()
	require.Contains(t, view, "Personal Helper")
	require.Contains(t, view, "Order #1")
}

func TestEnter_SendsInputToActiveConversation(t *testing.T) {
	m, store, sender := newTestModel(t)
	m.input.SetValue("hi")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.Empty(t, m.input.Value())

	done := cmd()
	require.IsType(t, sendDoneMsg{}, done)
	require.Equal(t, []sent{{store.ActiveID(), "hi"}}, sender.sent)

	next, _ := m.Update(done)
	m = next.(Model)
	require.Contains(t, m.timeline.View(), "echo: hi")
}

func TestEnter_IgnoresBlankInput(t *testing.T) {
	m, _, sender := newTestModel(t)
	m.input.SetValue("   ")

	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Empty(t, sender.sent)
}

func TestEnter_DisabledWhileTyping(t *testing.T) {
	m, store, sender := newTestModel(t)
	store.Update(context.Background(), store.ActiveID(), conversation.Patch{IsTyping: conversation.Bool(true)})
	next, _ := m.Update(storeChangedMsg{})
	m = next.(Model)
	m.input.SetValue("again")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Empty(t, sender.sent)
	require.Equal(t, "again", m.input.Value())
	require.Contains(t, m.timeline.View(), "waiting for the agent")
}

func TestEnter_DisabledUntilSendReturns(t *testing.T) {
	m, store, sender := newTestModel(t)
	m.input.SetValue("first")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.False(t, m.active().IsTyping)

	m.input.SetValue("second")
	m, again := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, again)
	require.Equal(t, "second", m.input.Value())
	require.Contains(t, m.timeline.View(), "waiting for the agent")

	done := cmd()
	require.Equal(t, []sent{{store.ActiveID(), "first"}}, sender.sent)
	next, _ := m.Update(done)
	m = next.(Model)

	m, cmd = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	cmd()
	require.Len(t, sender.sent, 2)
}

func TestCtrlN_CreatesAndActivates(t *testing.T) {
	m, store, _ := newTestModel(t)
	first := store.ActiveID()

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	require.Len(t, m.convs, 2)
	require.NotEqual(t, first, m.activeID)
	require.Contains(t, m.View(), "Order #2")
}

func TestTab_CyclesConversations(t *testing.T) {
	m, store, _ := newTestModel(t)
	first := store.ActiveID()
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	second := store.ActiveID()

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, first, store.ActiveID())
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	require.Equal(t, second, store.ActiveID())
	require.Equal(t, second, m.activeID)
}

func TestCtrlD_DeletesActive(t *testing.T) {
	m, store, sender := newTestModel(t)
	only := store.ActiveID()

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlD})
	require.Equal(t, []string{only}, sender.deleted)
	require.Len(t, m.convs, 1)
	require.NotEqual(t, only, m.activeID)
	require.True(t, strings.Contains(m.View(), "deleted Order #1"))
}

func TestCtrlC_Quits(t *testing.T) {
	m, _, _ := newTestModel(t)
	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestWaitChange(t *testing.T) {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}
	require.IsType(t, storeChangedMsg{}, waitChange(ch)())
	require.Nil(t, waitChange(nil))
}
