package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"taskchat/internal/domain"
)

func TestNewKVPersister_Validates(t *testing.T) {
	_, err := NewKVPersister(nil, "ns")
	require.Error(t, err)

	_, err = NewKVPersister(newMemKV(), " ")
	require.Error(t, err)
}

func TestKVPersister_LoadNothingStored(t *testing.T) {
	p := newPersister(t, newMemKV())
	state, err := p.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, state.Conversations)
	require.Empty(t, state.ActiveID)
}

func TestKVPersister_LoadCorrupt(t *testing.T) {
	kv := newMemKV()
	kv.data["test-conversations"] = `{"broken`
	_, err := newPersister(t, kv).Load(context.Background())
	require.ErrorIs(t, err, ErrCorruptState)
}

func TestKVPersister_SaveEmptyRemovesKeys(t *testing.T) {
	kv := newMemKV()
	p := newPersister(t, kv)
	state := State{
		Conversations: map[string]domain.Conversation{"a": {ID: "a", Name: "Order #1"}},
		ActiveID:      "a",
	}
	require.NoError(t, p.Save(context.Background(), state))
	require.Len(t, kv.data, 2)

	require.NoError(t, p.Save(context.Background(), State{}))
	require.Empty(t, kv.data)
}

func TestKVPersister_UsesStableFieldNames(t *testing.T) {
	kv := newMemKV()
	p := newPersister(t, kv)
	state := State{Conversations: map[string]domain.Conversation{"a": {
		ID:        "a",
		Name:      "Order #1",
		Messages:  []domain.Message{{Sender: "user", Text: "hi"}},
		TaskID:    "task-1",
		ContextID: "context-1",
		IsTyping:  true,
	}}}
	require.NoError(t, p.Save(context.Background(), state))

	raw := kv.data["test-conversations"]
	for _, field := range []string{`"id":"a"`, `"name":"Order #1"`, `"sender":"user"`, `"taskId":"task-1"`, `"contextId":"context-1"`, `"isTyping":true`} {
		require.Contains(t, raw, field)
	}
	_, ok := kv.data["test-last-active-convo"]
	require.False(t, ok)
}
