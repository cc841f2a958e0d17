package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"taskchat/internal/domain"
	"taskchat/internal/repository"
)

// ErrCorruptState marks persisted state that could not be decoded.
var ErrCorruptState = errors.New("conversation: corrupt persisted state")

// State is the persisted form of the store.
type State struct {
	Conversations map[string]domain.Conversation
	ActiveID      string
}

// Persister mirrors State to durable storage.
type Persister interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// KVPersister stores State under two keys of a repository.KeyValue: the
// JSON-encoded conversation map and the last active conversation id.
type KVPersister struct {
	kv               repository.KeyValue
	conversationsKey string
	activeKey        string
}

// NewKVPersister stores state under keys prefixed with namespace.
func NewKVPersister(kv repository.KeyValue, namespace string) (*KVPersister, error) {
	if kv == nil {
		return nil, errors.New("conversation: key-value store must not be nil")
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return nil, errors.New("conversation: namespace must not be empty")
	}
	return &KVPersister{
		kv:               kv,
		conversationsKey: namespace + "-conversations",
		activeKey:        namespace + "-last-active-convo",
	}, nil
}

// Load returns an empty State when nothing has been stored yet.
func (p *KVPersister) Load(ctx context.Context) (State, error) {
	raw, ok, err := p.kv.Load(ctx, p.conversationsKey)
	if err != nil {
		return State{}, fmt.Errorf("conversation: Load conversations: %w", err)
	}
	state := State{Conversations: map[string]domain.Conversation{}}
	if !ok {
		return state, nil
	}
	if err := json.Unmarshal([]byte(raw), &state.Conversations); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if state.Conversations == nil {
		state.Conversations = map[string]domain.Conversation{}
	}
	for id, c := range state.Conversations {
		if c.ID == "" {
			c.ID = id
			state.Conversations[id] = c
		}
	}

	active, ok, err := p.kv.Load(ctx, p.activeKey)
	if err != nil {
		return State{}, fmt.Errorf("conversation: Load active id: %w", err)
	}
	if ok {
		state.ActiveID = active
	}
	return state, nil
}

// Save writes the full state. An empty conversation set removes both keys.
func (p *KVPersister) Save(ctx context.Context, state State) error {
	if len(state.Conversations) == 0 {
		if err := p.kv.Remove(ctx, p.conversationsKey); err != nil {
			return fmt.Errorf("conversation: Save remove conversations: %w", err)
		}
		if err := p.kv.Remove(ctx, p.activeKey); err != nil {
			return fmt.Errorf("conversation: Save remove active id: %w", err)
		}
		return nil
	}

	enc, err := json.Marshal(state.Conversations)
	if err != nil {
		return fmt.Errorf("conversation: Save marshal: %w", err)
	}
	if err := p.kv.Save(ctx, p.conversationsKey, string(enc)); err != nil {
		return fmt.Errorf("conversation: Save conversations: %w", err)
	}
	if state.ActiveID != "" {
		if err := p.kv.Save(ctx, p.activeKey, state.ActiveID); err != nil {
			return fmt.Errorf("conversation: Save active id: %w", err)
		}
	}
	return nil
}
