// Package conversation owns the in-memory set of conversations and mirrors
// every mutation to a Persister.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"taskchat/internal/clock"
	"taskchat/internal/domain"
)

// DefaultNamePrefix is prepended to the display number of new conversations.
const DefaultNamePrefix = "Order #"

// Patch lists the fields Update merges into a conversation. Nil fields are
// left untouched; Append is added to the end of the history.
type Patch struct {
	TaskID   *string
	IsTyping *bool
	Append   []domain.Message
}

// Bool returns a pointer to b for use in a Patch.
func Bool(b bool) *bool { return &b }

// String returns a pointer to s for use in a Patch.
func String(s string) *string { return &s }

// Store is safe for concurrent use. Every mutation holds one lock for both
// the existence check and the change, then re-saves the full state.
type Store struct {
	persister  Persister
	clock      clock.Clock
	namePrefix string

	mu       sync.Mutex
	convs    map[string]*domain.Conversation
	order    []string
	activeID string

	saveMu  sync.Mutex
	changes chan struct{}
}

// Option configures a Store opened with Open.
type Option func(*Store)

// WithClock sets the clock used for creation times and ids.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithNamePrefix overrides DefaultNamePrefix. An empty prefix is ignored.
func WithNamePrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.namePrefix = prefix
		}
	}
}

// Open loads the persisted state, backfills missing context ids and makes
// sure at least one conversation exists and is active. Unreadable state is
// discarded and replaced by a single fresh conversation.
func Open(ctx context.Context, p Persister, opts ...Option) (*Store, error) {
	if p == nil {
		return nil, errors.New("conversation: persister must not be nil")
	}
	s := &Store{
		persister:  p,
		clock:      clock.Real(),
		namePrefix: DefaultNamePrefix,
		convs:      make(map[string]*domain.Conversation),
		changes:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	state, err := p.Load(ctx)
	if err != nil {
		slog.Warn("discarding unreadable conversation store", "err", err)
		state = State{}
	}

	backfilled := 0
	for id, c := range state.Conversations {
		c := c.Clone()
		c.ID = id
		if c.ContextID == "" {
			c.ContextID = NewContextID(s.clock.Now())
			backfilled++
		}
		s.convs[id] = &c
		s.order = append(s.order, id)
	}
	sort.SliceStable(s.order, func(i, j int) bool {
		a, b := s.convs[s.order[i]], s.convs[s.order[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	switch {
	case len(s.order) == 0:
		s.Create(ctx)
		return s, nil
	case state.ActiveID != "" && s.convs[state.ActiveID] != nil:
		s.activeID = state.ActiveID
	default:
		s.activeID = s.order[0]
	}
	if backfilled > 0 {
		slog.Info("backfilled missing context ids", "count", backfilled)
		s.persist(ctx)
	}
	return s, nil
}

// Create adds a fresh conversation, makes it active and returns a copy.
func (s *Store) Create(ctx context.Context) domain.Conversation {
	s.mu.Lock()
	c := s.createLocked()
	s.mu.Unlock()
	s.persist(ctx)
	return c
}

func (s *Store) createLocked() domain.Conversation {
	now := s.clock.Now()
	id := NewConversationID(now)
	c := &domain.Conversation{
		ID:        id,
		Name:      s.namePrefix + strconv.Itoa(s.nextNumberLocked()),
		Messages:  []domain.Message{},
		TaskID:    NewTaskID(now),
		ContextID: NewContextID(now),
		CreatedAt: now.UTC(),
	}
	s.convs[id] = c
	s.order = append(s.order, id)
	s.activeID = id
	return c.Clone()
}

func (s *Store) nextNumberLocked() int {
	highest := 0
	for _, c := range s.convs {
		if !strings.HasPrefix(c.Name, s.namePrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(c.Name, s.namePrefix))
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1
}

// Delete removes id. When the active conversation is removed, the first
// remaining conversation becomes active, or a new one is created when none
// remain. It reports whether id existed.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	if _, ok := s.convs[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.convs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.activeID == id || len(s.order) == 0 {
		if len(s.order) > 0 {
			s.activeID = s.order[0]
		} else {
			s.createLocked()
		}
	}
	s.mu.Unlock()
	s.persist(ctx)
	return true
}

// Update merges p into id. It is a no-op returning false when id no longer
// exists, which drops late results for deleted conversations.
func (s *Store) Update(ctx context.Context, id string, p Patch) bool {
	s.mu.Lock()
	c, ok := s.convs[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if p.TaskID != nil {
		c.TaskID = *p.TaskID
	}
	if p.IsTyping != nil {
		c.IsTyping = *p.IsTyping
	}
	if len(p.Append) > 0 {
		c.Messages = append(c.Messages, p.Append...)
	}
	s.mu.Unlock()
	s.persist(ctx)
	return true
}

// SetActive activates id. Unknown ids leave the selection unchanged.
func (s *Store) SetActive(ctx context.Context, id string) bool {
	s.mu.Lock()
	if _, ok := s.convs[id]; !ok {
		s.mu.Unlock()
		return false
	}
	s.activeID = id
	s.mu.Unlock()
	s.persist(ctx)
	return true
}

// Get returns a copy of the conversation with id.
func (s *Store) Get(id string) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return domain.Conversation{}, false
	}
	return c.Clone(), true
}

// Active returns the active conversation.
func (s *Store) Active() domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs[s.activeID].Clone()
}

// ActiveID returns the id of the active conversation.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// List returns copies of all conversations in creation order.
func (s *Store) List() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.convs[id].Clone())
	}
	return out
}

// Changes delivers a signal after mutations. Signals coalesce; receivers
// should re-read the store rather than count them.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) snapshotLocked() State {
	state := State{
		Conversations: make(map[string]domain.Conversation, len(s.convs)),
		ActiveID:      s.activeID,
	}
	for id, c := range s.convs {
		state.Conversations[id] = c.Clone()
	}
	return state
}

// persist saves the latest state. The snapshot is taken after saveMu is held
// so a slower earlier save can never overwrite a newer one.
func (s *Store) persist(ctx context.Context) {
	s.saveMu.Lock()
	s.mu.Lock()
	state := s.snapshotLocked()
	s.mu.Unlock()
	if err := s.persister.Save(context.WithoutCancel(ctx), state); err != nil {
		slog.Error("failed to persist conversations", "err", err)
	}
	s.saveMu.Unlock()

	select {
	case s.changes <- struct{}{}:
	default:
	}
}
