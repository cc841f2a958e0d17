// Package poller runs at most one recurring status fetch per task id.
//
// Each registration arms a single AfterFunc timer that is re-armed only after
// its tick returns, so ticks for one task never overlap. Every registration
// carries a context that is cancelled when the task is cancelled; ticks use it
// to detect that their result arrived after the task stopped being tracked.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"taskchat/internal/clock"
	"taskchat/internal/metrics"
)

// Intervals used by the two transport dialects.
const (
	DefaultInterval = 2 * time.Second
	RESTInterval    = time.Second
)

// TickFunc performs one poll. attempt starts at 1. ctx is cancelled once the
// task is cancelled or superseded.
type TickFunc func(ctx context.Context, attempt int)

type entry struct {
	taskID         string
	conversationID string
	tick           TickFunc
	ctx            context.Context
	cancel         context.CancelFunc
	timer          *clock.Timer
	attempts       int
}

// Scheduler owns the task id -> timer mapping.
type Scheduler struct {
	clock    clock.Clock
	interval time.Duration
	metrics  *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*entry
}

// New returns a Scheduler that ticks every interval on c.
func New(c clock.Clock, interval time.Duration, m *metrics.Metrics) (*Scheduler, error) {
	if c == nil {
		return nil, errors.New("poller: clock must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("poller: interval must be positive")
	}
	return &Scheduler{
		clock:    c,
		interval: interval,
		metrics:  m,
		entries:  make(map[string]*entry),
	}, nil
}

// Interval returns the fixed period between ticks.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Register starts polling taskID on behalf of conversationID. It is a no-op
// returning false when taskID is already registered.
func (s *Scheduler) Register(parent context.Context, taskID, conversationID string, tick TickFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[taskID]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	e := &entry{
		taskID:         taskID,
		conversationID: conversationID,
		tick:           tick,
		ctx:            ctx,
		cancel:         cancel,
	}
	s.entries[taskID] = e
	e.timer = s.clock.AfterFunc(s.interval, func() { s.fire(e) })
	s.metrics.SetActivePolls(len(s.entries))
	return true
}

// Cancel stops polling taskID. Safe to call for ids that are not registered.
func (s *Scheduler) Cancel(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[taskID]
	if !ok {
		return false
	}
	s.removeLocked(e)
	return true
}

// CancelAll stops every poll owned by conversationID and returns how many
// were stopped.
func (s *Scheduler) CancelAll(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.conversationID == conversationID {
			s.removeLocked(e)
			n++
		}
	}
	return n
}

// Stop cancels every registered poll.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		s.removeLocked(e)
	}
}

// Registered reports whether taskID is currently polled.
func (s *Scheduler) Registered(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[taskID]
	return ok
}

// Len returns the number of registered tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) removeLocked(e *entry) {
	delete(s.entries, e.taskID)
	e.timer.Stop()
	e.cancel()
	s.metrics.SetActivePolls(len(s.entries))
}

func (s *Scheduler) fire(e *entry) {
	s.mu.Lock()
	if s.entries[e.taskID] != e {
		s.mu.Unlock()
		return
	}
	e.attempts++
	attempt := e.attempts
	s.mu.Unlock()

	s.metrics.PollTick()
	e.tick(e.ctx, attempt)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[e.taskID] == e {
		e.timer = s.clock.AfterFunc(s.interval, func() { s.fire(e) })
	}
}
