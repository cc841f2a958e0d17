package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"taskchat/internal/clock"
	"taskchat/internal/conversation"
	"taskchat/internal/domain"
	"taskchat/internal/metrics"
	"taskchat/internal/poller"
)

// Fixed bot replies used when a task cannot produce its own.
const (
	MsgTaskFailed         = "Sorry, something went wrong."
	MsgUnexpectedResponse = "Sorry, I received an unexpected response."
	MsgPollTrouble        = "Sorry, I had trouble getting the response."
	MsgUnreachable        = "I could not reach my server. Is it running?"
	MsgStartFailed        = "Sorry, I couldn't start the request."
)

// DefaultMaxPollAttempts bounds how many consecutive polls may report a state
// the client does not recognise before the task is abandoned. Tasks reported
// as submitted or working are polled without limit.
const DefaultMaxPollAttempts = 150

// TaskBackend submits messages and fetches task status in one transport
// dialect. A nil snapshot with a nil error means the agent answered without
// a result.
type TaskBackend interface {
	SendMessage(ctx context.Context, req domain.SendRequest) (*domain.TaskSnapshot, error)
	GetTask(ctx context.Context, taskID string) (*domain.TaskSnapshot, error)
}

// Conversations is the part of the conversation store the client mutates.
// Update and Delete report false for unknown ids.
type Conversations interface {
	Get(id string) (domain.Conversation, bool)
	List() []domain.Conversation
	Update(ctx context.Context, id string, p conversation.Patch) bool
	Delete(ctx context.Context, id string) bool
}

// PollScheduler runs one recurring tick per registered task id.
type PollScheduler interface {
	Register(ctx context.Context, taskID, conversationID string, tick poller.TickFunc) bool
	Cancel(taskID string) bool
	CancelAll(conversationID string) int
	Stop()
}

// Client drives tasks from submission to a terminal outcome and records the
// result in the conversation that started them. Send responses and poll
// responses are reconciled by the same routine.
type Client struct {
	backend         TaskBackend
	store           Conversations
	polls           PollScheduler
	clock           clock.Clock
	metrics         *metrics.Metrics
	maxPollAttempts int

	// mu serializes reconciliation with supersession so a result for a task
	// that was just replaced can never be applied after the replacement.
	mu      sync.Mutex
	sending map[string]*pendingSend
	// unknown counts consecutive unrecognised states per conversation.
	unknown map[string]int
}

type pendingSend struct {
	cancel context.CancelFunc
}

// Option configures a Client built by NewClient.
type Option func(*Client)

// WithClock sets the clock used for message ids.
func WithClock(c clock.Clock) Option {
	return func(cl *Client) {
		if c != nil {
			cl.clock = c
		}
	}
}

// WithMetrics records sends and task outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

// WithMaxPollAttempts sets how many consecutive unrecognised task states are
// tolerated before the task is abandoned. Zero disables the ceiling.
func WithMaxPollAttempts(n int) Option {
	return func(cl *Client) {
		if n >= 0 {
			cl.maxPollAttempts = n
		}
	}
}

// NewClient returns a Client with the default poll ceiling and real clock.
func NewClient(backend TaskBackend, store Conversations, polls PollScheduler, opts ...Option) (*Client, error) {
	if backend == nil {
		return nil, errors.New("usecase: task backend must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if polls == nil {
		return nil, errors.New("usecase: poll scheduler must not be nil")
	}
	c := &Client{
		backend:         backend,
		store:           store,
		polls:           polls,
		clock:           clock.Real(),
		maxPollAttempts: DefaultMaxPollAttempts,
		sending:         make(map[string]*pendingSend),
		unknown:         make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Send appends text to the conversation as a user message, submits it and
// applies the response. It blocks for the duration of the submission.
// Transport and protocol failures are recorded in the conversation as a bot
// message and are not returned.
func (c *Client) Send(ctx context.Context, conversationID, text string) error {
	if strings.TrimSpace(text) == "" {
		return newError(ErrorInvalidInput, "empty_text", nil)
	}

	c.mu.Lock()
	conv, ok := c.store.Get(conversationID)
	if !ok {
		c.mu.Unlock()
		return newError(ErrorStaleReference, "unknown_conversation", nil)
	}
	c.supersedeLocked(conversationID)
	c.store.Update(ctx, conversationID, conversation.Patch{
		IsTyping: conversation.Bool(true),
		Append:   []domain.Message{{Sender: domain.SenderUser, Text: text}},
	})
	sendCtx, cancel := context.WithCancel(ctx)
	pending := &pendingSend{cancel: cancel}
	c.sending[conversationID] = pending
	c.mu.Unlock()
	defer cancel()

	c.metrics.MessageSent()
	snap, err := c.backend.SendMessage(sendCtx, domain.SendRequest{
		TaskID:    conv.TaskID,
		ContextID: conv.ContextID,
		MessageID: conversation.NewMessageID(c.clock.Now()),
		Text:      text,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sending[conversationID] != pending {
		slog.Debug("discarding superseded send result", "conversation", conversationID)
		c.metrics.Outcome(metrics.OutcomeDiscarded)
		return nil
	}
	delete(c.sending, conversationID)

	if err != nil {
		code := classify(err)
		slog.Warn("send failed", "conversation", conversationID, "err", newError(code, "send_failed", err))
		reply := MsgUnreachable
		if code == ErrorProtocol {
			reply = MsgStartFailed
		}
		c.finishLocked(ctx, conversationID, reply, metrics.OutcomeSendError)
		return nil
	}

	if snap != nil && snap.ID != "" {
		c.store.Update(ctx, conversationID, conversation.Patch{TaskID: conversation.String(snap.ID)})
	}
	c.applyLocked(ctx, conversationID, snap)
	return nil
}

// ApplySnapshot reconciles one task snapshot into conversationID.
func (c *Client) ApplySnapshot(ctx context.Context, conversationID string, snap *domain.TaskSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(ctx, conversationID, snap)
}

func (c *Client) applyLocked(ctx context.Context, conversationID string, snap *domain.TaskSnapshot) {
	if snap == nil || (snap.ID == "" && !snap.Status.State.Terminal()) {
		c.polls.CancelAll(conversationID)
		delete(c.unknown, conversationID)
		slog.Warn("task response carried no usable result", "conversation", conversationID)
		c.finishLocked(ctx, conversationID, MsgUnexpectedResponse, metrics.OutcomeMalformed)
		return
	}

	state := snap.Status.State
	if state.Known() {
		delete(c.unknown, conversationID)
	}
	switch state {
	case domain.TaskCompleted:
		c.polls.Cancel(snap.ID)
		patch := conversation.Patch{IsTyping: conversation.Bool(false)}
		if text, ok := snap.FirstText(); ok {
			patch.Append = []domain.Message{{Sender: domain.SenderBot, Text: text}}
		} else {
			slog.Info("task completed without text", "task", snap.ID, "conversation", conversationID)
		}
		c.update(ctx, conversationID, patch)
		c.metrics.Outcome(metrics.OutcomeCompleted)
	case domain.TaskFailed:
		c.polls.Cancel(snap.ID)
		c.finishLocked(ctx, conversationID, MsgTaskFailed, metrics.OutcomeFailed)
	default:
		if !state.Known() {
			c.unknown[conversationID]++
			streak := c.unknown[conversationID]
			if c.maxPollAttempts > 0 && streak >= c.maxPollAttempts {
				delete(c.unknown, conversationID)
				c.polls.Cancel(snap.ID)
				slog.Warn("abandoning task stuck in unknown state", "task", snap.ID, "state", string(state), "polls", streak)
				c.finishLocked(context.WithoutCancel(ctx), conversationID, MsgPollTrouble, metrics.OutcomeAbandoned)
				return
			}
			slog.Warn("unknown task state, continuing to poll", "task", snap.ID, "state", string(state))
		}
		c.polls.Register(context.WithoutCancel(ctx), snap.ID, conversationID, c.tick(snap.ID, conversationID))
	}
}

// Poll fetches taskID once and applies the result. It runs as the scheduler
// tick for that task; ctx is cancelled when the task stops being tracked.
func (c *Client) Poll(ctx context.Context, taskID, conversationID string, attempt int) {
	slog.Debug("polling task", "task", taskID, "conversation", conversationID, "attempt", attempt)
	snap, err := c.backend.GetTask(ctx, taskID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		slog.Debug("discarding result for cancelled task", "task", taskID, "conversation", conversationID)
		c.metrics.Outcome(metrics.OutcomeDiscarded)
		return
	}
	// Cancelling the poll cancels ctx; the store write must outlive it.
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		c.polls.Cancel(taskID)
		slog.Warn("task status fetch failed", "task", taskID, "conversation", conversationID,
			"err", newError(classify(err), "poll_failed", err))
		c.finishLocked(ctx, conversationID, MsgPollTrouble, metrics.OutcomePollError)
		return
	}
	if snap != nil && snap.ID == "" {
		snap.ID = taskID
	}
	if snap != nil && snap.ID != taskID {
		// The server moved the conversation to another task; track only that one.
		c.polls.Cancel(taskID)
		c.update(ctx, conversationID, conversation.Patch{TaskID: conversation.String(snap.ID)})
	}
	c.applyLocked(ctx, conversationID, snap)
}

func (c *Client) tick(taskID, conversationID string) poller.TickFunc {
	return func(ctx context.Context, attempt int) {
		c.Poll(ctx, taskID, conversationID, attempt)
	}
}

// Resume re-registers polling for conversations that were still waiting on
// a task when the state was last saved. It returns the number registered.
func (c *Client) Resume(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, conv := range c.store.List() {
		if !conv.IsTyping || conv.TaskID == "" {
			continue
		}
		if c.polls.Register(context.WithoutCancel(ctx), conv.TaskID, conv.ID, c.tick(conv.TaskID, conv.ID)) {
			n++
		}
	}
	if n > 0 {
		slog.Info("resumed polling for pending tasks", "count", n)
	}
	return n
}

// DeleteConversation stops all work for id and removes it from the store.
func (c *Client) DeleteConversation(ctx context.Context, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersedeLocked(id)
	return c.store.Delete(ctx, id)
}

// Close stops every poll and abandons in-flight sends.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls.Stop()
	for id, p := range c.sending {
		p.cancel()
		delete(c.sending, id)
	}
}

func (c *Client) supersedeLocked(conversationID string) {
	if n := c.polls.CancelAll(conversationID); n > 0 {
		slog.Debug("superseded pending polls", "conversation", conversationID, "count", n)
	}
	if p, ok := c.sending[conversationID]; ok {
		p.cancel()
		delete(c.sending, conversationID)
	}
	delete(c.unknown, conversationID)
}

func (c *Client) finishLocked(ctx context.Context, conversationID, reply, outcome string) {
	c.update(ctx, conversationID, conversation.Patch{
		IsTyping: conversation.Bool(false),
		Append:   []domain.Message{{Sender: domain.SenderBot, Text: reply}},
	})
	c.metrics.Outcome(outcome)
}

func (c *Client) update(ctx context.Context, conversationID string, p conversation.Patch) {
	if !c.store.Update(ctx, conversationID, p) {
		slog.Debug("conversation gone, dropping update", "conversation", conversationID,
			"err", newError(ErrorStaleReference, "conversation_deleted", nil))
	}
}
