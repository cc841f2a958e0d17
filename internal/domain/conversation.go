package domain

import "time"

// Sender roles used in message history.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Message is a single entry in a conversation's history. Messages are
// append-only and never mutated after insertion.
type Message struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// Conversation is a client-local thread of dialogue bound to one server task
// id at a time. The JSON shape matches what earlier clients persisted.
type Conversation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Messages  []Message `json:"messages"`
	TaskID    string    `json:"taskId"`
	ContextID string    `json:"contextId,omitempty"`
	IsTyping  bool      `json:"isTyping"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Clone returns a deep copy so callers cannot mutate store-owned history.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		copy(out.Messages, c.Messages)
	}
	return out
}
