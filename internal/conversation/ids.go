package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identifiers are a millisecond timestamp plus a short random suffix.

func NewConversationID(now time.Time) string { return newID("convo", now) }

func NewTaskID(now time.Time) string { return newID("task", now) }

func NewContextID(now time.Time) string { return newID("context", now) }

func NewMessageID(now time.Time) string { return newID("msg", now) }

func newID(kind string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", kind, now.UnixMilli(), newSuffix())
}

var newSuffix = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
}
