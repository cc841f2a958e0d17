package domain

// TaskState is the server-reported lifecycle state of a task.
type TaskState string

const (
	TaskSubmitted TaskState = "submitted"
	TaskWorking   TaskState = "working"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Known reports whether s is one of the recognised states.
func (s TaskState) Known() bool {
	switch s {
	case TaskSubmitted, TaskWorking, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

type TaskStatus struct {
	State TaskState `json:"state"`
}

// Part is one piece of an artifact. Text is nil for non-textual parts.
type Part struct {
	Kind string  `json:"kind,omitempty"`
	Text *string `json:"text,omitempty"`
}

type Artifact struct {
	Parts []Part `json:"parts"`
}

// TaskSnapshot is a transient view of a task returned by send or poll.
type TaskSnapshot struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// FirstText returns the first textual part of the first artifact. Later
// textual parts and later artifacts are not consulted, and an empty first
// text counts as no text.
func (t *TaskSnapshot) FirstText() (string, bool) {
	if t == nil || len(t.Artifacts) == 0 {
		return "", false
	}
	for _, part := range t.Artifacts[0].Parts {
		if part.Text != nil {
			return *part.Text, *part.Text != ""
		}
	}
	return "", false
}

// SendRequest is the dialect-neutral input for submitting a user message.
type SendRequest struct {
	TaskID    string
	ContextID string
	MessageID string
	Text      string
}
