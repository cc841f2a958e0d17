package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"taskchat/internal/domain"
)

type restSubmit struct {
	ContextID string      `json:"context_id,omitempty"`
	Message   restMessage `json:"message"`
}

type restMessage struct {
	Parts []domain.Part `json:"parts"`
}

type restTask struct {
	Status    domain.TaskStatus `json:"status"`
	Artifacts []domain.Artifact `json:"artifacts,omitempty"`
}

// RESTClient speaks the resource dialect: a submission is accepted with 202
// and a Location header, and that location is then fetched until the task
// settles. The absolute location doubles as the task id.
type RESTClient struct {
	transport
	app string
}

// NewRESTClient returns a client for the task endpoints of app under baseURL.
func NewRESTClient(baseURL, app string, opts ...Option) (*RESTClient, error) {
	app = strings.Trim(strings.TrimSpace(app), "/")
	if app == "" {
		return nil, errors.New("a2a: app name must not be empty")
	}
	t, err := newTransport(baseURL, opts)
	if err != nil {
		return nil, err
	}
	return &RESTClient{transport: t, app: app}, nil
}

// SendMessage posts the message and returns a submitted snapshot whose id is
// the task location. The prior task id is not part of this dialect.
func (c *RESTClient) SendMessage(ctx context.Context, in domain.SendRequest) (*domain.TaskSnapshot, error) {
	text := in.Text
	endpoint := c.baseURL + "/apps/" + url.PathEscape(c.app) + "/tasks"
	req, err := c.newJSONRequest(ctx, http.MethodPost, endpoint, restSubmit{
		ContextID: in.ContextID,
		Message:   restMessage{Parts: []domain.Part{{Text: &text}}},
	})
	if err != nil {
		return nil, err
	}

	res, _, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("a2a: SendMessage: %w", err)
	}
	if res.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("a2a: SendMessage: %w", malformed("expected status 202, got %d", res.StatusCode))
	}
	location := res.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("a2a: SendMessage: %w", malformed("accepted response has no Location"))
	}
	taskURL, err := c.resolve(location)
	if err != nil {
		return nil, fmt.Errorf("a2a: SendMessage: %w", err)
	}
	return &domain.TaskSnapshot{
		ID:     taskURL,
		Status: domain.TaskStatus{State: domain.TaskSubmitted},
	}, nil
}

// GetTask fetches the task resource at taskID, which must be a location
// previously returned by SendMessage.
func (c *RESTClient) GetTask(ctx context.Context, taskID string) (*domain.TaskSnapshot, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, taskID, nil)
	if err != nil {
		return nil, err
	}
	_, raw, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("a2a: GetTask: %w", err)
	}

	var task restTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("a2a: GetTask: %w", malformed("decode task: %v", err))
	}
	if task.Status.State == "" {
		return nil, fmt.Errorf("a2a: GetTask: %w", malformed("task has no status"))
	}
	return &domain.TaskSnapshot{
		ID:        taskID,
		Status:    task.Status,
		Artifacts: task.Artifacts,
	}, nil
}

func (c *RESTClient) resolve(location string) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", malformed("parse Location %q: %v", location, err)
	}
	return base.ResolveReference(ref).String(), nil
}
