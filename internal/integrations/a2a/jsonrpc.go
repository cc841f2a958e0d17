package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"taskchat/internal/domain"
)

const (
	methodSend    = "message/send"
	methodGetTask = "tasks/get"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type sendParams struct {
	ID      string     `json:"id"`
	Message rpcMessage `json:"message"`
}

type rpcMessage struct {
	Role      string        `json:"role"`
	Parts     []domain.Part `json:"parts"`
	MessageID string        `json:"messageId"`
	ContextID string        `json:"contextId,omitempty"`
}

type taskParams struct {
	ID string `json:"id"`
}

// JSONRPCClient speaks the JSON-RPC dialect: every call is a POST of an
// envelope to the agent's base URL.
type JSONRPCClient struct {
	transport
	nextID atomic.Int64
}

// NewJSONRPCClient returns a client posting JSON-RPC requests to baseURL.
func NewJSONRPCClient(baseURL string, opts ...Option) (*JSONRPCClient, error) {
	t, err := newTransport(baseURL, opts)
	if err != nil {
		return nil, err
	}
	return &JSONRPCClient{transport: t}, nil
}

// SendMessage submits one user message. A null result yields a nil snapshot
// and no error.
func (c *JSONRPCClient) SendMessage(ctx context.Context, in domain.SendRequest) (*domain.TaskSnapshot, error) {
	text := in.Text
	params := sendParams{
		ID: in.TaskID,
		Message: rpcMessage{
			Role:      "user",
			Parts:     []domain.Part{{Text: &text}},
			MessageID: in.MessageID,
			ContextID: in.ContextID,
		},
	}
	snap, err := c.call(ctx, methodSend, params)
	if err != nil {
		return nil, fmt.Errorf("a2a: SendMessage: %w", err)
	}
	return snap, nil
}

// GetTask fetches the current snapshot of taskID with tasks/get.
func (c *JSONRPCClient) GetTask(ctx context.Context, taskID string) (*domain.TaskSnapshot, error) {
	snap, err := c.call(ctx, methodGetTask, taskParams{ID: taskID})
	if err != nil {
		return nil, fmt.Errorf("a2a: GetTask: %w", err)
	}
	return snap, nil
}

func (c *JSONRPCClient) call(ctx context.Context, method string, params any) (*domain.TaskSnapshot, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, c.baseURL+"/", rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return nil, err
	}

	_, raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var res rpcResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, malformed("decode %s response: %v", method, err)
	}
	if res.Error != nil {
		return nil, res.Error
	}
	if len(res.Result) == 0 || bytes.Equal(res.Result, []byte("null")) {
		return nil, nil
	}

	var snap domain.TaskSnapshot
	if err := json.Unmarshal(res.Result, &snap); err != nil {
		return nil, malformed("decode %s result: %v", method, err)
	}
	if snap.Status.State == "" {
		return nil, malformed("%s result has no status", method)
	}
	return &snap, nil
}
