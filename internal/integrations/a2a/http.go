package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// transport holds the HTTP plumbing shared by both dialects.
type transport struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures either client.
type Option func(*transport)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(t *transport) {
		t.httpClient = httpClient
	}
}

// WithTimeout replaces the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *transport) {
		if d > 0 {
			t.httpClient = &http.Client{Timeout: d}
		}
	}
}

func newTransport(baseURL string, opts []Option) (transport, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return transport{}, errors.New("a2a: base url must not be empty")
	}
	t := transport{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t, nil
}

func (t transport) resolvedHTTPClient() *http.Client {
	if t.httpClient != nil {
		return t.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func (t transport) newJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		enc, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("a2a: marshal request: %w", err)
		}
		body = bytes.NewReader(enc)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("a2a: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do executes req and returns the response with its body read. Non-2xx
// statuses become *HTTPStatusError.
func (t transport) do(req *http.Request) (*http.Response, []byte, error) {
	res, err := t.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        req.URL.String(),
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	return res, buf, nil
}
