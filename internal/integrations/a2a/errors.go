package a2a

import "fmt"

// HTTPStatusError captures non-2xx agent responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("a2a: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// RPCError is the error member of a JSON-RPC response. It is returned even
// when the HTTP exchange itself succeeded.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("a2a: rpc error %d: %s", e.Code, e.Message)
}

func (e *RPCError) ProtocolError() bool { return true }

type malformedError struct{ msg string }

func (e *malformedError) Error() string { return e.msg }

func (e *malformedError) ProtocolError() bool { return true }

// ErrMalformedResponse is wrapped by every error caused by a response that
// does not have the expected shape.
var ErrMalformedResponse error = &malformedError{msg: "a2a: malformed response"}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedResponse}, args...)...)
}
