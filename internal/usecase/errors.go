package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrorTransport      ErrorCode = "TRANSPORT_ERROR"
	ErrorProtocol       ErrorCode = "PROTOCOL_ERROR"
	ErrorStaleReference ErrorCode = "STALE_REFERENCE"
)

// Error is the failure type reported by the lifecycle client.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// protocolFailure is implemented by transport errors that describe a bad
// response rather than a failed exchange.
type protocolFailure interface {
	ProtocolError() bool
}

// classify maps a backend error onto the lifecycle taxonomy. Anything that is
// not a protocol failure is treated as a transport failure.
func classify(err error) ErrorCode {
	var pf protocolFailure
	if errors.As(err, &pf) && pf.ProtocolError() {
		return ErrorProtocol
	}
	return ErrorTransport
}
