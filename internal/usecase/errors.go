package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrorConfiguration       ErrorCode = "CONFIGURATION_ERROR"
	ErrorUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrorUpstreamUnreachable ErrorCode = "UPSTREAM_UNREACHABLE"
	ErrorUpstream            ErrorCode = "UPSTREAM_ERROR"
	ErrorUpstreamProtocol    ErrorCode = "UPSTREAM_PROTOCOL_ERROR"
	ErrorInternal            ErrorCode = "INTERNAL_ERROR"
)

// Error is the single failure type crossing the usecase boundary. Message is
// the caller-visible text for the error envelope. Status is set only for
// ErrorUpstream, where the upstream's own HTTP status is relayed as received.
type Error struct {
	Code    ErrorCode
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Message)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
