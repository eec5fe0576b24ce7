// Package faults defines the error taxonomy shared by every toolgate layer.
//
// Each failure carries a Kind that decides how it propagates: config errors make a
// provider unselectable, provider errors abort a request, and tool or sync errors are
// absorbed and surfaced as data.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindConfig        Kind = "config_error"
	KindAuth          Kind = "auth_error"
	KindRateLimit     Kind = "rate_limit_error"
	KindCircuitOpen   Kind = "circuit_open"
	KindUnavailable   Kind = "unavailable"
	KindChatFailed    Kind = "chat_failed"
	KindDispatch      Kind = "dispatch_error"
	KindToolExecution Kind = "tool_execution_error"
	KindSync          Kind = "sync_error"
	KindValidation    Kind = "validation_error"
)

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// New creates a classified error without a cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err. The message defaults to err's text.
func Wrap(kind Kind, op string, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// Wrapf classifies err with a formatted message.
func Wrapf(kind Kind, op string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind. This lets callers test a
// kind with errors.Is(err, faults.ErrAuth).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrConfig        = &Error{Kind: KindConfig}
	ErrAuth          = &Error{Kind: KindAuth}
	ErrRateLimit     = &Error{Kind: KindRateLimit}
	ErrCircuitOpen   = &Error{Kind: KindCircuitOpen}
	ErrUnavailable   = &Error{Kind: KindUnavailable}
	ErrChatFailed    = &Error{Kind: KindChatFailed}
	ErrDispatch      = &Error{Kind: KindDispatch}
	ErrToolExecution = &Error{Kind: KindToolExecution}
	ErrSync          = &Error{Kind: KindSync}
	ErrValidation    = &Error{Kind: KindValidation}
)

// KindOf returns the kind of the outermost classified error in err's chain, or "".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether any error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if fe, ok := err.(*Error); ok && fe.Kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// Message returns a human readable message for err suitable for API responses.
func Message(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindValidation:
		var fe *Error
		errors.As(err, &fe)
		return fe.Message
	case KindAuth:
		return "The AI provider rejected the configured credentials."
	case KindRateLimit:
		return "The AI provider is rate limiting requests. Please try again shortly."
	case KindCircuitOpen, KindUnavailable:
		return "A required service is temporarily unavailable. Please try again later."
	case KindConfig:
		return "The gateway is not configured for this request."
	case KindChatFailed:
		return "The AI provider failed to process the request."
	default:
		return "An unexpected error occurred while processing the request."
	}
}

// Unavailable reports whether err means a dependency is down rather than misused.
func Unavailable(err error) bool {
	switch KindOf(err) {
	case KindCircuitOpen, KindUnavailable, KindRateLimit:
		return true
	}
	return false
}
