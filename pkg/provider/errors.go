package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/harun/toolgate/pkg/faults"
	"github.com/harun/toolgate/pkg/resilience"
)

var (
	// ErrUnknownProvider is returned for provider names outside the registry.
	ErrUnknownProvider = errors.New("unknown provider")

	errEmptyMessage   = errors.New("message cannot be empty")
	errMessageTooLong = fmt.Errorf("message exceeds %d characters", MaxMessageLength)
)

// statusError attaches an HTTP status to an SDK error so retry and breaker
// classification can see it.
func statusError(code int, err error) error {
	if code == 0 {
		return err
	}
	return &resilience.StatusError{Code: code, Err: err}
}

// toFault maps a failed guarded call onto the provider error taxonomy.
func toFault(op string, err error) *faults.Error {
	var fe *faults.Error
	if errors.As(err, &fe) {
		switch fe.Kind {
		case faults.KindAuth, faults.KindRateLimit, faults.KindCircuitOpen,
			faults.KindUnavailable, faults.KindChatFailed, faults.KindConfig, faults.KindValidation:
			return fe
		}
	}

	if code, ok := resilience.StatusCode(err); ok {
		switch {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return faults.Wrapf(faults.KindAuth, op, err, "provider rejected credentials (HTTP %d)", code)
		case code == http.StatusTooManyRequests:
			return faults.Wrapf(faults.KindRateLimit, op, err, "provider rate limit exceeded")
		case code >= 500 || code == http.StatusRequestTimeout:
			return faults.Wrapf(faults.KindUnavailable, op, err, "provider unavailable (HTTP %d)", code)
		default:
			return faults.Wrapf(faults.KindChatFailed, op, err, "provider rejected request (HTTP %d)", code)
		}
	}

	if errors.Is(err, context.Canceled) {
		return faults.Wrapf(faults.KindChatFailed, op, err, "request cancelled")
	}
	if resilience.IsRetryable(err) {
		return faults.Wrapf(faults.KindUnavailable, op, err, "provider unreachable: %v", err)
	}
	return faults.Wrap(faults.KindChatFailed, op, err)
}
