package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/pkg/faults"
)

// State names a circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	DefaultFailureThreshold  = 5
	DefaultRecoveryTimeout   = 30 * time.Second
	DefaultRequiredSuccesses = 3
)

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	FailureThreshold  int           `json:"failure_threshold" mapstructure:"failure_threshold"`
	RecoveryTimeout   time.Duration `json:"recovery_timeout" mapstructure:"recovery_timeout"`
	RequiredSuccesses int           `json:"required_successes" mapstructure:"required_successes"`
}

// DefaultBreakerConfig returns the stock thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  DefaultFailureThreshold,
		RecoveryTimeout:   DefaultRecoveryTimeout,
		RequiredSuccesses: DefaultRequiredSuccesses,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if c.RequiredSuccesses <= 0 {
		c.RequiredSuccesses = DefaultRequiredSuccesses
	}
	return c
}

// CircuitBreakerState is a point-in-time view of a breaker.
type CircuitBreakerState struct {
	Dependency                   string     `json:"dependency"`
	State                        State      `json:"state"`
	ConsecutiveFailures          int        `json:"consecutiveFailures"`
	ConsecutiveHalfOpenSuccesses int        `json:"consecutiveHalfOpenSuccesses"`
	OpenedAt                     *time.Time `json:"openedAt,omitempty"`
	NextRetryAt                  *time.Time `json:"nextRetryAt,omitempty"`
}

// Breaker guards one outbound dependency. It trips after FailureThreshold consecutive
// failures, rejects calls while open, and closes again after RequiredSuccesses
// consecutive half-open successes. Any half-open failure reopens it.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	cb     *gobreaker.CircuitBreaker
	logger zerolog.Logger

	mu          sync.Mutex
	openedAt    time.Time
	nextRetryAt time.Time
}

// NewBreaker creates a breaker for the named dependency.
func NewBreaker(name string, cfg BreakerConfig, logger zerolog.Logger) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger.With().Str("dependency", name).Logger(),
	}

	threshold := uint32(cfg.FailureThreshold)
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.RequiredSuccesses),
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful:  countsAsSuccess,
		OnStateChange: b.onStateChange,
	})
	observability.SetCircuitState(name, 0)
	return b
}

// Name returns the dependency name.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs fn through the breaker. While open it fails fast with a circuit_open
// fault and fn is not called.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return faults.Wrapf(faults.KindCircuitOpen, b.name, err, "circuit open for %s", b.name)
	}
	return err
}

// State returns a snapshot of the breaker.
func (b *Breaker) State() CircuitBreakerState {
	state := b.cb.State()
	counts := b.cb.Counts()

	snap := CircuitBreakerState{
		Dependency:          b.name,
		State:               stateName(state),
		ConsecutiveFailures: int(counts.ConsecutiveFailures),
	}
	if state == gobreaker.StateHalfOpen {
		snap.ConsecutiveHalfOpenSuccesses = int(counts.ConsecutiveSuccesses)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if state != gobreaker.StateClosed && !b.openedAt.IsZero() {
		openedAt, nextRetryAt := b.openedAt, b.nextRetryAt
		snap.OpenedAt = &openedAt
		snap.NextRetryAt = &nextRetryAt
	}
	return snap
}

// onStateChange runs under gobreaker's lock and must not call back into cb.
func (b *Breaker) onStateChange(_ string, from, to gobreaker.State) {
	now := time.Now()

	b.mu.Lock()
	switch to {
	case gobreaker.StateOpen:
		b.openedAt = now
		b.nextRetryAt = now.Add(b.cfg.RecoveryTimeout)
	case gobreaker.StateClosed:
		b.openedAt = time.Time{}
		b.nextRetryAt = time.Time{}
	}
	b.mu.Unlock()

	observability.SetCircuitState(b.name, stateValue(to))

	event := b.logger.Info()
	if to == gobreaker.StateOpen {
		event = b.logger.Warn()
	}
	event.
		Str("from", string(stateName(from))).
		Str("to", string(stateName(to))).
		Msg("Circuit breaker state changed")
}

// countsAsSuccess decides whether an outcome is charged to the dependency. Caller
// cancellation and client errors (bad request, rejected credentials) say nothing about
// the dependency's health.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch faults.KindOf(err) {
	case faults.KindValidation, faults.KindConfig:
		return true
	}
	if code, ok := StatusCode(err); ok && code >= 400 && code < 500 && !retryableStatus(code) {
		return true
	}
	return false
}

func stateName(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
