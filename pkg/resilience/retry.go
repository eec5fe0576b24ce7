package resilience

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxAttempts   = 3
	DefaultInitialDelay  = time.Second
	DefaultBackoffFactor = 2.0
	DefaultMaxDelay      = 10 * time.Second
	DefaultJitterPercent = 10
)

// RetryPolicy configures retry with exponential backoff.
type RetryPolicy struct {
	MaxAttempts   int           `json:"max_attempts" mapstructure:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay" mapstructure:"initial_delay"`
	BackoffFactor float64       `json:"backoff_factor" mapstructure:"backoff_factor"`
	MaxDelay      time.Duration `json:"max_delay" mapstructure:"max_delay"`
	JitterPercent uint64        `json:"jitter_percent" mapstructure:"jitter_percent"`

	// Retryable overrides IsRetryable when set.
	Retryable func(error) bool `json:"-" mapstructure:"-"`
	// OnRetry is called before each retried attempt.
	OnRetry func(attempt int, err error) `json:"-" mapstructure:"-"`
}

// DefaultRetryPolicy returns the stock policy: 3 attempts, 1s doubling to at most 10s, 10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   DefaultMaxAttempts,
		InitialDelay:  DefaultInitialDelay,
		BackoffFactor: DefaultBackoffFactor,
		MaxDelay:      DefaultMaxDelay,
		JitterPercent: DefaultJitterPercent,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = DefaultBackoffFactor
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Retryable == nil {
		p.Retryable = IsRetryable
	}
	return p
}

// backoff builds the delay sequence initial*factor^n, jittered then capped.
func (p RetryPolicy) backoff() retry.Backoff {
	next := p.InitialDelay
	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		d := next
		next = time.Duration(float64(next) * p.BackoffFactor)
		if next > p.MaxDelay {
			next = p.MaxDelay
		}
		return d, false
	})
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	b = retry.WithCappedDuration(p.MaxDelay, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Retry runs fn until it succeeds, returns a non-retryable error, exhausts MaxAttempts
// or ctx is done. The last attempt's error is returned as is.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	policy = policy.withDefaults()

	attempt := 0
	return retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt < policy.MaxAttempts && policy.Retryable(err) {
			if policy.OnRetry != nil {
				policy.OnRetry(attempt, err)
			}
			return retry.RetryableError(err)
		}
		return err
	})
}
