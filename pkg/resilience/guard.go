package resilience

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harun/toolgate/internal/observability"
)

// Guard composes a breaker with a retry policy. The whole retry sequence runs inside
// one breaker call, so a rejection while open is never retried and a retried call
// counts as a single outcome.
type Guard struct {
	Breaker *Breaker
	Policy  RetryPolicy
}

// NewGuard creates a guard over breaker with policy.
func NewGuard(breaker *Breaker, policy RetryPolicy) *Guard {
	dependency := breaker.Name()
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		observability.RecordRetry(dependency)
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	return &Guard{Breaker: breaker, Policy: policy}
}

// Do runs fn under the breaker with retries.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return g.Breaker.Execute(ctx, func(ctx context.Context) error {
		return Retry(ctx, g.Policy, fn)
	})
}

// Breakers owns one breaker per dependency name. It is constructed once per process
// and injected wherever outbound calls are made.
type Breakers struct {
	cfg    BreakerConfig
	logger zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakers creates an empty registry sharing cfg.
func NewBreakers(cfg BreakerConfig, logger zerolog.Logger) *Breakers {
	return &Breakers{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for dependency, creating it on first use.
func (r *Breakers) Get(dependency string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[dependency]; ok {
		return b
	}
	b := NewBreaker(dependency, r.cfg, r.logger)
	r.breakers[dependency] = b
	return b
}

// Guard returns a guard for dependency using policy.
func (r *Breakers) Guard(dependency string, policy RetryPolicy) *Guard {
	return NewGuard(r.Get(dependency), policy)
}

// States returns snapshots of every breaker sorted by dependency.
func (r *Breakers) States() []CircuitBreakerState {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	states := make([]CircuitBreakerState, 0, len(list))
	for _, b := range list {
		states = append(states, b.State())
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Dependency < states[j].Dependency
	})
	return states
}
