package routing

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/datasync"
)

const tracerName = "toolgate.routing"

// Decision is the outcome of routing one request.
type Decision struct {
	Strategy       Strategy                `json:"strategy"`
	Rule           string                  `json:"rule"`
	Keyword        string                  `json:"keyword,omitempty"`
	Scope          string                  `json:"scope,omitempty"`
	Freshness      *datasync.SyncFreshness `json:"freshness,omitempty"`
	FreshnessError string                  `json:"freshnessError,omitempty"`
}

type scopeKey struct{}

// WithScope sets the data scope (realm) that freshness checks use for requests routed
// with ctx.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

func scopeFromContext(ctx context.Context) string {
	scope, _ := ctx.Value(scopeKey{}).(string)
	return scope
}

// Config configures a Router.
type Config struct {
	// Policy defaults to the keyword policy over DefaultKeywords.
	Policy       Policy
	Freshness    FreshnessChecker
	DefaultScope string
	Logger       zerolog.Logger
}

type policyBox struct {
	policy Policy
}

// Router evaluates the current policy. The policy can be swapped while requests are
// being routed.
type Router struct {
	policy       atomic.Pointer[policyBox]
	freshness    FreshnessChecker
	defaultScope string
	logger       zerolog.Logger
}

// NewRouter creates a router.
func NewRouter(cfg Config) *Router {
	if cfg.Policy == nil {
		cfg.Policy = NewKeywordPolicy(DefaultKeywords())
	}
	r := &Router{
		freshness:    cfg.Freshness,
		defaultScope: cfg.DefaultScope,
		logger:       cfg.Logger.With().Str("component", "router").Logger(),
	}
	r.policy.Store(&policyBox{policy: cfg.Policy})
	return r
}

// Policy returns the policy in effect.
func (r *Router) Policy() Policy {
	return r.policy.Load().policy
}

// SetPolicy replaces the policy for subsequent decisions.
func (r *Router) SetPolicy(p Policy) {
	if p == nil {
		return
	}
	r.policy.Store(&policyBox{policy: p})
}

// LoadKeywordsFile loads a keyword file and switches to the keyword policy built from
// it. On error the current policy stays.
func (r *Router) LoadKeywordsFile(path string) error {
	set, err := LoadKeywords(path)
	if err != nil {
		return err
	}
	r.SetPolicy(NewKeywordPolicy(set))
	r.logger.Info().
		Str("path", path).
		Int("write", len(set.Write)).
		Int("fresh", len(set.Fresh)).
		Int("analysis", len(set.Analysis)).
		Msg("Routing keywords loaded")
	return nil
}

// Determine picks the strategy for text. The scope for freshness checks comes from
// WithScope, else the configured default.
func (r *Router) Determine(ctx context.Context, text string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "routing.determine")
	defer span.End()

	scope := scopeFromContext(ctx)
	if scope == "" {
		scope = r.defaultScope
	}
	in := Input{Text: lower(text), Scope: scope, Freshness: r.freshness}

	d := Decision{Strategy: CoordinatedMulti, Rule: RuleDefault}
	for _, rule := range r.Policy().Rules() {
		if got, ok := rule.Apply(ctx, in); ok {
			d = got
			break
		}
	}
	d.Scope = scope

	span.SetAttributes(
		attribute.String("strategy", d.Strategy.String()),
		attribute.String("rule", d.Rule),
	)
	observability.RecordRoutingDecision(d.Rule, d.Strategy.String())

	logger := tracing.LoggerFromContext(ctx, r.logger)
	event := logger.Debug().
		Str("strategy", d.Strategy.String()).
		Str("rule", d.Rule).
		Str("keyword", d.Keyword)
	if d.FreshnessError != "" {
		event = event.Str("freshness_error", d.FreshnessError)
	}
	event.Msg("Strategy determined")
	return d, nil
}
