package provider

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolgate/pkg/resilience"
	"github.com/harun/toolgate/pkg/session"
)

// Settings configures one provider variant.
type Settings struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Options holds what every provider variant shares.
type Options struct {
	SystemPrompt  string
	CallTimeout   time.Duration
	HealthTimeout time.Duration
	MaxTurns      int

	// Store overrides the provider's own history store.
	Store      *session.Store
	Breakers   *resilience.Breakers
	Retry      resilience.RetryPolicy
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

const defaultMaxTokens = 4096

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.HealthTimeout <= 0 {
		o.HealthTimeout = DefaultHealthTimeout
	}
	if o.MaxTurns <= 0 {
		o.MaxTurns = session.DefaultMaxTurns
	}
	if o.Breakers == nil {
		o.Breakers = resilience.NewBreakers(resilience.DefaultBreakerConfig(), o.Logger)
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = resilience.DefaultRetryPolicy()
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	return o
}
