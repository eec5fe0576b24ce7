package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harun/toolgate/pkg/faults"
)

// Provider variant names.
const (
	Anthropic = "anthropic"
	OpenAI    = "openai"
	Gemini    = "gemini"
	Ollama    = "ollama"
)

// New builds one provider variant. A missing model, credential or endpoint is a
// config_error.
func New(name string, s Settings, opts Options) (Provider, error) {
	const op = "provider.New"

	if strings.TrimSpace(s.Model) == "" {
		return nil, faults.New(faults.KindConfig, op, fmt.Sprintf("%s: model is required", name))
	}

	opts = opts.withDefaults()

	var backend completer
	switch name {
	case Anthropic:
		if s.APIKey == "" {
			return nil, faults.New(faults.KindConfig, op, "anthropic: api key is required")
		}
		backend = newAnthropic(s, opts)
	case OpenAI:
		if s.APIKey == "" {
			return nil, faults.New(faults.KindConfig, op, "openai: api key is required")
		}
		backend = newOpenAI(s, opts)
	case Gemini:
		if s.APIKey == "" {
			return nil, faults.New(faults.KindConfig, op, "gemini: api key is required")
		}
		backend = newGemini(s, opts)
	case Ollama:
		o, err := newOllama(s, opts)
		if err != nil {
			return nil, faults.Wrap(faults.KindConfig, op, err)
		}
		backend = o
	default:
		return nil, faults.Wrap(faults.KindConfig, op, fmt.Errorf("%w: %s", ErrUnknownProvider, name))
	}

	return newConversation(name, backend, opts), nil
}

// Status describes one registry entry.
type Status struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Active     bool   `json:"active"`
	Error      string `json:"error,omitempty"`
}

// Registry holds the configured provider variants and the active selection.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	failures  map[string]error
	active    string
	logger    zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		failures:  make(map[string]error),
		logger:    logger,
	}
}

// Build constructs every configured provider and selects active. Providers that fail
// to build are recorded as unavailable. The error is non-nil only when active itself
// cannot be used.
func (r *Registry) Build(active string, settings map[string]Settings, opts Options) error {
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p, err := New(name, settings[name], opts)
		if err != nil {
			r.mu.Lock()
			r.failures[name] = err
			r.mu.Unlock()
			r.logger.Warn().Err(err).Str("provider", name).Msg("Provider unavailable")
			continue
		}
		r.Register(p)
	}

	return r.Use(active)
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[p.Name()] = p
	delete(r.failures, p.Name())
}

// Use switches the active provider. The new provider keeps its own history.
func (r *Registry) Use(name string) error {
	const op = "provider.Use"

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[name]; ok {
		if r.active != name {
			r.logger.Info().Str("provider", name).Str("previous", r.active).Msg("Active provider selected")
		}
		r.active = name
		return nil
	}
	if err, ok := r.failures[name]; ok {
		return faults.Wrapf(faults.KindConfig, op, err, "provider %s is not configured", name)
	}
	return faults.Wrap(faults.KindConfig, op, fmt.Errorf("%w: %s", ErrUnknownProvider, name))
}

// Active returns the selected provider.
func (r *Registry) Active() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[r.active]
	if !ok {
		return nil, faults.New(faults.KindConfig, "provider.Active", "no active provider")
	}
	return p, nil
}

// Get returns a configured provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	return p, ok
}

// Statuses lists every known provider, configured or not, sorted by name.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.providers)+len(r.failures))
	for name := range r.providers {
		out = append(out, Status{Name: name, Configured: true, Active: name == r.active})
	}
	for name, err := range r.failures {
		out = append(out, Status{Name: name, Error: err.Error()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Availability checks every configured provider.
func (r *Registry) Availability(ctx context.Context) map[string]bool {
	r.mu.RLock()
	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	r.mu.RUnlock()

	out := make(map[string]bool, len(providers))
	for _, p := range providers {
		out[p.Name()] = p.IsAvailable(ctx)
	}
	return out
}
