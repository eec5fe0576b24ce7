package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Provider names understood by the provider registry.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// KnownProviders lists every provider variant in selection order.
var KnownProviders = []string{ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderOllama}

// Config represents the main toolgate configuration
type Config struct {
	Provider     ProviderSettings   `json:"provider" mapstructure:"provider"`
	Backends     BackendsConfig     `json:"backends" mapstructure:"backends"`
	Resilience   ResilienceConfig   `json:"resilience" mapstructure:"resilience"`
	Session      SessionConfig      `json:"session" mapstructure:"session"`
	Sync         SyncConfig         `json:"sync" mapstructure:"sync"`
	Routing      RoutingConfig      `json:"routing" mapstructure:"routing"`
	Orchestrator OrchestratorConfig `json:"orchestrator" mapstructure:"orchestrator"`
	Tools        ToolsConfig        `json:"tools" mapstructure:"tools"`
	Server       ServerConfig       `json:"server" mapstructure:"server"`
	Logging      LoggingConfig      `json:"logging" mapstructure:"logging"`
	Tracing      TracingConfig      `json:"tracing" mapstructure:"tracing"`
	Hooks        HooksConfig        `json:"hooks" mapstructure:"hooks"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ProviderSettings selects the active LLM provider and configures each variant.
type ProviderSettings struct {
	Active        string                    `json:"active" mapstructure:"active"`
	Providers     map[string]ProviderConfig `json:"providers" mapstructure:"providers"`
	SystemPrompt  string                    `json:"system_prompt" mapstructure:"system_prompt"`
	LLMTimeout    time.Duration             `json:"llm_timeout" mapstructure:"llm_timeout"`
	HealthTimeout time.Duration             `json:"health_timeout" mapstructure:"health_timeout"`
}

// ProviderConfig is the resolved configuration of one provider.
type ProviderConfig struct {
	Model       string  `json:"model" mapstructure:"model"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	TopP        float64 `json:"top_p" mapstructure:"top_p"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// BackendsConfig holds the two tool backends.
type BackendsConfig struct {
	Identity BackendConfig `json:"identity" mapstructure:"identity"`
	Graph    BackendConfig `json:"graph" mapstructure:"graph"`
}

// BackendConfig configures one backend client.
type BackendConfig struct {
	URL           string        `json:"url" mapstructure:"url"`
	Timeout       time.Duration `json:"timeout" mapstructure:"timeout"`
	HealthTimeout time.Duration `json:"health_timeout" mapstructure:"health_timeout"`
}

// ResilienceConfig holds breaker and retry settings shared by every dependency.
type ResilienceConfig struct {
	FailureThreshold  int           `json:"failure_threshold" mapstructure:"failure_threshold"`
	RecoveryTimeout   time.Duration `json:"recovery_timeout" mapstructure:"recovery_timeout"`
	RequiredSuccesses int           `json:"required_successes" mapstructure:"required_successes"`
	MaxAttempts       int           `json:"max_attempts" mapstructure:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay" mapstructure:"initial_delay"`
	BackoffFactor     float64       `json:"backoff_factor" mapstructure:"backoff_factor"`
	MaxDelay          time.Duration `json:"max_delay" mapstructure:"max_delay"`
	JitterPercent     int           `json:"jitter_percent" mapstructure:"jitter_percent"`
}

// SessionConfig holds conversation history settings.
type SessionConfig struct {
	MaxTurns        int           `json:"max_turns" mapstructure:"max_turns"`
	IdleTimeout     time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	CleanupSchedule string        `json:"cleanup_schedule" mapstructure:"cleanup_schedule"`
}

// SyncConfig holds data synchronization settings.
type SyncConfig struct {
	FreshnessThreshold time.Duration `json:"freshness_threshold" mapstructure:"freshness_threshold"`
	DefaultScope       string        `json:"default_scope" mapstructure:"default_scope"`
	BatchSize          int           `json:"batch_size" mapstructure:"batch_size"`
	PostSyncTimeout    time.Duration `json:"post_sync_timeout" mapstructure:"post_sync_timeout"`
	// Schedule runs a background sync of ScheduledScopes; empty disables it.
	Schedule        string   `json:"schedule" mapstructure:"schedule"`
	ScheduledScopes []string `json:"scheduled_scopes" mapstructure:"scheduled_scopes"`
}

// RoutingConfig holds strategy router settings.
type RoutingConfig struct {
	KeywordsFile string `json:"keywords_file" mapstructure:"keywords_file"`
	Watch        bool   `json:"watch" mapstructure:"watch"`
}

// OrchestratorConfig holds tool loop settings.
type OrchestratorConfig struct {
	MaxExtraHops     int  `json:"max_extra_hops" mapstructure:"max_extra_hops"`
	ParallelTools    bool `json:"parallel_tools" mapstructure:"parallel_tools"`
	MaxParallelTools int  `json:"max_parallel_tools" mapstructure:"max_parallel_tools"`
	MaxMessageLength int  `json:"max_message_length" mapstructure:"max_message_length"`
}

// ToolsConfig holds tool catalog settings.
type ToolsConfig struct {
	CacheTTL       time.Duration `json:"cache_ttl" mapstructure:"cache_ttl"`
	CacheBackend   string        `json:"cache_backend" mapstructure:"cache_backend"` // memory, redis
	RedisURL       string        `json:"redis_url" mapstructure:"redis_url"`
	RedisKeyPrefix string        `json:"redis_key_prefix" mapstructure:"redis_key_prefix"`
}

// ServerConfig holds HTTP gateway settings.
type ServerConfig struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	CORSOrigins     []string      `json:"cors_origins" mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
	Stdout      bool    `json:"stdout" mapstructure:"stdout"`
}

// HooksConfig holds lifecycle hook scripts.
type HooksConfig struct {
	Enabled bool         `json:"enabled" mapstructure:"enabled"`
	Hooks   []HookConfig `json:"hooks" mapstructure:"hooks"`
}

// HookConfig is one shell hook bound to a lifecycle event.
type HookConfig struct {
	ID      string        `json:"id" mapstructure:"id"`
	Event   string        `json:"event" mapstructure:"event"`
	Script  string        `json:"script" mapstructure:"script"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	Enabled bool          `json:"enabled" mapstructure:"enabled"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderSettings{
			Active: ProviderAnthropic,
			Providers: map[string]ProviderConfig{
				ProviderAnthropic: {
					Model:       "claude-sonnet-4-20250514",
					Temperature: 0.3,
					MaxTokens:   4096,
				},
				ProviderOpenAI: {
					Model:       "gpt-4o-mini",
					Temperature: 0.3,
					MaxTokens:   4096,
				},
				ProviderGemini: {
					Model:       "gemini-2.0-flash",
					BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
					Temperature: 0.3,
					MaxTokens:   4096,
				},
				ProviderOllama: {
					Model:       "llama3.1",
					BaseURL:     "http://localhost:11434",
					Temperature: 0.3,
				},
			},
			LLMTimeout:    30 * time.Second,
			HealthTimeout: 5 * time.Second,
		},
		Backends: BackendsConfig{
			Identity: BackendConfig{
				URL:           "http://localhost:8001",
				Timeout:       30 * time.Second,
				HealthTimeout: 5 * time.Second,
			},
			Graph: BackendConfig{
				URL:           "http://localhost:8002",
				Timeout:       30 * time.Second,
				HealthTimeout: 5 * time.Second,
			},
		},
		Resilience: ResilienceConfig{
			FailureThreshold:  5,
			RecoveryTimeout:   30 * time.Second,
			RequiredSuccesses: 3,
			MaxAttempts:       3,
			InitialDelay:      time.Second,
			BackoffFactor:     2,
			MaxDelay:          10 * time.Second,
			JitterPercent:     10,
		},
		Session: SessionConfig{
			MaxTurns:        20,
			IdleTimeout:     30 * time.Minute,
			CleanupSchedule: "@every 5m",
		},
		Sync: SyncConfig{
			FreshnessThreshold: 30 * time.Minute,
			DefaultScope:       "master",
			BatchSize:          500,
			PostSyncTimeout:    2 * time.Minute,
		},
		Routing: RoutingConfig{
			Watch: true,
		},
		Orchestrator: OrchestratorConfig{
			MaxExtraHops:     1,
			ParallelTools:    true,
			MaxParallelTools: 4,
			MaxMessageLength: 10000,
		},
		Tools: ToolsConfig{
			CacheTTL:       5 * time.Minute,
			CacheBackend:   "memory",
			RedisURL:       "redis://localhost:6379/0",
			RedisKeyPrefix: "toolgate:",
		},
		Server: ServerConfig{
			Addr:            ":8000",
			CORSOrigins:     []string{"*"},
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			ServiceName: "toolgate",
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config with credentials masked
func (c *Config) String() string {
	masked := *c
	masked.Provider.Providers = make(map[string]ProviderConfig, len(c.Provider.Providers))
	for name, p := range c.Provider.Providers {
		if p.APIKey != "" {
			p.APIKey = "***"
		}
		masked.Provider.Providers[name] = p
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// ActiveProvider returns the configuration of the selected provider.
func (c *Config) ActiveProvider() (ProviderConfig, bool) {
	p, ok := c.Provider.Providers[strings.ToLower(c.Provider.Active)]
	return p, ok
}

// Validate checks if the configuration is structurally valid. Missing credentials
// are not an error here; the provider registry reports them per provider.
func (c *Config) Validate() error {
	active := strings.ToLower(c.Provider.Active)
	if !isKnownProvider(active) {
		return fmt.Errorf("invalid active provider %q (must be one of: %s)", c.Provider.Active, strings.Join(KnownProviders, ", "))
	}
	if _, ok := c.Provider.Providers[active]; !ok {
		return fmt.Errorf("active provider %q has no configuration", active)
	}
	for name, p := range c.Provider.Providers {
		if !isKnownProvider(name) {
			return fmt.Errorf("unknown provider %q", name)
		}
		if p.Model == "" {
			return fmt.Errorf("provider %s: model is required", name)
		}
	}

	for name, b := range map[string]BackendConfig{"identity": c.Backends.Identity, "graph": c.Backends.Graph} {
		if _, err := url.ParseRequestURI(b.URL); err != nil {
			return fmt.Errorf("backend %s: invalid url %q: %w", name, b.URL, err)
		}
	}

	if c.Resilience.FailureThreshold <= 0 || c.Resilience.RequiredSuccesses <= 0 {
		return fmt.Errorf("resilience thresholds must be positive")
	}
	if c.Resilience.MaxAttempts <= 0 {
		return fmt.Errorf("resilience.max_attempts must be positive")
	}
	if c.Session.MaxTurns <= 0 {
		return fmt.Errorf("session.max_turns must be positive")
	}
	if c.Orchestrator.MaxExtraHops < 0 || c.Orchestrator.MaxExtraHops > 10 {
		return fmt.Errorf("orchestrator.max_extra_hops must be between 0 and 10")
	}
	if c.Orchestrator.MaxMessageLength <= 0 {
		return fmt.Errorf("orchestrator.max_message_length must be positive")
	}
	if c.Tools.CacheBackend != "memory" && c.Tools.CacheBackend != "redis" {
		return fmt.Errorf("tools.cache_backend must be memory or redis, got %q", c.Tools.CacheBackend)
	}
	if c.Sync.DefaultScope == "" {
		return fmt.Errorf("sync.default_scope is required")
	}

	return nil
}

func isKnownProvider(name string) bool {
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}
