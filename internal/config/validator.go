package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator performs advisory checks beyond Config.Validate.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if provider == ProviderOllama {
		return nil
	}
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case ProviderAnthropic:
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case ProviderOpenAI:
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateTopP validates a nucleus sampling value
func (v *Validator) ValidateTopP(topP float64) error {
	if topP < 0 || topP > 1 {
		return fmt.Errorf("top_p must be between 0 and 1, got %f", topP)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("max tokens must not be negative, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateURL validates an absolute http(s) URL
func (v *Validator) ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

// ValidateSchedule validates a cron expression or descriptor
func (v *Validator) ValidateSchedule(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation and returns every problem found
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	for _, name := range KnownProviders {
		p, ok := cfg.Provider.Providers[name]
		if !ok {
			continue
		}
		if name == strings.ToLower(cfg.Provider.Active) {
			if err := v.ValidateAPIKey(p.APIKey, name); err != nil {
				errs = append(errs, fmt.Errorf("provider %s: %w", name, err))
			}
		}
		if err := v.ValidateTemperature(p.Temperature); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", name, err))
		}
		if err := v.ValidateTopP(p.TopP); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", name, err))
		}
		if err := v.ValidateMaxTokens(p.MaxTokens); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", name, err))
		}
		if p.BaseURL != "" {
			if err := v.ValidateURL(p.BaseURL); err != nil {
				errs = append(errs, fmt.Errorf("provider %s: %w", name, err))
			}
		}
	}

	if err := v.ValidateURL(cfg.Backends.Identity.URL); err != nil {
		errs = append(errs, fmt.Errorf("backends.identity: %w", err))
	}
	if err := v.ValidateURL(cfg.Backends.Graph.URL); err != nil {
		errs = append(errs, fmt.Errorf("backends.graph: %w", err))
	}
	if err := v.ValidateSchedule(cfg.Session.CleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("session.cleanup_schedule: %w", err))
	}
	if cfg.Sync.Schedule != "" {
		if err := v.ValidateSchedule(cfg.Sync.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("sync.schedule: %w", err))
		}
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}
