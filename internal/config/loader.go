package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TOOLGATE_PROVIDER_ACTIVE.
const EnvPrefix = "TOOLGATE"

// envBindings are the keys that can be set from the environment without a config file.
var envBindings = []string{
	"provider.active",
	"provider.llm_timeout",
	"backends.identity.url",
	"backends.graph.url",
	"tools.cache_backend",
	"tools.redis_url",
	"server.addr",
	"logging.level",
	"logging.file",
	"logging.pretty",
	"sync.default_scope",
	"sync.schedule",
	"routing.keywords_file",
	"orchestrator.max_extra_hops",
	"tracing.enabled",
}

// providerKeyEnv maps providers to the conventional API key variables.
var providerKeyEnv = map[string]string{
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderGemini:    "GEMINI_API_KEY",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFiles   []string
}

// NewLoader creates a new config loader. Optional env files are loaded before the
// environment is read; missing files are ignored.
func NewLoader(configPath string, envFiles ...string) *Loader {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	return &Loader{
		configPath: configPath,
		envFiles:   envFiles,
	}
}

// Load loads the configuration from file, then applies environment overrides.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envBindings {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	configPath := l.GetConfigPath()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType(configType(configPath))
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyProviderDefaults(cfg)
	applyProviderKeys(cfg)

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".toolgate")
	}

	return cfg, nil
}

func (l *Loader) loadEnvFiles() error {
	for _, path := range l.envFiles {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// applyProviderDefaults fills fields a partial provider entry in the file left empty.
// Map entries are decoded fresh, so defaults are not merged by Unmarshal.
func applyProviderDefaults(cfg *Config) {
	defaults := DefaultConfig().Provider.Providers
	if cfg.Provider.Providers == nil {
		cfg.Provider.Providers = defaults
		return
	}
	for name, def := range defaults {
		p, ok := cfg.Provider.Providers[name]
		if !ok {
			cfg.Provider.Providers[name] = def
			continue
		}
		if p.Model == "" {
			p.Model = def.Model
		}
		if p.BaseURL == "" {
			p.BaseURL = def.BaseURL
		}
		if p.MaxTokens == 0 {
			p.MaxTokens = def.MaxTokens
		}
		if p.Temperature == 0 {
			p.Temperature = def.Temperature
		}
		cfg.Provider.Providers[name] = p
	}
}

// applyProviderKeys fills missing API keys from TOOLGATE_<PROVIDER>_API_KEY or the
// provider's conventional variable.
func applyProviderKeys(cfg *Config) {
	if cfg.Provider.Providers == nil {
		cfg.Provider.Providers = make(map[string]ProviderConfig)
	}
	for _, name := range KnownProviders {
		p, ok := cfg.Provider.Providers[name]
		if !ok || p.APIKey != "" {
			continue
		}
		key := os.Getenv(EnvPrefix + "_" + strings.ToUpper(name) + "_API_KEY")
		if key == "" {
			if conventional, ok := providerKeyEnv[name]; ok {
				key = os.Getenv(conventional)
			}
		}
		if key != "" {
			p.APIKey = key
			cfg.Provider.Providers[name] = p
		}
	}
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".toolgate", "config.yaml")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
