// Package config loads inspector settings from file, environment and defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const appName = "inspector"

// Provider names
const (
	ProviderBackend   = "backend"
	ProviderAnthropic = "anthropic"
	ProviderVLLM      = "vllm"
)

// Config is the full inspector configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Database     DatabaseConfig     `mapstructure:"database" yaml:"database"`
	Backend      BackendConfig      `mapstructure:"backend" yaml:"backend"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic" yaml:"anthropic"`
	VLLM         VLLMConfig         `mapstructure:"vllm" yaml:"vllm"`
	Session      SessionConfig      `mapstructure:"session" yaml:"session"`
	Reachability ReachabilityConfig `mapstructure:"reachability" yaml:"reachability"`
	Photos       PhotosConfig       `mapstructure:"photos" yaml:"photos"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// DatabaseConfig enables the report archive when URL is set
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BackendConfig selects the report provider
type BackendConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
}

// AnthropicConfig configures the direct Claude adapter
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}

// VLLMConfig configures the vLLM adapter
type VLLMConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
}

// SessionConfig tunes chat sessions
type SessionConfig struct {
	SystemPrompt   string        `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	TickInterval   time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// ReachabilityConfig configures backend reachability checks
type ReachabilityConfig struct {
	ProbeURL string        `mapstructure:"probe_url" yaml:"probe_url"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// PhotosConfig configures the offline photo cache
type PhotosConfig struct {
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads the config file at path, or inspector.yaml from the usual
// locations when path is empty. A missing default file is not an error.
// Commands that talk to a provider call Validate on the result
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(appName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("$HOME/.config/%s", appName))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Reachability.ProbeURL == "" {
		cfg.Reachability.ProbeURL = cfg.ProviderURL()
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.url", "")
	v.SetDefault("backend.provider", ProviderBackend)
	v.SetDefault("backend.base_url", "")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("vllm.base_url", "http://localhost:8000")
	v.SetDefault("vllm.model", "")
	v.SetDefault("session.system_prompt", "")
	v.SetDefault("session.tick_interval", "20ms")
	v.SetDefault("session.request_timeout", "120s")
	v.SetDefault("reachability.probe_url", "")
	v.SetDefault("reachability.interval", "5s")
	v.SetDefault("photos.cache_dir", defaultCacheDir())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName)
	}
	return filepath.Join(home, ".cache", appName)
}

// ProviderURL is the base URL of the configured provider
func (c *Config) ProviderURL() string {
	switch c.Backend.Provider {
	case ProviderAnthropic:
		return "https://api.anthropic.com"
	case ProviderVLLM:
		return c.VLLM.BaseURL
	default:
		return c.Backend.BaseURL
	}
}

// Validate checks that the selected provider is fully configured
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend.Provider {
	case ProviderBackend:
		if c.Backend.BaseURL == "" {
			errs = append(errs, errors.New("backend.base_url is required for the backend provider"))
		}
	case ProviderAnthropic:
		if c.Anthropic.APIKey == "" {
			errs = append(errs, errors.New("anthropic.api_key is required for the anthropic provider"))
		}
	case ProviderVLLM:
		if c.VLLM.Model == "" {
			errs = append(errs, errors.New("vllm.model is required for the vllm provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend.provider %q", c.Backend.Provider))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server.port %d", c.Server.Port))
	}
	if c.Session.TickInterval <= 0 {
		errs = append(errs, errors.New("session.tick_interval must be positive"))
	}
	if c.Session.RequestTimeout <= 0 {
		errs = append(errs, errors.New("session.request_timeout must be positive"))
	}
	if c.Reachability.Interval < time.Second {
		errs = append(errs, errors.New("reachability.interval must be at least 1s"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
