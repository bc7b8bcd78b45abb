package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/odvcencio/helmsman/pkg/errors"
)

// Default configuration values exported for documentation and validation
const (
	DefaultBind          = "127.0.0.1:8090"
	DefaultMaxClockSkew  = 300 * time.Second
	DefaultMaxFileBytes  = 1_000_000
	DefaultTreeDepthCap  = 4
	DefaultSuggestModel  = "anthropic/claude-sonnet-4-5"
	DefaultSuggestURL    = "https://openrouter.ai/api/v1"
	DefaultNATSSubject   = "helmsman.suggest"
	DefaultRequestsPerSc = 1.0

	// MinAPIKeyLength is the minimum recommended length for the gateway API key
	MinAPIKeyLength = 32
)

// Config represents the complete helmsman configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Repos   ReposConfig   `yaml:"repos"`
	Suggest SuggestConfig `yaml:"suggest"`
	Notify  NotifyConfig  `yaml:"notify"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Bind          string `yaml:"bind"`
	PublicMetrics bool   `yaml:"public_metrics"`
}

// AuthConfig controls the request-authentication gate
type AuthConfig struct {
	APIKey           string `yaml:"api_key"` // Prefer HELMSMAN_API_KEY
	MaxClockSkewSecs int    `yaml:"max_clock_skew_seconds"`
}

// MaxClockSkew returns the replay window as a duration.
func (a AuthConfig) MaxClockSkew() time.Duration {
	if a.MaxClockSkewSecs <= 0 {
		return DefaultMaxClockSkew
	}
	return time.Duration(a.MaxClockSkewSecs) * time.Second
}

// ReposConfig locates the working copies and sets commit identity
type ReposConfig struct {
	BasePath    string `yaml:"base_path"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
	Remote      string `yaml:"remote"`
}

// SuggestConfig configures the suggestion generator client
type SuggestConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"` // Prefer HELMSMAN_SUGGEST_API_KEY
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// NotifyConfig controls outbound notifications for suggestion lifecycle events
type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	NATS     NATSConfig     `yaml:"nats"`
}

// TelegramConfig configures Telegram notifications
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"` // From @BotFather; prefer HELMSMAN_TELEGRAM_BOT_TOKEN
}

// NATSConfig configures the NATS event publisher
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// LoggingConfig controls the JSONL event log
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// DefaultConfig returns a configuration with sane defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Bind: DefaultBind,
		},
		Auth: AuthConfig{
			MaxClockSkewSecs: int(DefaultMaxClockSkew / time.Second),
		},
		Repos: ReposConfig{
			AuthorName:  "helmsman",
			AuthorEmail: "helmsman@localhost",
			Remote:      "origin",
		},
		Suggest: SuggestConfig{
			BaseURL:           DefaultSuggestURL,
			Model:             DefaultSuggestModel,
			MaxTokens:         4000,
			RequestsPerSecond: DefaultRequestsPerSc,
		},
		Notify: NotifyConfig{
			NATS: NATSConfig{
				Subject: DefaultNATSSubject,
			},
		},
		Logging: LoggingConfig{
			Dir:   "logs",
			Level: "info",
		},
	}
}

// Load reads configuration from path (optional), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "read config file")
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigParse, "parse config file")
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HELMSMAN_BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("HELMSMAN_API_KEY"); v != "" {
		c.Auth.APIKey = v
	}
	if v := os.Getenv("HELMSMAN_MAX_CLOCK_SKEW"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Auth.MaxClockSkewSecs = secs
		}
	}
	if v := os.Getenv("HELMSMAN_REPOS_PATH"); v != "" {
		c.Repos.BasePath = v
	}
	if v := os.Getenv("HELMSMAN_SUGGEST_API_KEY"); v != "" {
		c.Suggest.APIKey = v
	}
	if v := os.Getenv("HELMSMAN_SUGGEST_MODEL"); v != "" {
		c.Suggest.Model = v
	}
	if v := os.Getenv("HELMSMAN_TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv("HELMSMAN_NATS_URL"); v != "" {
		c.Notify.NATS.URL = v
	}
	if v := os.Getenv("HELMSMAN_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// Validate checks the configuration for startup-fatal problems.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.APIKey) == "" {
		return apperrors.New(apperrors.ErrCodeConfigInvalid, "auth.api_key is required (set HELMSMAN_API_KEY)")
	}
	if len(c.Auth.APIKey) < MinAPIKeyLength {
		return apperrors.New(apperrors.ErrCodeConfigInvalid,
			fmt.Sprintf("auth.api_key must be at least %d characters", MinAPIKeyLength))
	}
	if strings.TrimSpace(c.Repos.BasePath) == "" {
		return apperrors.New(apperrors.ErrCodeConfigInvalid, "repos.base_path is required")
	}
	if info, err := os.Stat(c.Repos.BasePath); err != nil || !info.IsDir() {
		return apperrors.New(apperrors.ErrCodeConfigInvalid,
			fmt.Sprintf("repos.base_path %q is not a directory", c.Repos.BasePath))
	}
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return apperrors.New(apperrors.ErrCodeConfigInvalid,
			fmt.Sprintf("server.bind %q is not host:port", c.Server.Bind))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return apperrors.New(apperrors.ErrCodeConfigInvalid,
			fmt.Sprintf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level))
	}
	return nil
}
