package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"notedigest/internal/deliver"
)

// Config is the root of config.json. Channel sections use a pointer Enabled
// so an absent key means "on when credentials are present" while an explicit
// false stays off.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Store      StoreConfig      `json:"store"`
	Notes      NotesConfig      `json:"notes"`
	Summarizer SummarizerConfig `json:"summarizer"`
	Email      EmailSection     `json:"email"`
	Telegram   TelegramSection  `json:"telegram"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
}

type ServerConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type StoreConfig struct {
	Backend  string `json:"backend"` // file|redis
	Path     string `json:"path"`
	RedisURL string `json:"redis_url"`
}

type NotesConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

type SummarizerConfig struct {
	ModelType string `json:"model_type"` // openai|anthropics
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	BaseURL   string `json:"base_url"`
	MaxTokens int    `json:"max_tokens"`
	Timeout   string `json:"timeout"`
}

type EmailSection struct {
	Enabled *bool `json:"enabled"`
	deliver.EmailConfig
}

type TelegramSection struct {
	Enabled  *bool  `json:"enabled"`
	BotToken string `json:"bot_token"`
}

type SchedulerConfig struct {
	DefaultTimezone  string `json:"default_timezone"`
	MaxTimerDelay    string `json:"max_timer_delay"`
	CheckTimeout     string `json:"check_timeout"`
	ExecutionTimeout string `json:"execution_timeout"`
	MaxConcurrent    int    `json:"max_concurrent"`
}

func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = "config.json"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Accept either a bare config object or one nested under "notedigest",
	// so the file can share a config.json with other tools.
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if raw, ok := root["notedigest"]; ok && len(bytes.TrimSpace(raw)) > 0 {
		data = raw
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg.WithDefaults(), nil
}

// applyEnv lets secrets come from the environment instead of config.json.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("NOTEDIGEST_NOTES_TOKEN")); v != "" {
		c.Notes.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("NOTEDIGEST_LLM_API_KEY")); v != "" {
		c.Summarizer.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("NOTEDIGEST_TELEGRAM_BOT_TOKEN")); v != "" {
		c.Telegram.BotToken = v
	}
}

func (c Config) WithDefaults() Config {
	out := c
	if strings.TrimSpace(out.Server.Addr) == "" {
		out.Server.Addr = "127.0.0.1:8787"
	}
	if strings.TrimSpace(out.Store.Backend) == "" {
		if strings.TrimSpace(out.Store.RedisURL) != "" {
			out.Store.Backend = "redis"
		} else {
			out.Store.Backend = "file"
		}
	}
	if strings.TrimSpace(out.Store.Path) == "" {
		out.Store.Path = "data/schedules.json"
	}
	if strings.TrimSpace(out.Summarizer.ModelType) == "" {
		out.Summarizer.ModelType = "anthropics"
	}
	if out.Summarizer.MaxTokens <= 0 {
		out.Summarizer.MaxTokens = 2048
	}
	if strings.TrimSpace(out.Scheduler.DefaultTimezone) == "" {
		out.Scheduler.DefaultTimezone = "UTC"
	}
	if out.Scheduler.MaxConcurrent <= 0 {
		out.Scheduler.MaxConcurrent = 4
	}
	return out
}

func (c Config) Validate() error {
	switch strings.TrimSpace(c.Store.Backend) {
	case "file":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path is required for the file backend")
		}
	case "redis":
		if strings.TrimSpace(c.Store.RedisURL) == "" {
			return errors.New("store.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store.backend: %s", c.Store.Backend)
	}
	if strings.TrimSpace(c.Notes.BaseURL) == "" {
		return errors.New("notes.base_url is required")
	}
	if strings.TrimSpace(c.Summarizer.APIKey) == "" {
		return errors.New("summarizer.api_key is required (or NOTEDIGEST_LLM_API_KEY)")
	}
	if c.EmailEnabled() {
		if err := c.Email.EmailConfig.Validate(); err != nil {
			return fmt.Errorf("email: %w", err)
		}
	}
	if c.TelegramEnabled() && strings.TrimSpace(c.Telegram.BotToken) == "" {
		return errors.New("telegram.bot_token is required when telegram is enabled")
	}
	return nil
}

// EmailEnabled reports whether the email channel should be wired. Absent
// enabled key falls back to "credentials present".
func (c Config) EmailEnabled() bool {
	if c.Email.Enabled != nil {
		return *c.Email.Enabled
	}
	return strings.TrimSpace(c.Email.EmailAddress) != "" &&
		strings.TrimSpace(c.Email.AuthorizationCode) != ""
}

func (c Config) TelegramEnabled() bool {
	if c.Telegram.Enabled != nil {
		return *c.Telegram.Enabled
	}
	return strings.TrimSpace(c.Telegram.BotToken) != ""
}

// MaxTimerDelay parses scheduler.max_timer_delay, defaulting to one minute.
func (c Config) MaxTimerDelay() time.Duration {
	return parseDurationOrDefault(c.Scheduler.MaxTimerDelay, 60*time.Second)
}

// ExecutionTimeout parses scheduler.execution_timeout, defaulting to ten
// minutes.
func (c Config) ExecutionTimeout() time.Duration {
	return parseDurationOrDefault(c.Scheduler.ExecutionTimeout, 10*time.Minute)
}

// CheckTimeout parses scheduler.check_timeout, the bound on how long a
// force-check waits for due schedules before abandoning the wait.
func (c Config) CheckTimeout() time.Duration {
	return parseDurationOrDefault(c.Scheduler.CheckTimeout, 5*time.Minute)
}

// SummarizerTimeout parses summarizer.timeout; zero means the client default.
func (c Config) SummarizerTimeout() time.Duration {
	return parseDurationOrDefault(c.Summarizer.Timeout, 0)
}

func parseDurationOrDefault(raw string, fallback time.Duration) time.Duration {
	text := strings.TrimSpace(raw)
	if text == "" {
		return fallback
	}
	d, err := time.ParseDuration(text)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
