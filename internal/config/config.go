// Package config provides configuration loading, validation, and management
// for the bot engine. It handles reading from YAML files, environment
// variables, setting default values, and validating configuration parameters.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration for all components of the
// engine: logging, database, HTTP server, AI provider credentials, and the
// runtime-replaceable bot settings.
type Config struct {
	Log      LogConfig      `json:"log"      mapstructure:"log"`
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	Server   ServerConfig   `json:"server"   mapstructure:"server"`
	AI       AIConfig       `json:"ai"       mapstructure:"ai"`
	Bot      BotSettings    `json:"bot"      mapstructure:"bot"`
}

// LogConfig controls log level and output format.
type LogConfig struct {
	Level string `json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `json:"json"  mapstructure:"json"`
}

// DatabaseConfig holds SQLite database settings.
type DatabaseConfig struct {
	Path string `json:"path" mapstructure:"path" validate:"required"`
}

// ServerConfig holds HTTP server settings for the webhook and admin surface.
type ServerConfig struct {
	Addr string `json:"addr" mapstructure:"addr" validate:"required"`
}

// AIConfig holds provider credentials and call behavior for the AI responder.
// The per-bot toggle, model, and system prompt live in BotSettings so that an
// administrative settings replace swaps them together with everything else.
type AIConfig struct {
	APIKey      string        `json:"api_key"     mapstructure:"api_key"`
	Temperature float32       `json:"temperature" mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `json:"timeout"     mapstructure:"timeout"     validate:"min=1s,max=10m"`
	MaxRetries  int           `json:"max_retries" mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay  time.Duration `json:"retry_delay" mapstructure:"retry_delay" validate:"min=100ms"`
}

// BotSettings is the configuration unit the administrative surface reads and
// replaces as a whole. A replace must be followed by re-establishing
// ingestion (re-registering the webhook or restarting the poll loop) so that
// stale credentials never silently continue to be used.
type BotSettings struct {
	Token       string `json:"token"        mapstructure:"token" validate:"required"`
	DisplayName string `json:"display_name" mapstructure:"display_name"`
	Active      bool   `json:"active"       mapstructure:"active"`

	// Mode selects the ingestion path: "polling" or "webhook".
	Mode           string        `json:"mode"            mapstructure:"mode"            validate:"oneof=polling webhook"`
	WebhookURL     string        `json:"webhook_url"     mapstructure:"webhook_url"     validate:"omitempty,url"`
	WebhookSecret  string        `json:"webhook_secret"  mapstructure:"webhook_secret"`
	AllowedUpdates []string      `json:"allowed_updates" mapstructure:"allowed_updates" validate:"dive,oneof=message callback_query"`
	PollInterval   time.Duration `json:"poll_interval"   mapstructure:"poll_interval"   validate:"min=100ms,max=5m"`

	FailureThreshold int           `json:"failure_threshold" mapstructure:"failure_threshold" validate:"min=1,max=20"`
	RestartBackoff   time.Duration `json:"restart_backoff"   mapstructure:"restart_backoff"   validate:"min=0"`

	BusinessHours BusinessHoursConfig `json:"business_hours" mapstructure:"business_hours"`
	AutoReply     AutoReplyConfig     `json:"auto_reply"     mapstructure:"auto_reply"`
	AIReply       AIReplyConfig       `json:"ai_reply"       mapstructure:"ai_reply"`
}

// BusinessHoursConfig defines the weekly schedule used by the business-hours
// gate. Start and End are wall-clock times in "HH:MM" form; both ends are
// inclusive. Weekdays is the set of active days ("mon" through "sun").
type BusinessHoursConfig struct {
	Enabled  bool     `json:"enabled"  mapstructure:"enabled"`
	Start    string   `json:"start"    mapstructure:"start"    validate:"omitempty,len=5"`
	End      string   `json:"end"      mapstructure:"end"      validate:"omitempty,len=5"`
	Weekdays []string `json:"weekdays" mapstructure:"weekdays" validate:"dive,oneof=mon tue wed thu fri sat sun"`
}

// AutoReplyConfig holds the canned reply texts and the auto-reply toggle.
type AutoReplyConfig struct {
	Enabled         bool   `json:"enabled"            mapstructure:"enabled"`
	InHoursReply    string `json:"in_hours_reply"     mapstructure:"in_hours_reply"`
	OutOfHoursReply string `json:"out_of_hours_reply" mapstructure:"out_of_hours_reply"`
	FallbackReply   string `json:"fallback_reply"     mapstructure:"fallback_reply"    validate:"required"`
	WelcomeReply    string `json:"welcome_reply"      mapstructure:"welcome_reply"     validate:"required"`
	HelpReply       string `json:"help_reply"         mapstructure:"help_reply"        validate:"required"`
	InfoReply       string `json:"info_reply"         mapstructure:"info_reply"        validate:"required"`
	UnknownCmdReply string `json:"unknown_cmd_reply"  mapstructure:"unknown_cmd_reply" validate:"required"`
}

// AIReplyConfig toggles AI-generated replies and selects model and prompt.
type AIReplyConfig struct {
	Enabled      bool   `json:"enabled"       mapstructure:"enabled"`
	Model        string `json:"model"         mapstructure:"model"`
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt"`
}

// LoadConfig loads and validates configuration from, in order of precedence:
// CAIXABOT_* environment variables, the YAML file at path, and defaults.
// A missing config file is not an error; defaults and env vars apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("CAIXABOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks a BotSettings value on its own. The administrative replace
// operation uses this before swapping the running configuration.
func (s *BotSettings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("settings validation failed: %w", err)
	}
	if s.Mode == "webhook" && s.WebhookURL == "" {
		return fmt.Errorf("settings validation failed: webhook mode requires webhook_url")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("database.path", "caixabot.db")
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("ai.temperature", 1.0)
	v.SetDefault("ai.timeout", 2*time.Minute)
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.retry_delay", 2*time.Second)

	v.SetDefault("bot.active", true)
	v.SetDefault("bot.mode", "polling")
	v.SetDefault("bot.allowed_updates", []string{"message", "callback_query"})
	v.SetDefault("bot.poll_interval", 3*time.Second)
	v.SetDefault("bot.failure_threshold", 3)
	v.SetDefault("bot.restart_backoff", 2*time.Second)

	v.SetDefault("bot.business_hours.enabled", false)
	v.SetDefault("bot.business_hours.start", "09:00")
	v.SetDefault("bot.business_hours.end", "18:00")
	v.SetDefault("bot.business_hours.weekdays", []string{"mon", "tue", "wed", "thu", "fri"})

	v.SetDefault("bot.auto_reply.enabled", false)
	v.SetDefault("bot.auto_reply.in_hours_reply", "Thanks for your message! Our team will get back to you shortly.")
	v.SetDefault("bot.auto_reply.out_of_hours_reply", "We are currently closed. We will reply during business hours.")
	v.SetDefault("bot.auto_reply.fallback_reply", "Sorry, something went wrong on our side. Please try again later.")
	v.SetDefault("bot.auto_reply.welcome_reply", "Welcome! Send a message and our team will assist you.")
	v.SetDefault("bot.auto_reply.help_reply", "Available commands: /start, /help, /info")
	v.SetDefault("bot.auto_reply.info_reply", "This is the support channel of your cash-flow assistant.")
	v.SetDefault("bot.auto_reply.unknown_cmd_reply", "Command not recognized. Send /help for the list of commands.")

	v.SetDefault("bot.ai_reply.enabled", false)
	v.SetDefault("bot.ai_reply.model", "gemini-2.0-flash")
	v.SetDefault("bot.ai_reply.system_prompt", "You are a helpful assistant for a cash-flow management product. Keep answers short and practical.")
}
