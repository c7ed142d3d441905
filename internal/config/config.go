// Package config loads bot configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the bot process.
type Config struct {
	Log      LogConfig
	Database DatabaseConfig
	Bot      BotConfig
	Kernel   KernelConfig
	Console  ConsoleConfig
}

// LogConfig holds structured logging configuration.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
	// File is an optional log destination; empty logs to stdout.
	File string `env:"LOG_FILE"`
}

// DatabaseConfig holds tag and prefix storage configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/jolteon.db"`
}

// BotConfig holds command-layer behavior configuration.
type BotConfig struct {
	DefaultPrefix          string        `env:"BOT_DEFAULT_PREFIX" envDefault:";"`
	OperatorConversationID string        `env:"BOT_OPERATOR_CONVERSATION_ID"`
	RetractionTimeout      time.Duration `env:"BOT_RETRACTION_TIMEOUT" envDefault:"120s"`
	// Status and ActivityText form the presence advertised by drivers.
	Status       string `env:"BOT_STATUS" envDefault:"online"`
	ActivityText string `env:"BOT_ACTIVITY"`
}

// KernelConfig holds event-bus and lifecycle tuning.
type KernelConfig struct {
	ModuleHookTimeout   time.Duration `env:"KERNEL_MODULE_HOOK_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout     time.Duration `env:"KERNEL_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	SubscriptionBuffer  int           `env:"KERNEL_SUBSCRIPTION_BUFFER" envDefault:"256"`
	SubscriptionWorkers int           `env:"KERNEL_SUBSCRIPTION_WORKERS" envDefault:"2"`
	HandlerTimeout      time.Duration `env:"KERNEL_HANDLER_TIMEOUT" envDefault:"3s"`
}

// ConsoleConfig holds the built-in console driver configuration.
type ConsoleConfig struct {
	Enabled        bool   `env:"CONSOLE_ENABLED" envDefault:"true"`
	CommunityID    string `env:"CONSOLE_COMMUNITY_ID" envDefault:"1"`
	ConversationID string `env:"CONSOLE_CONVERSATION_ID" envDefault:"console"`
	Username       string `env:"CONSOLE_USERNAME" envDefault:"jolteon"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Log); err != nil {
		return nil, fmt.Errorf("parsing log config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Bot); err != nil {
		return nil, fmt.Errorf("parsing bot config: %w", err)
	}
	if err := env.Parse(&cfg.Kernel); err != nil {
		return nil, fmt.Errorf("parsing kernel config: %w", err)
	}
	if err := env.Parse(&cfg.Console); err != nil {
		return nil, fmt.Errorf("parsing console config: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration coherence before wiring.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite3 or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.Bot.DefaultPrefix == "" {
		return fmt.Errorf("BOT_DEFAULT_PREFIX must not be empty")
	}
	if c.Bot.RetractionTimeout <= 0 {
		return fmt.Errorf("BOT_RETRACTION_TIMEOUT must be positive")
	}
	switch c.Bot.Status {
	case "online", "idle", "dnd", "invisible":
	default:
		return fmt.Errorf("BOT_STATUS must be online, idle, dnd, or invisible, got %q", c.Bot.Status)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// SlogLevel maps the configured level name to a slog level.
func (c *LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn, or error, got %q", c.Level)
	}
}
