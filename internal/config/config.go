// Package config loads runtime configuration from defaults, an optional
// YAML file and REMINDER_* environment variables, in increasing priority.
// Nested keys use double underscores in the environment, e.g.
// REMINDER_SERVER__ADDR maps to server.addr.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/core"
)

// Config is the root configuration
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Scheduler   SchedulerConfig   `koanf:"scheduler"`
	Trigger     TriggerConfig     `koanf:"trigger"`
	Followup    FollowupConfig    `koanf:"followup"`
	Maintenance MaintenanceConfig `koanf:"maintenance"`
	Channels    ChannelsConfig    `koanf:"channels"`
	Templates   TemplatesConfig   `koanf:"templates"`
	Log         LogConfig         `koanf:"log"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Addr          string `koanf:"addr"`
	PublicURL     string `koanf:"public_url"`
	SessionSecret string `koanf:"session_secret"`
}

// DatabaseConfig configures the SQLite store
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// SchedulerConfig configures the precision scheduler
type SchedulerConfig struct {
	Workers          int `koanf:"workers"`
	MisfireGraceSecs int `koanf:"misfire_grace_seconds"`
}

// TriggerConfig configures trigger time computation
type TriggerConfig struct {
	DispatchBufferSecs int    `koanf:"dispatch_buffer_seconds"`
	StaleToleranceSecs int    `koanf:"stale_tolerance_seconds"`
	DefaultTimezone    string `koanf:"default_timezone"`
	FallbackTime       string `koanf:"fallback_time"`
}

// FollowupConfig configures escalation backoff
type FollowupConfig struct {
	BaseMinutes int `koanf:"base_minutes"`
	MaxMinutes  int `koanf:"max_minutes"`
	MaxCount    int `koanf:"max_count"`
}

// MaintenanceConfig configures the periodic safety nets
type MaintenanceConfig struct {
	DailySpec       string `koanf:"daily_spec"`
	FollowupSpec    string `koanf:"followup_spec"`
	RetentionDays   int    `koanf:"retention_days"`
	TokenTTLDays    int    `koanf:"token_ttl_days"`
	CooldownMinutes int    `koanf:"cooldown_minutes"`
}

// ChannelsConfig configures the delivery transports
type ChannelsConfig struct {
	TelegramToken   string `koanf:"telegram_token"`
	EmailWebhookURL string `koanf:"email_webhook_url"`
	SMSWebhookURL   string `koanf:"sms_webhook_url"`
}

// TemplatesConfig configures message catalogs
type TemplatesConfig struct {
	Dir           string `koanf:"dir"`
	DefaultLocale string `koanf:"default_locale"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `koanf:"level"`
}

var defaults = map[string]interface{}{
	"server.addr":                     ":8080",
	"server.public_url":               "http://localhost:8080",
	"server.session_secret":           "",
	"database.path":                   "reminders.db",
	"scheduler.workers":               8,
	"scheduler.misfire_grace_seconds": 300,
	"trigger.dispatch_buffer_seconds": 30,
	"trigger.stale_tolerance_seconds": 300,
	"trigger.default_timezone":        "UTC",
	"trigger.fallback_time":           "09:00",
	"followup.base_minutes":           30,
	"followup.max_minutes":            480,
	"followup.max_count":              10,
	"maintenance.daily_spec":          "10 0 * * *",
	"maintenance.followup_spec":       "@every 5m",
	"maintenance.retention_days":      30,
	"maintenance.token_ttl_days":      7,
	"maintenance.cooldown_minutes":    30,
	"channels.telegram_token":         "",
	"channels.email_webhook_url":      "",
	"channels.sms_webhook_url":        "",
	"templates.dir":                   "templates",
	"templates.default_locale":        "en",
	"log.level":                       "info",
}

// Load builds the configuration. path may be empty or point to a missing
// file; both fall back to defaults plus environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider("REMINDER_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "REMINDER_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be positive")
	}
	if _, err := time.LoadLocation(c.Trigger.DefaultTimezone); err != nil {
		return fmt.Errorf("trigger.default_timezone is invalid: %w", err)
	}
	if _, err := core.ParseTimeOfDay(c.Trigger.FallbackTime); err != nil {
		return fmt.Errorf("trigger.fallback_time is invalid: %w", err)
	}
	if c.Followup.MaxCount < 1 {
		return fmt.Errorf("followup.max_count must be positive")
	}
	return nil
}

// TriggerPolicy converts the trigger section into the engine's policy
func (c *Config) TriggerPolicy() core.TriggerPolicy {
	fallback, _ := core.ParseTimeOfDay(c.Trigger.FallbackTime)
	return core.TriggerPolicy{
		DispatchBuffer:  time.Duration(c.Trigger.DispatchBufferSecs) * time.Second,
		StaleTolerance:  time.Duration(c.Trigger.StaleToleranceSecs) * time.Second,
		DefaultTimezone: c.Trigger.DefaultTimezone,
		FallbackTime:    fallback,
	}
}
