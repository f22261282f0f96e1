package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime settings for the broadcast service.
type Config struct {
	DatabaseURL string
	HTTPAddr    string
	JWTSecret   string

	PollInterval  time.Duration
	FanoutWorkers int
	SendBuffer    int
	SendTimeout   time.Duration

	// WebhookURL may name several endpoints separated by commas.
	WebhookURL         string
	NotifyTemplate     string
	NotifyCooldown     time.Duration
	NotifyDedupeWindow time.Duration

	RateLimitRate  float64
	RateLimitBurst int
}

// fileConfig is the yaml overlay shape. Durations are strings so files
// can say "500ms" rather than nanosecond integers.
type fileConfig struct {
	DatabaseURL string `yaml:"database_url"`
	HTTPAddr    string `yaml:"http_addr"`
	JWTSecret   string `yaml:"jwt_secret"`

	PollInterval  string `yaml:"poll_interval"`
	FanoutWorkers int    `yaml:"fanout_workers"`
	SendBuffer    int    `yaml:"send_buffer"`
	SendTimeout   string `yaml:"send_timeout"`

	WebhookURL         string `yaml:"webhook_url"`
	NotifyTemplate     string `yaml:"notify_template"`
	NotifyCooldown     string `yaml:"notify_cooldown"`
	NotifyDedupeWindow string `yaml:"notify_dedupe_window"`

	RateLimitRate  float64 `yaml:"rate_limit_rate"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// Load reads configuration from the environment, then overlays the
// yaml file named by ALARMCAST_CONFIG when set.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		PollInterval:       getenvDuration("POLL_INTERVAL", time.Second),
		FanoutWorkers:      getenvIntDefault("FANOUT_WORKERS", 16),
		SendBuffer:         getenvIntDefault("SEND_BUFFER", 16),
		SendTimeout:        getenvDuration("SEND_TIMEOUT", 5*time.Second),
		WebhookURL:         os.Getenv("ALARM_WEBHOOK_URL"),
		NotifyTemplate:     getenvDefault("ALARM_NOTIFY_TEMPLATE", ""),
		NotifyCooldown:     getenvDuration("ALARM_NOTIFY_COOLDOWN", 0),
		NotifyDedupeWindow: getenvDuration("ALARM_NOTIFY_DEDUP_WINDOW", 0),
		RateLimitRate:      getenvFloatDefault("RATE_LIMIT_RATE", 10),
		RateLimitBurst:     getenvIntDefault("RATE_LIMIT_BURST", 30),
	}

	if path := os.Getenv("ALARMCAST_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		var file fileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return cfg, err
		}
		if err := overlay(&cfg, file); err != nil {
			return cfg, err
		}
	}

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("config: DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("config: AUTH_JWT_SECRET is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.FanoutWorkers <= 0 {
		cfg.FanoutWorkers = 16
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 16
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return cfg, nil
}

func overlay(cfg *Config, file fileConfig) error {
	if file.DatabaseURL != "" {
		cfg.DatabaseURL = file.DatabaseURL
	}
	if file.HTTPAddr != "" {
		cfg.HTTPAddr = file.HTTPAddr
	}
	if file.JWTSecret != "" {
		cfg.JWTSecret = file.JWTSecret
	}
	if file.FanoutWorkers != 0 {
		cfg.FanoutWorkers = file.FanoutWorkers
	}
	if file.SendBuffer != 0 {
		cfg.SendBuffer = file.SendBuffer
	}
	if file.WebhookURL != "" {
		cfg.WebhookURL = file.WebhookURL
	}
	if file.NotifyTemplate != "" {
		cfg.NotifyTemplate = file.NotifyTemplate
	}
	if file.RateLimitRate != 0 {
		cfg.RateLimitRate = file.RateLimitRate
	}
	if file.RateLimitBurst != 0 {
		cfg.RateLimitBurst = file.RateLimitBurst
	}

	durations := []struct {
		value string
		dst   *time.Duration
	}{
		{file.PollInterval, &cfg.PollInterval},
		{file.SendTimeout, &cfg.SendTimeout},
		{file.NotifyCooldown, &cfg.NotifyCooldown},
		{file.NotifyDedupeWindow, &cfg.NotifyDedupeWindow},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return err
		}
		*d.dst = parsed
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
