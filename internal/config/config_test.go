package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"DATABASE_URL", "PG_DSN", "HTTP_ADDR", "AUTH_JWT_SECRET", "JWT_SECRET",
		"POLL_INTERVAL", "FANOUT_WORKERS", "SEND_BUFFER", "SEND_TIMEOUT",
		"ALARM_WEBHOOK_URL", "ALARM_NOTIFY_TEMPLATE", "ALARM_NOTIFY_COOLDOWN",
		"ALARM_NOTIFY_DEDUP_WINDOW", "RATE_LIMIT_RATE", "RATE_LIMIT_BURST",
		"ALARMCAST_CONFIG",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/alarmcast")
	t.Setenv("AUTH_JWT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default addr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("expected default poll interval 1s, got %v", cfg.PollInterval)
	}
	if cfg.FanoutWorkers != 16 {
		t.Fatalf("expected default workers 16, got %d", cfg.FanoutWorkers)
	}
	if cfg.SendTimeout != 5*time.Second {
		t.Fatalf("expected default send timeout 5s, got %v", cfg.SendTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PG_DSN", "postgres://localhost/alarmcast")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("FANOUT_WORKERS", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/alarmcast" {
		t.Fatalf("expected PG_DSN fallback, got %s", cfg.DatabaseURL)
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected JWT_SECRET fallback, got %s", cfg.JWTSecret)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("expected 250ms poll interval, got %v", cfg.PollInterval)
	}
	if cfg.FanoutWorkers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.FanoutWorkers)
	}
}

func TestLoadRequiresDatabaseAndSecret(t *testing.T) {
	clearConfigEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error without database url")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/alarmcast")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/alarmcast")
	t.Setenv("AUTH_JWT_SECRET", "env-secret")

	path := filepath.Join(t.TempDir(), "alarmcast.yaml")
	content := []byte(`
http_addr: ":9090"
poll_interval: 500ms
fanout_workers: 8
webhook_url: https://hooks.example.com/alarms
notify_cooldown: 2m
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ALARMCAST_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected overlay addr :9090, got %s", cfg.HTTPAddr)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Fatalf("expected overlay poll interval 500ms, got %v", cfg.PollInterval)
	}
	if cfg.FanoutWorkers != 8 {
		t.Fatalf("expected overlay workers 8, got %d", cfg.FanoutWorkers)
	}
	if cfg.WebhookURL != "https://hooks.example.com/alarms" {
		t.Fatalf("unexpected webhook url %s", cfg.WebhookURL)
	}
	if cfg.NotifyCooldown != 2*time.Minute {
		t.Fatalf("expected overlay cooldown 2m, got %v", cfg.NotifyCooldown)
	}
	// Env values not named in the file survive.
	if cfg.JWTSecret != "env-secret" {
		t.Fatalf("expected env secret to survive overlay, got %s", cfg.JWTSecret)
	}
}

func TestLoadBadDurationInFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/alarmcast")
	t.Setenv("AUTH_JWT_SECRET", "secret")

	path := filepath.Join(t.TempDir(), "alarmcast.yaml")
	if err := os.WriteFile(path, []byte("poll_interval: soon\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ALARMCAST_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
