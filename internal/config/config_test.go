package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.PollMaxAttempts != 15 {
		t.Errorf("PollMaxAttempts = %d, want 15", cfg.PollMaxAttempts)
	}
	if cfg.PollIntervalMs != 2000 {
		t.Errorf("PollIntervalMs = %d, want 2000", cfg.PollIntervalMs)
	}
	if cfg.PollMinTotalWaitMs != 12000 {
		t.Errorf("PollMinTotalWaitMs = %d, want 12000", cfg.PollMinTotalWaitMs)
	}
	if cfg.SessionTTLMinutes != 30 {
		t.Errorf("SessionTTLMinutes = %d, want 30", cfg.SessionTTLMinutes)
	}
	if cfg.DailyAttemptLimit != 20 {
		t.Errorf("DailyAttemptLimit = %d, want 20", cfg.DailyAttemptLimit)
	}
	if cfg.AttemptCounterPrefix != "checkout:attempts" {
		t.Errorf("AttemptCounterPrefix = %q, want checkout:attempts", cfg.AttemptCounterPrefix)
	}
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	env := `SERVER_PORT=9999
DATABASE_URL=postgres://localhost/checkout_test
JWT_SECRET=envfile-secret
POLL_MAX_ATTEMPTS=5
`
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatalf("writing .env: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.ServerPort != "9999" {
		t.Errorf("ServerPort = %q, want 9999", cfg.ServerPort)
	}
	if cfg.DatabaseURL != "postgres://localhost/checkout_test" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.JWTSecret != "envfile-secret" {
		t.Errorf("JWTSecret = %q", cfg.JWTSecret)
	}
	if cfg.PollMaxAttempts != 5 {
		t.Errorf("PollMaxAttempts = %d, want 5", cfg.PollMaxAttempts)
	}
}

func TestLoadConfigPortOverride(t *testing.T) {
	t.Setenv("PORT", "3000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want PORT override 3000", cfg.ServerPort)
	}
}

func TestLoadConfigSanitizesInvalidValues(t *testing.T) {
	t.Setenv("SESSION_TTL_MINUTES", "-5")
	t.Setenv("DAILY_ATTEMPT_LIMIT", "0")
	t.Setenv("ATTEMPT_COUNTER_PREFIX", "   ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SessionTTLMinutes != 30 {
		t.Errorf("SessionTTLMinutes = %d, want fallback 30", cfg.SessionTTLMinutes)
	}
	if cfg.DailyAttemptLimit != 20 {
		t.Errorf("DailyAttemptLimit = %d, want fallback 20", cfg.DailyAttemptLimit)
	}
	if cfg.AttemptCounterPrefix != "checkout:attempts" {
		t.Errorf("AttemptCounterPrefix = %q, want fallback", cfg.AttemptCounterPrefix)
	}
}
