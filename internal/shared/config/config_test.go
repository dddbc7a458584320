package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("SCORING_TIMEOUT", "")
	t.Setenv("GUEST_CREDIT_TOTAL", "")
	t.Setenv("CHECKOUT_UI_MODE", "")

	cfg := Load()
	if cfg.Env != "dev" {
		t.Fatalf("expected dev env, got %q", cfg.Env)
	}
	if cfg.ScoringTimeout != 30*time.Second {
		t.Fatalf("expected 30s scoring timeout, got %s", cfg.ScoringTimeout)
	}
	if cfg.GuestCreditTotal != 3 {
		t.Fatalf("expected guest credit total 3, got %d", cfg.GuestCreditTotal)
	}
	if cfg.CheckoutUIMode != "embedded" {
		t.Fatalf("expected embedded checkout, got %q", cfg.CheckoutUIMode)
	}
}

func TestLoadOverridesAndInvalidValues(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SCORING_TIMEOUT", "not-a-duration")
	t.Setenv("RATE_LIMIT_BURST", "25")
	t.Setenv("CORS_ALLOW_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("CHECKOUT_UI_MODE", "Redirect")

	cfg := Load()
	if cfg.Env != "production" {
		t.Fatalf("expected production env, got %q", cfg.Env)
	}
	if cfg.ScoringTimeout != 30*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.ScoringTimeout)
	}
	if cfg.RateLimitBurst != 25 {
		t.Fatalf("expected burst 25, got %d", cfg.RateLimitBurst)
	}
	if len(cfg.CORSAllowOrigin) != 2 || cfg.CORSAllowOrigin[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %#v", cfg.CORSAllowOrigin)
	}
	if cfg.CheckoutUIMode != "hosted" {
		t.Fatalf("expected hosted checkout, got %q", cfg.CheckoutUIMode)
	}
}

func TestLoadEnvFilesDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("TAILOR_TEST_A=from-file\nTAILOR_TEST_B=\"quoted\"\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("TAILOR_TEST_A", "from-env")
	os.Unsetenv("TAILOR_TEST_B")
	t.Cleanup(func() { os.Unsetenv("TAILOR_TEST_B") })

	loadEnvFiles(filepath.Join(dir, "missing.env"), path)

	if got := os.Getenv("TAILOR_TEST_A"); got != "from-env" {
		t.Fatalf("expected env to win, got %q", got)
	}
	if got := os.Getenv("TAILOR_TEST_B"); got != "quoted" {
		t.Fatalf("expected quoted value from file, got %q", got)
	}
}
