package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("ATTACK_FLUSH_INTERVAL", "")
	t.Setenv("ADMIN_EMAILS", "")

	cfg := Load()
	if cfg.Port != "5200" || cfg.StoreDriver != "postgres" {
		t.Fatalf("expected port 5200 on postgres, got %s on %s", cfg.Port, cfg.StoreDriver)
	}
	if cfg.AttackFlushEvery != 10*time.Second || cfg.StatsFlushEvery != 30*time.Second {
		t.Fatalf("expected 10s/30s flush intervals, got %s/%s", cfg.AttackFlushEvery, cfg.StatsFlushEvery)
	}
	if len(cfg.AdminEmails) != 0 {
		t.Fatalf("expected no admin emails, got %v", cfg.AdminEmails)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("ADMIN_EMAILS", " a@x.io, ,b@x.io ")
	t.Setenv("ALLOWED_ORIGINS", "https://a.io , https://b.io")
	t.Setenv("STATS_FLUSH_INTERVAL", "1m")
	t.Setenv("ATTACK_FLUSH_COUNT", "not-a-number")

	cfg := Load()
	if cfg.StoreDriver != "memory" {
		t.Fatalf("expected memory driver, got %s", cfg.StoreDriver)
	}
	if len(cfg.AdminEmails) != 2 || cfg.AdminEmails[1] != "b@x.io" {
		t.Fatalf("expected two trimmed emails, got %v", cfg.AdminEmails)
	}
	if cfg.AllowedOrigins != "https://a.io,https://b.io" {
		t.Fatalf("expected normalized origins, got %q", cfg.AllowedOrigins)
	}
	if cfg.StatsFlushEvery != time.Minute {
		t.Fatalf("expected 1m, got %s", cfg.StatsFlushEvery)
	}
	if cfg.AttackFlushCount != 50 {
		t.Fatalf("expected fallback to 50, got %d", cfg.AttackFlushCount)
	}
}
