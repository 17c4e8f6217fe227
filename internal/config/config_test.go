package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "-5")
	t.Setenv("ROLLUP_INTERVAL", "soon")
	t.Setenv("EXAM_CODE_TTL_HOURS", "abc")

	cfg := Load()
	if cfg.ReportCacheTTL() != time.Minute {
		t.Fatalf("expected 60s cache ttl, got %s", cfg.ReportCacheTTL())
	}
	if cfg.RollupInterval != 15*time.Minute {
		t.Fatalf("expected 15m rollup interval, got %s", cfg.RollupInterval)
	}
	if cfg.ExamCodeTTL() != 72*time.Hour {
		t.Fatalf("expected 72h exam code ttl, got %s", cfg.ExamCodeTTL())
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SALON_ID", "north")
	t.Setenv("LOGIN_RATE_PER_MINUTE", "3")

	cfg := Load()
	if cfg.Address() != ":9090" || cfg.SalonID != "north" || cfg.LoginRatePerMinute != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
