package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("unexpected default address %q", cfg.HTTPAddress)
	}
	if cfg.TargetLanguage != "fr" {
		t.Fatalf("unexpected default language %q", cfg.TargetLanguage)
	}
	if cfg.HistoryWindow != 10 {
		t.Fatalf("unexpected default history window %d", cfg.HistoryWindow)
	}
	if cfg.CorrectionTimeout != 20*time.Second {
		t.Fatalf("unexpected default correction timeout %s", cfg.CorrectionTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":9000")
	t.Setenv("HISTORY_WINDOW", "4")
	t.Setenv("CORRECTION_TIMEOUT_SECONDS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.HTTPAddress != ":9000" {
		t.Fatalf("address override ignored: %q", cfg.HTTPAddress)
	}
	if cfg.HistoryWindow != 4 {
		t.Fatalf("history window override ignored: %d", cfg.HistoryWindow)
	}
	if cfg.CorrectionTimeout != 5*time.Second {
		t.Fatalf("correction timeout override ignored: %s", cfg.CorrectionTimeout)
	}
}

func TestLoadRejectsMalformedIntegers(t *testing.T) {
	t.Setenv("HISTORY_WINDOW", "ten")

	if _, err := Load(); err == nil {
		t.Fatalf("expected malformed HISTORY_WINDOW to fail")
	}
}
