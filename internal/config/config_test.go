package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ACGME.HistoryLinkText != "View Accreditation History" {
		t.Errorf("unexpected history link text %q", cfg.ACGME.HistoryLinkText)
	}
	if cfg.ACGME.NoResultsMarker != "No Programs found" {
		t.Errorf("unexpected no-results marker %q", cfg.ACGME.NoResultsMarker)
	}

	if cfg.Resolver.MaxRetries != 3 {
		t.Errorf("expected max_retries 3, got %d", cfg.Resolver.MaxRetries)
	}
	if cfg.Resolver.RetryDelay() != 2*time.Second {
		t.Errorf("expected retry delay 2s, got %s", cfg.Resolver.RetryDelay())
	}
	if cfg.Resolver.Settle() != 3500*time.Millisecond {
		t.Errorf("expected settle 3.5s, got %s", cfg.Resolver.Settle())
	}
	if cfg.Resolver.TableTimeout() != 30*time.Second {
		t.Errorf("expected table timeout 30s, got %s", cfg.Resolver.TableTimeout())
	}

	if cfg.Batch.SampleSize != 5 {
		t.Errorf("expected sample_size 5, got %d", cfg.Batch.SampleSize)
	}
	if cfg.Batch.RecordDelay() != 1500*time.Millisecond {
		t.Errorf("expected record delay 1.5s, got %s", cfg.Batch.RecordDelay())
	}

	if cfg.Files.YearColumn != "accreditation_first_academic_year" {
		t.Errorf("unexpected year column %q", cfg.Files.YearColumn)
	}
	if cfg.Files.IDColumn != "program_id" {
		t.Errorf("unexpected id column %q", cfg.Files.IDColumn)
	}

	if cfg.Watchdog.StallLimit != 20 {
		t.Errorf("expected stall_limit 20, got %d", cfg.Watchdog.StallLimit)
	}
	if cfg.Watchdog.PollInterval() != 10*time.Second {
		t.Errorf("expected poll interval 10s, got %s", cfg.Watchdog.PollInterval())
	}
	if cfg.Watchdog.CooldownMinMinutes != 15 || cfg.Watchdog.CooldownMaxMinutes != 20 {
		t.Errorf("unexpected cooldown bounds %d-%d", cfg.Watchdog.CooldownMinMinutes, cfg.Watchdog.CooldownMaxMinutes)
	}

	if cfg.Run.Debug || cfg.Run.ExitOnErrors {
		t.Error("run options should be off by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want time.Duration
	}{
		{0, 0},
		{-1, 0},
		{0.1, 100 * time.Millisecond},
		{1.5, 1500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := Seconds(tt.in); got != tt.want {
			t.Errorf("Seconds(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyOverrides("warn", "json", false, true, true)

	if cfg.Logging.Level != "warn" {
		t.Errorf("expected level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected format json, got %s", cfg.Logging.Format)
	}
	if !cfg.Run.ExitOnErrors {
		t.Error("expected exit_on_errors to be set")
	}
	if !cfg.Browser.Headless {
		t.Error("expected headless to be set")
	}
}

func TestApplyOverrides_DebugRaisesLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyOverrides("", "", true, false, false)

	if !cfg.Run.Debug {
		t.Error("expected debug to be set")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}

	// An explicit level wins over --debug.
	cfg = DefaultConfig()
	cfg.ApplyOverrides("error", "", true, false, false)
	if cfg.Logging.Level != "error" {
		t.Errorf("expected error level, got %s", cfg.Logging.Level)
	}
}

func TestApplyOverrides_EmptyKeepsConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Browser.Headless = true
	cfg.ApplyOverrides("", "", false, false, false)

	if cfg.Logging.Level != "info" {
		t.Errorf("expected level to stay info, got %s", cfg.Logging.Level)
	}
	if !cfg.Browser.Headless {
		t.Error("headless from config should not be cleared by an unset flag")
	}
}
