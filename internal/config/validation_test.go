package config

import (
	"strings"
	"testing"
)

func TestValidConfig(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("expected no validation errors, got: %v", err)
	}
}

func TestValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"relative search url", func(c *Config) { c.ACGME.SearchURL = "/ads/search" }, "acgme.search_url"},
		{"missing base url", func(c *Config) { c.ACGME.BaseURL = "" }, "acgme.base_url"},
		{"missing link text", func(c *Config) { c.ACGME.HistoryLinkText = "" }, "acgme.history_link_text"},
		{"zero retries", func(c *Config) { c.Resolver.MaxRetries = 0 }, "resolver.max_retries"},
		{"negative settle", func(c *Config) { c.Resolver.SettleSeconds = -1 }, "resolver.settle_seconds"},
		{"inverted hover bounds", func(c *Config) { c.Browser.HoverMin, c.Browser.HoverMax = 0.5, 0.1 }, "browser.hover_min"},
		{"zero sample size", func(c *Config) { c.Batch.SampleSize = 0 }, "batch.sample_size"},
		{"missing id column", func(c *Config) { c.Files.IDColumn = " " }, "files.id_column"},
		{"same views", func(c *Config) { c.Files.Failed = c.Files.Success }, "files.failed"},
		{"bad watchdog mode", func(c *Config) { c.Watchdog.Mode = "poll" }, "watchdog.mode"},
		{"zero stall limit", func(c *Config) { c.Watchdog.StallLimit = 0 }, "watchdog.stall_limit"},
		{"inverted cooldown", func(c *Config) { c.Watchdog.CooldownMaxMinutes = 1 }, "watchdog.cooldown_min_minutes"},
		{"attach without pattern", func(c *Config) {
			c.Watchdog.Mode = "attach"
			c.Watchdog.ProcessPattern = ""
		}, "watchdog.process_pattern"},
		{"history without path", func(c *Config) { c.History.Path = "" }, "history.path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error mentioning %s, got: %v", tt.field, err)
			}
		})
	}
}

func TestValidationErrors_Aggregates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolver.MaxRetries = 0
	cfg.Batch.SampleSize = 0

	err := cfg.Validate()
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(verrs), verrs)
	}
	if !strings.HasPrefix(err.Error(), "validation failed:") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestValidationErrors_Empty(t *testing.T) {
	var errs ValidationErrors
	if errs.Error() != "" {
		t.Errorf("expected empty string, got %q", errs.Error())
	}
}
