package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateACGME()...)
	errors = append(errors, c.validateBrowser()...)
	errors = append(errors, c.validateResolver()...)
	errors = append(errors, c.validateBatch()...)
	errors = append(errors, c.validateFiles()...)
	errors = append(errors, c.validateWatchdog()...)
	errors = append(errors, c.validateLogging()...)

	if c.History.Enabled && c.History.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "history.path",
			Message: "path is required when history is enabled",
		})
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateACGME() ValidationErrors {
	var errors ValidationErrors

	for field, raw := range map[string]string{
		"acgme.base_url":   c.ACGME.BaseURL,
		"acgme.search_url": c.ACGME.SearchURL,
	} {
		u, err := url.Parse(raw)
		if raw == "" || err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "must be an absolute URL",
			})
		}
	}

	if c.ACGME.SearchInput == "" {
		errors = append(errors, ValidationError{
			Field:   "acgme.search_input",
			Message: "search_input selector is required",
		})
	}
	if c.ACGME.HistoryRoute == "" {
		errors = append(errors, ValidationError{
			Field:   "acgme.history_route",
			Message: "history_route is required",
		})
	}
	if c.ACGME.HistoryLinkText == "" {
		errors = append(errors, ValidationError{
			Field:   "acgme.history_link_text",
			Message: "history_link_text is required",
		})
	}

	return errors
}

func (c *Config) validateBrowser() ValidationErrors {
	var errors ValidationErrors

	pairs := []struct {
		name     string
		min, max float64
	}{
		{"pre_move", c.Browser.PreMoveMin, c.Browser.PreMoveMax},
		{"hover", c.Browser.HoverMin, c.Browser.HoverMax},
		{"post_click", c.Browser.PostClickMin, c.Browser.PostClickMax},
	}
	for _, p := range pairs {
		if p.min < 0 || p.max < p.min {
			errors = append(errors, ValidationError{
				Field:   "browser." + p.name + "_min",
				Message: "delay bounds must satisfy 0 <= min <= max",
			})
		}
	}

	if c.Browser.WindowWidth < 0 || c.Browser.WindowHeight < 0 {
		errors = append(errors, ValidationError{
			Field:   "browser.window_width",
			Message: "window size cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateResolver() ValidationErrors {
	var errors ValidationErrors

	if c.Resolver.MaxRetries <= 0 {
		errors = append(errors, ValidationError{
			Field:   "resolver.max_retries",
			Message: "max_retries must be positive",
		})
	}

	for field, v := range map[string]float64{
		"resolver.retry_delay_seconds":        c.Resolver.RetryDelaySeconds,
		"resolver.settle_seconds":             c.Resolver.SettleSeconds,
		"resolver.selector_timeout_seconds":   c.Resolver.SelectorTimeoutSeconds,
		"resolver.navigation_timeout_seconds": c.Resolver.NavigationTimeoutSeconds,
		"resolver.table_timeout_seconds":      c.Resolver.TableTimeoutSeconds,
	} {
		if v < 0 {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "cannot be negative",
			})
		}
	}

	return errors
}

func (c *Config) validateBatch() ValidationErrors {
	var errors ValidationErrors

	if c.Batch.SampleSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "batch.sample_size",
			Message: "sample_size must be positive",
		})
	}

	if c.Batch.RecordDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "batch.record_delay_seconds",
			Message: "record_delay_seconds cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateFiles() ValidationErrors {
	var errors ValidationErrors

	required := []struct {
		field, value string
	}{
		{"files.source", c.Files.Source},
		{"files.full", c.Files.Full},
		{"files.success", c.Files.Success},
		{"files.failed", c.Files.Failed},
		{"files.id_column", c.Files.IDColumn},
		{"files.year_column", c.Files.YearColumn},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errors = append(errors, ValidationError{
				Field:   r.field,
				Message: "is required",
			})
		}
	}

	if c.Files.Success != "" && c.Files.Success == c.Files.Failed {
		errors = append(errors, ValidationError{
			Field:   "files.failed",
			Message: "success and failed views must be different files",
		})
	}

	return errors
}

func (c *Config) validateWatchdog() ValidationErrors {
	var errors ValidationErrors

	validModes := map[string]bool{"supervise": true, "attach": true}
	if !validModes[c.Watchdog.Mode] {
		errors = append(errors, ValidationError{
			Field:   "watchdog.mode",
			Message: "mode must be 'supervise' or 'attach'",
		})
	}

	if c.Watchdog.PollIntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "watchdog.poll_interval_seconds",
			Message: "poll_interval_seconds must be positive",
		})
	}

	if c.Watchdog.StallLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "watchdog.stall_limit",
			Message: "stall_limit must be positive",
		})
	}

	if c.Watchdog.CooldownMinMinutes < 0 || c.Watchdog.CooldownMaxMinutes < c.Watchdog.CooldownMinMinutes {
		errors = append(errors, ValidationError{
			Field:   "watchdog.cooldown_min_minutes",
			Message: "cooldown bounds must satisfy 0 <= min <= max",
		})
	}

	if c.Watchdog.Mode == "attach" {
		if c.Watchdog.ProcessPattern == "" {
			errors = append(errors, ValidationError{
				Field:   "watchdog.process_pattern",
				Message: "process_pattern is required in attach mode",
			})
		}
		if len(c.Watchdog.RestartCommand) == 0 {
			errors = append(errors, ValidationError{
				Field:   "watchdog.restart_command",
				Message: "restart_command is required in attach mode",
			})
		}
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
