// Package config provides configuration structures and loading for goaccredit.
package config

import "time"

// Config represents the complete application configuration.
type Config struct {
	ACGME    ACGMEConfig    `yaml:"acgme" mapstructure:"acgme"`
	Browser  BrowserConfig  `yaml:"browser" mapstructure:"browser"`
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Files    FilesConfig    `yaml:"files" mapstructure:"files"`
	Watchdog WatchdogConfig `yaml:"watchdog" mapstructure:"watchdog"`
	History  HistoryConfig  `yaml:"history" mapstructure:"history"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
	Run      RunOptions     `yaml:"run" mapstructure:"run"`
}

// ACGMEConfig describes the accreditation lookup site.
type ACGMEConfig struct {
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	SearchURL       string `yaml:"search_url" mapstructure:"search_url"`
	SearchInput     string `yaml:"search_input" mapstructure:"search_input"`         // CSS selector of the search box
	HistoryRoute    string `yaml:"history_route" mapstructure:"history_route"`       // URL fragment of the history page
	HistoryLinkText string `yaml:"history_link_text" mapstructure:"history_link_text"` // visible text of the history link
	NoResultsMarker string `yaml:"no_results_marker" mapstructure:"no_results_marker"`
}

// BrowserConfig controls the automated browser session.
type BrowserConfig struct {
	Headless     bool   `yaml:"headless" mapstructure:"headless"`
	ExecPath     string `yaml:"exec_path" mapstructure:"exec_path"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	WindowWidth  int    `yaml:"window_width" mapstructure:"window_width"`
	WindowHeight int    `yaml:"window_height" mapstructure:"window_height"`
	ArtifactDir  string `yaml:"artifact_dir" mapstructure:"artifact_dir"`

	// Human-like click pauses, in seconds.
	PreMoveMin   float64 `yaml:"pre_move_min" mapstructure:"pre_move_min"`
	PreMoveMax   float64 `yaml:"pre_move_max" mapstructure:"pre_move_max"`
	HoverMin     float64 `yaml:"hover_min" mapstructure:"hover_min"`
	HoverMax     float64 `yaml:"hover_max" mapstructure:"hover_max"`
	PostClickMin float64 `yaml:"post_click_min" mapstructure:"post_click_min"`
	PostClickMax float64 `yaml:"post_click_max" mapstructure:"post_click_max"`
}

// ResolverConfig holds retry policy and wait bounds for a single record.
type ResolverConfig struct {
	MaxRetries               int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelaySeconds        float64 `yaml:"retry_delay_seconds" mapstructure:"retry_delay_seconds"`
	SettleSeconds            float64 `yaml:"settle_seconds" mapstructure:"settle_seconds"`
	SelectorTimeoutSeconds   float64 `yaml:"selector_timeout_seconds" mapstructure:"selector_timeout_seconds"`
	NavigationTimeoutSeconds float64 `yaml:"navigation_timeout_seconds" mapstructure:"navigation_timeout_seconds"`
	TableTimeoutSeconds      float64 `yaml:"table_timeout_seconds" mapstructure:"table_timeout_seconds"`
}

// BatchConfig represents batch run settings.
type BatchConfig struct {
	SampleSize         int     `yaml:"sample_size" mapstructure:"sample_size"`
	RecordDelaySeconds float64 `yaml:"record_delay_seconds" mapstructure:"record_delay_seconds"`
	LockDir            string  `yaml:"lock_dir" mapstructure:"lock_dir"`
}

// FilesConfig names the persisted CSV views and their key columns.
type FilesConfig struct {
	Source            string   `yaml:"source" mapstructure:"source"`
	Full              string   `yaml:"full" mapstructure:"full"`
	Success           string   `yaml:"success" mapstructure:"success"`
	Failed            string   `yaml:"failed" mapstructure:"failed"`
	IDColumn          string   `yaml:"id_column" mapstructure:"id_column"`
	YearColumn        string   `yaml:"year_column" mapstructure:"year_column"`
	LegacyYearColumns []string `yaml:"legacy_year_columns" mapstructure:"legacy_year_columns"`
}

// WatchdogConfig represents progress watchdog settings.
type WatchdogConfig struct {
	Mode                string   `yaml:"mode" mapstructure:"mode"` // supervise or attach
	PollIntervalSeconds int      `yaml:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`
	AvgSecondsPerRecord int      `yaml:"avg_seconds_per_record" mapstructure:"avg_seconds_per_record"`
	StallLimit          int      `yaml:"stall_limit" mapstructure:"stall_limit"`
	CooldownMinMinutes  int      `yaml:"cooldown_min_minutes" mapstructure:"cooldown_min_minutes"`
	CooldownMaxMinutes  int      `yaml:"cooldown_max_minutes" mapstructure:"cooldown_max_minutes"`
	ProcessPattern      string   `yaml:"process_pattern" mapstructure:"process_pattern"`
	RestartCommand      []string `yaml:"restart_command" mapstructure:"restart_command"`
	WorkerArgs          []string `yaml:"worker_args" mapstructure:"worker_args"`
	LogOutput           string   `yaml:"log_output" mapstructure:"log_output"`
}

// HistoryConfig represents the run history ledger.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// RunOptions are the per-invocation switches handed to every component.
type RunOptions struct {
	// Debug enables markup dumps and verbose logging.
	Debug bool `yaml:"debug" mapstructure:"debug"`
	// ExitOnErrors stops a batch at the first record that could not be resolved.
	ExitOnErrors bool `yaml:"exit_on_errors" mapstructure:"exit_on_errors"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		ACGME: ACGMEConfig{
			BaseURL:         "https://apps.acgme.org",
			SearchURL:       "https://apps.acgme.org/ads/Public/Programs/Search",
			SearchInput:     `input[type="text"]`,
			HistoryRoute:    "/AccreditationHistoryReport?programId=",
			HistoryLinkText: "View Accreditation History",
			NoResultsMarker: "No Programs found",
		},
		Browser: BrowserConfig{
			Headless:     false,
			WindowWidth:  1366,
			WindowHeight: 900,
			ArtifactDir:  ".",
			PreMoveMin:   0.2,
			PreMoveMax:   0.7,
			HoverMin:     0.1,
			HoverMax:     0.3,
			PostClickMin: 0.2,
			PostClickMax: 0.5,
		},
		Resolver: ResolverConfig{
			MaxRetries:               3,
			RetryDelaySeconds:        2,
			SettleSeconds:            3.5,
			SelectorTimeoutSeconds:   5,
			NavigationTimeoutSeconds: 30,
			TableTimeoutSeconds:      30,
		},
		Batch: BatchConfig{
			SampleSize:         5,
			RecordDelaySeconds: 1.5,
			LockDir:            ".",
		},
		Files: FilesConfig{
			Source:            "freida_programs_output.csv",
			Full:              "freida_programs_output_with_academic_year.csv",
			Success:           "freida_programs_output_success.csv",
			Failed:            "freida_programs_output_failed.csv",
			IDColumn:          "program_id",
			YearColumn:        "accreditation_first_academic_year",
			LegacyYearColumns: []string{"acgme_first_academic_year"},
		},
		Watchdog: WatchdogConfig{
			Mode:                "supervise",
			PollIntervalSeconds: 10,
			AvgSecondsPerRecord: 20,
			StallLimit:          20,
			CooldownMinMinutes:  15,
			CooldownMaxMinutes:  20,
			ProcessPattern:      "goaccredit resolve",
			RestartCommand:      []string{"goaccredit", "resolve", "--failed-only"},
			WorkerArgs:          []string{"resolve", "--failed-only"},
			LogOutput:           "progress_monitor.log",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "goaccredit_history.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Seconds converts a fractional seconds setting to a time.Duration.
func Seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// RetryDelay returns the pause between attempts for one record.
func (r ResolverConfig) RetryDelay() time.Duration { return Seconds(r.RetryDelaySeconds) }

// Settle returns the fixed wait after submitting a search.
func (r ResolverConfig) Settle() time.Duration { return Seconds(r.SettleSeconds) }

// SelectorTimeout returns the bound on locating a single element.
func (r ResolverConfig) SelectorTimeout() time.Duration { return Seconds(r.SelectorTimeoutSeconds) }

// NavigationTimeout returns the bound on waiting for a page navigation.
func (r ResolverConfig) NavigationTimeout() time.Duration {
	return Seconds(r.NavigationTimeoutSeconds)
}

// TableTimeout returns the bound on waiting for the accreditation table.
func (r ResolverConfig) TableTimeout() time.Duration { return Seconds(r.TableTimeoutSeconds) }

// RecordDelay returns the pause after each record of a batch.
func (b BatchConfig) RecordDelay() time.Duration { return Seconds(b.RecordDelaySeconds) }

// PollInterval returns the watchdog polling period.
func (w WatchdogConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds) * time.Second
}
