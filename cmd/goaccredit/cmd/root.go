package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/residency-data/goaccredit/internal/config"
	"github.com/residency-data/goaccredit/internal/logger"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile      string
	logLevel     string
	logFormat    string
	debugMode    bool
	exitOnErrors bool
	headless     bool
)

var rootCmd = &cobra.Command{
	Use:   "goaccredit",
	Short: "ACGME accreditation year resolver",
	Long: `A CLI tool that looks up residency programs on the ACGME public site and
records the academic year of each program's original accreditation.

Features:
  - Browser-driven lookup with a chain of navigation fallbacks
  - Table extraction with OCR recovery from page screenshots
  - Per-record retries and resumable batches over CSV datasets
  - Success and failure views regenerated after every run
  - Progress watchdog that restarts stalled batches`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "goaccredit.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Run switches
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"Dump page markup on unexpected failures and log verbosely")
	rootCmd.PersistentFlags().BoolVar(&exitOnErrors, "exit-on-errors", false,
		"Stop the batch at the first record that cannot be resolved")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", false,
		"Run the browser without a window")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel     string
	LogFormat    string
	Debug        bool
	ExitOnErrors bool
	Headless     bool
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:     logLevel,
		LogFormat:    logFormat,
		Debug:        debugMode,
		ExitOnErrors: exitOnErrors,
		Headless:     headless,
	}
}

// Args returns the persistent flags to hand to a child goaccredit process.
func (o CLIOverrides) Args() []string {
	var args []string
	if o.LogLevel != "" {
		args = append(args, "--log-level", o.LogLevel)
	}
	if o.LogFormat != "" {
		args = append(args, "--log-format", o.LogFormat)
	}
	if o.Debug {
		args = append(args, "--debug")
	}
	if o.ExitOnErrors {
		args = append(args, "--exit-on-errors")
	}
	if o.Headless {
		args = append(args, "--headless")
	}
	return args
}

// loadConfig reads the config file (defaults when it is absent), applies the
// CLI overrides and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	o := GetCLIOverrides()
	cfg.ApplyOverrides(o.LogLevel, o.LogFormat, o.Debug, o.ExitOnErrors, o.Headless)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) (*logger.Logger, error) {
	log, err := logger.New(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}
