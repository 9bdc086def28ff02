package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from the specified file path.
// It supports YAML files and performs environment variable substitution.
// Variables from a .env file in the working directory are loaded first
// without overriding the real environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadOrDefault behaves like Load but falls back to DefaultConfig when the
// file does not exist. Any other read error is returned.
func LoadOrDefault(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		loadDotEnv()
		cfg := DefaultConfig()
		substituteEnvVars(cfg)
		return cfg, nil
	}
	return Load(configPath)
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	loadDotEnv()

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	substituteEnvVars(cfg)

	return cfg, nil
}

// loadDotEnv is best effort; a missing .env is the common case.
func loadDotEnv() {
	_ = godotenv.Load()
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(cfg *Config) {
	cfg.ACGME.BaseURL = expandEnvVar(cfg.ACGME.BaseURL)
	cfg.ACGME.SearchURL = expandEnvVar(cfg.ACGME.SearchURL)

	cfg.Browser.ExecPath = expandEnvVar(cfg.Browser.ExecPath)
	cfg.Browser.UserAgent = expandEnvVar(cfg.Browser.UserAgent)
	cfg.Browser.ArtifactDir = expandEnvVar(cfg.Browser.ArtifactDir)

	cfg.Files.Source = expandEnvVar(cfg.Files.Source)
	cfg.Files.Full = expandEnvVar(cfg.Files.Full)
	cfg.Files.Success = expandEnvVar(cfg.Files.Success)
	cfg.Files.Failed = expandEnvVar(cfg.Files.Failed)

	cfg.Batch.LockDir = expandEnvVar(cfg.Batch.LockDir)
	cfg.History.Path = expandEnvVar(cfg.History.Path)
	cfg.Watchdog.LogOutput = expandEnvVar(cfg.Watchdog.LogOutput)
	cfg.Logging.Output = expandEnvVar(cfg.Logging.Output)
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Return original if env var not found
		return match
	})
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(logLevel, logFormat string, debug, exitOnErrors, headless bool) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if debug {
		c.Run.Debug = true
	}
	if exitOnErrors {
		c.Run.ExitOnErrors = true
	}
	if headless {
		c.Browser.Headless = true
	}
	// Debug implies verbose logging unless a level was chosen explicitly.
	if c.Run.Debug && logLevel == "" {
		c.Logging.Level = "debug"
	}
}
