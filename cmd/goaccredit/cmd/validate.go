package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/residency-data/goaccredit/internal/batch"
	"github.com/residency-data/goaccredit/internal/config"
	"github.com/residency-data/goaccredit/internal/dataset"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and run preflight checks",
	Long: `Validate checks the configuration file and runs preflight checks
against the local environment before a batch is started.

Checks performed:
  - Configuration syntax and required fields
  - Dataset presence (full dataset or source CSV)
  - Id column present in the dataset header
  - Browser executable, when one is configured
  - Artifact and history directories are writable

Example:
  goaccredit validate --config goaccredit.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

type checkResult struct {
	name string
	err  error
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		cmd.Printf("❌ Configuration invalid: %v\n", err)
		return fmt.Errorf("validation failed")
	}

	cmd.Printf("\n=== Configuration Validation ===\n")
	cmd.Printf("Config file: %s\n\n", GetConfigFile())

	hasErrors := false
	for _, c := range preflightChecks(cfg) {
		if c.err != nil {
			cmd.Printf("❌ %s: %v\n", c.name, c.err)
			hasErrors = true
			continue
		}
		cmd.Printf("✅ %s\n", c.name)
	}

	if hasErrors {
		return fmt.Errorf("validation failed")
	}

	cmd.Println("\n=== Validation Complete ===")
	return nil
}

func preflightChecks(cfg *config.Config) []checkResult {
	checks := []checkResult{{name: "Configuration"}}

	opts := batch.OptionsFromConfig(cfg)
	dataPath := cfg.Files.Full
	if !dataset.Exists(dataPath) {
		dataPath = cfg.Files.Source
	}
	if !dataset.Exists(dataPath) {
		checks = append(checks, checkResult{
			name: "Dataset",
			err:  fmt.Errorf("neither %s nor %s exists", cfg.Files.Full, cfg.Files.Source),
		})
	} else {
		_, err := opts.Schema.Load(dataPath)
		checks = append(checks, checkResult{name: "Dataset " + dataPath, err: err})
	}

	if cfg.Browser.ExecPath != "" {
		_, err := os.Stat(cfg.Browser.ExecPath)
		checks = append(checks, checkResult{name: "Browser executable", err: err})
	}

	checks = append(checks, checkResult{name: "Artifact directory", err: writableDir(cfg.Browser.ArtifactDir)})
	if cfg.History.Enabled {
		checks = append(checks, checkResult{
			name: "History directory",
			err:  writableDir(filepath.Dir(cfg.History.Path)),
		})
	}
	return checks
}

func writableDir(dir string) error {
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, ".goaccredit-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
