package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/residency-data/goaccredit/internal/batch"
	"github.com/residency-data/goaccredit/internal/config"
	"github.com/residency-data/goaccredit/internal/dataset"
	"github.com/residency-data/goaccredit/internal/lock"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Normalize the full dataset and regenerate the views",
	Long: `Prepare makes sure the full dataset carries the year column as its first
column, creating the full dataset from the source CSV when it does not
exist yet. Legacy year column names are renamed. The success and failure
views are then regenerated from the full dataset.

Example:
  goaccredit prepare --config goaccredit.yaml`,
	RunE: runPrepare,
}

func init() {
	rootCmd.AddCommand(prepareCmd)
}

func runPrepare(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runLock := lock.NewRunLock(cfg.Batch.LockDir, cfg.Files.Full)
	if err := runLock.Acquire(context.Background(), false); err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return fmt.Errorf("a resolution run is working on %s: %w", cfg.Files.Full, err)
		}
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	defer func() { _ = runLock.Release() }()

	from, counts, err := prepareViews(cfg)
	if err != nil {
		return err
	}

	cmd.Printf("Prepared %s from %s\n", cfg.Files.Full, from)
	cmd.Printf("  Total:   %d\n", counts.Total)
	cmd.Printf("  Success: %d (%s)\n", counts.Success, cfg.Files.Success)
	cmd.Printf("  Failed:  %d (%s)\n", counts.Failed, cfg.Files.Failed)
	return nil
}

// prepareViews loads the full dataset, or the source CSV when there is none,
// normalizes it and writes all three views.
func prepareViews(cfg *config.Config) (string, dataset.Counts, error) {
	opts := batch.OptionsFromConfig(cfg)

	from := cfg.Files.Full
	if !dataset.Exists(from) {
		from = cfg.Files.Source
	}
	if !dataset.Exists(from) {
		return "", dataset.Counts{}, fmt.Errorf("no dataset found: neither %s nor %s exists",
			cfg.Files.Full, cfg.Files.Source)
	}

	tbl, err := opts.Schema.Load(from)
	if err != nil {
		return "", dataset.Counts{}, err
	}
	counts, err := opts.Schema.WriteViews(opts.Files.Paths(), tbl)
	if err != nil {
		return "", dataset.Counts{}, fmt.Errorf("failed to write views: %w", err)
	}
	return from, counts, nil
}
