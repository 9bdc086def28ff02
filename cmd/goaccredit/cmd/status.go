package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/residency-data/goaccredit/internal/config"
	"github.com/residency-data/goaccredit/internal/dataset"
	"github.com/residency-data/goaccredit/internal/history"
	"github.com/residency-data/goaccredit/internal/logger"
	"github.com/residency-data/goaccredit/internal/watchdog"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show resolution progress and estimated time left",
	Long: `Status counts the rows of the persisted views, estimates the time needed
for the remaining failures and shows the most recent run from the history
ledger.

Example:
  goaccredit status --config goaccredit.yaml`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	counts, err := progressSource(cfg).Counts(ctx)
	if err != nil {
		return fmt.Errorf("failed to read progress: %w", err)
	}

	var last *history.Run
	if cfg.History.Enabled && dataset.Exists(cfg.History.Path) {
		ledger, err := history.Open(ctx, cfg.History.Path, logger.NewNop())
		if err != nil {
			return fmt.Errorf("failed to open history ledger: %w", err)
		}
		defer ledger.Close()
		if last, err = ledger.LastRun(ctx); err != nil {
			return fmt.Errorf("failed to read last run: %w", err)
		}
	}

	printStatus(cmd.OutOrStdout(), cfg, counts, last)
	return nil
}

func printStatus(w io.Writer, cfg *config.Config, c watchdog.Counts, last *history.Run) {
	avg := time.Duration(cfg.Watchdog.AvgSecondsPerRecord) * time.Second

	fmt.Fprintf(w, "\n=== Resolution Status ===\n")
	renderTable(w, []string{"VIEW", "FILE", "ROWS"}, [][]string{
		{"full", cfg.Files.Full, strconv.Itoa(c.Total)},
		{"success", cfg.Files.Success, strconv.Itoa(c.Succeeded)},
		{"failed", cfg.Files.Failed, strconv.Itoa(c.Failed)},
	}, nil)

	fmt.Fprintln(w)
	if !dataset.Exists(cfg.Files.Failed) {
		fmt.Fprintf(w, "No failure view yet; %d program(s) pending in %s\n", c.Failed, cfg.Files.Source)
	}
	fmt.Fprintf(w, "Remaining: %d | Success: %d/%d | ETA: %s\n",
		c.Failed, c.Succeeded, c.Total, watchdog.FormatETA(watchdog.ETA(c.Failed, avg)))

	if last == nil {
		return
	}
	fmt.Fprintf(w, "\nLast run:\n")
	finished := "-"
	if !last.FinishedAt.IsZero() {
		finished = last.FinishedAt.Local().Format(time.DateTime)
	}
	renderTable(w, []string{"RUN", "MODE", "STATUS", "RECORDS", "RESOLVED", "FAILED", "STARTED", "FINISHED"}, [][]string{{
		last.RunID,
		last.Mode,
		string(last.Status),
		strconv.Itoa(last.WorkSet),
		strconv.Itoa(last.Resolved),
		strconv.Itoa(last.Failed),
		last.StartedAt.Local().Format(time.DateTime),
		finished,
	}}, func(col int, cell string) string {
		if col == 2 {
			return statusColor(cell)
		}
		return cell
	})
}
