package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/residency-data/goaccredit/internal/dataset"
	"github.com/residency-data/goaccredit/internal/history"
	"github.com/residency-data/goaccredit/internal/logger"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show run history and recent failures",
	Long: `History summarizes the run ledger: number of runs, outcome counts per
status and the most recent records that could not be resolved.

Example:
  goaccredit history --config goaccredit.yaml --limit 50`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20,
		"Number of recent failures to show")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		cmd.Println("Run history is disabled (history.enabled: false)")
		return nil
	}
	if !dataset.Exists(cfg.History.Path) {
		cmd.Printf("No run history in %s yet\n", cfg.History.Path)
		return nil
	}

	ctx := context.Background()
	ledger, err := history.Open(ctx, cfg.History.Path, logger.NewNop())
	if err != nil {
		return fmt.Errorf("failed to open history ledger: %w", err)
	}
	defer ledger.Close()

	stats, err := ledger.GetStats(ctx)
	if err != nil {
		return err
	}
	failures, err := ledger.RecentFailures(ctx, historyLimit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Ledger: %s\n", cfg.History.Path)
	fmt.Fprintf(w, "Runs:   %d\n\n", stats.Runs)

	statuses := make([]string, 0, len(stats.ByStatus))
	for s := range stats.ByStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, []string{s, strconv.Itoa(stats.ByStatus[s])})
	}
	renderTable(w, []string{"STATUS", "RECORDS"}, rows, func(col int, cell string) string {
		if col == 0 {
			return statusColor(cell)
		}
		return cell
	})

	if len(failures) == 0 {
		fmt.Fprintf(w, "\nNo failures recorded\n")
		return nil
	}

	fmt.Fprintf(w, "\nRecent failures:\n")
	rows = rows[:0]
	for _, e := range failures {
		rows = append(rows, []string{
			e.ProgramID,
			strconv.Itoa(e.Attempts),
			truncate(e.Reason, 60),
			e.CreatedAt.Local().Format(time.DateTime),
		})
	}
	renderTable(w, []string{"PROGRAM", "ATTEMPTS", "REASON", "AT"}, rows, nil)
	return nil
}
