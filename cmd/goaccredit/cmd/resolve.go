package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/residency-data/goaccredit/internal/acgme"
	"github.com/residency-data/goaccredit/internal/batch"
	"github.com/residency-data/goaccredit/internal/browser"
	"github.com/residency-data/goaccredit/internal/config"
	"github.com/residency-data/goaccredit/internal/history"
	"github.com/residency-data/goaccredit/internal/lifecycle"
	"github.com/residency-data/goaccredit/internal/lock"
	"github.com/residency-data/goaccredit/internal/logger"
	"github.com/residency-data/goaccredit/internal/ocr"
	"github.com/residency-data/goaccredit/internal/ocr/tesseract"
)

var (
	resolveFailedOnly     bool
	resolveFailedRecord   string
	resolveForce          bool
	resolveProgressEvents bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve accreditation years for a batch of programs",
	Long: `Resolve looks up a batch of programs on the ACGME site and writes the
first academic year of accreditation back into the datasets.

Work set selection:
  - default: a few random programs whose year is still empty
  - --failed-only: every program in the failure view
  - --failed-record: the listed programs from the failure view

After the batch the full dataset is updated and the success and failure
views are regenerated from it. An interrupted batch writes nothing.

Example:
  goaccredit resolve --config goaccredit.yaml --failed-only`,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveFailedOnly, "failed-only", false,
		"Retry every program in the failure view")
	resolveCmd.Flags().StringVar(&resolveFailedRecord, "failed-record", "",
		"Comma-separated program ids to retry from the failure view (overrides --failed-only)")
	resolveCmd.Flags().BoolVar(&resolveForce, "force", false,
		"Force execution even if the run lock is held (use with caution)")
	resolveCmd.Flags().BoolVar(&resolveProgressEvents, "progress-events", false,
		"Write JSON progress events to stdout and logs to stderr")

	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if resolveProgressEvents && (cfg.Logging.Output == "" || cfg.Logging.Output == "stdout") {
		cfg.Logging.Output = "stderr"
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	sel := batch.NewSelection(resolveFailedOnly, resolveFailedRecord)
	log.Infow("Starting resolution",
		"mode", sel.Mode.String(),
		"config", GetConfigFile(),
		"debug", cfg.Run.Debug,
		"exit_on_errors", cfg.Run.ExitOnErrors,
	)

	ctx, stop := lifecycle.SetupSignalHandlerWithCallback(context.Background(), func(sig os.Signal) {
		log.Warnw("Received shutdown signal - stopping after the current record", "signal", sig.String())
	})
	defer stop()

	runLock := lock.NewRunLock(cfg.Batch.LockDir, cfg.Files.Full)
	if err := runLock.Acquire(ctx, resolveForce); err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return fmt.Errorf("another run is working on %s (use --force to override): %w", cfg.Files.Full, err)
		}
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	defer func() {
		if err := runLock.Release(); err != nil {
			log.Warnw("Failed to release run lock", "path", runLock.Path(), "error", err)
		}
	}()
	if resolveForce {
		log.Warnw("Run lock taken with --force", "lock", runLock.Name())
	}

	orch, err := batch.New(batch.OptionsFromConfig(cfg), newRecordResolver(cfg, log), sessionOpener(cfg, log), log)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	if cfg.History.Enabled {
		ledger, err := history.Open(ctx, cfg.History.Path, log)
		if err != nil {
			log.Warnw("Run history unavailable, continuing without it", "path", cfg.History.Path, "error", err)
		} else {
			defer ledger.Close()
			orch.WithLedger(ledger)
		}
	}

	out := cmd.OutOrStdout()
	if resolveProgressEvents {
		orch.WithReporter(batch.NewJSONReporter(out))
		out = cmd.ErrOrStderr()
	}

	result, err := orch.Run(ctx, sel)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Warn("Resolution cancelled by user - datasets left untouched")
			return nil
		case errors.Is(err, batch.ErrFailedViewMissing):
			return fmt.Errorf("cannot retry records: %w (run without --failed-record first)", err)
		case errors.Is(err, batch.ErrRecordFailed) && result != nil:
			printResolveResult(out, result)
			return fmt.Errorf("stopped at first unresolved record: %w", err)
		}
		return fmt.Errorf("resolution run failed: %w", err)
	}

	printResolveResult(out, result)
	return nil
}

func newRecordResolver(cfg *config.Config, log *logger.Logger) *acgme.RecordResolver {
	artifacts := acgme.Artifacts{Dir: cfg.Browser.ArtifactDir}
	table := acgme.NewTableReader(cfg.Resolver.TableTimeout(), artifacts, log)
	recoverer := ocr.NewRecoverer(tesseract.New(), log)
	nav := acgme.NewNavigationResolver(acgme.SettingsFromConfig(cfg), table, recoverer, artifacts, log)
	return acgme.NewRecordResolver(nav, cfg.Resolver.MaxRetries, cfg.Resolver.RetryDelay(), log)
}

func sessionOpener(cfg *config.Config, log *logger.Logger) batch.SessionOpener {
	return func(ctx context.Context) (acgme.Page, io.Closer, error) {
		session, err := browser.Open(ctx, browser.OptionsFromConfig(cfg.Browser), log)
		if err != nil {
			return nil, nil, err
		}
		return session.Page(), session, nil
	}
}

func printResolveResult(w io.Writer, r *batch.Result) {
	fmt.Fprintf(w, "\n=== Resolution Complete ===\n")
	fmt.Fprintf(w, "Run:        %s\n", r.RunID)
	fmt.Fprintf(w, "Mode:       %s\n", r.Mode)
	fmt.Fprintf(w, "Work set:   %d\n", r.WorkSet)
	if r.WorkSet == 0 {
		fmt.Fprintf(w, "Nothing to resolve.\n")
		return
	}
	fmt.Fprintf(w, "Processed:  %d\n", r.Processed)
	fmt.Fprintf(w, "Resolved:   %d\n", r.Resolved)
	fmt.Fprintf(w, "No record:  %d\n", r.NoRecord)
	fmt.Fprintf(w, "Failed:     %d\n", r.Failed)
	if r.Written {
		fmt.Fprintf(w, "Updated:    %d row(s)\n", r.Updated)
		fmt.Fprintf(w, "Views:      %d total, %d success, %d failed\n",
			r.Views.Total, r.Views.Success, r.Views.Failed)
	}
	fmt.Fprintf(w, "Duration:   %s\n", r.Duration.Round(time.Second))
}
