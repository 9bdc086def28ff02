// Package batch drives record resolution over a work set and keeps the
// persisted CSV views in sync.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/google/uuid"

	"github.com/residency-data/goaccredit/internal/acgme"
	"github.com/residency-data/goaccredit/internal/config"
	"github.com/residency-data/goaccredit/internal/dataset"
	"github.com/residency-data/goaccredit/internal/history"
	"github.com/residency-data/goaccredit/internal/logger"
)

// ErrRecordFailed is returned in strict mode when a record could not be resolved.
var ErrRecordFailed = errors.New("record could not be resolved")

// Resolver resolves one record on an open page.
type Resolver interface {
	Resolve(ctx context.Context, page acgme.Page, programID string) acgme.Outcome
}

// SessionOpener starts the browser session shared by a whole run.
type SessionOpener func(ctx context.Context) (acgme.Page, io.Closer, error)

// Ledger records run history. *history.Ledger implements it.
type Ledger interface {
	StartRun(ctx context.Context, runID, mode string, workSet int) error
	RecordOutcome(ctx context.Context, e history.Entry) error
	FinishRun(ctx context.Context, runID string, status history.RunStatus, resolved, failed int) error
}

// Files locates the source CSV and the three persisted views.
type Files struct {
	Source  string
	Full    string
	Success string
	Failed  string
}

// Paths returns the persisted views.
func (f Files) Paths() dataset.Paths {
	return dataset.Paths{Full: f.Full, Success: f.Success, Failed: f.Failed}
}

// Options configure an Orchestrator.
type Options struct {
	Schema       dataset.Schema
	Files        Files
	SampleSize   int
	RecordDelay  time.Duration
	ExitOnErrors bool
}

// OptionsFromConfig maps the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Schema: dataset.Schema{
			IDColumn:          cfg.Files.IDColumn,
			YearColumn:        cfg.Files.YearColumn,
			LegacyYearColumns: cfg.Files.LegacyYearColumns,
		},
		Files: Files{
			Source:  cfg.Files.Source,
			Full:    cfg.Files.Full,
			Success: cfg.Files.Success,
			Failed:  cfg.Files.Failed,
		},
		SampleSize:   cfg.Batch.SampleSize,
		RecordDelay:  cfg.Batch.RecordDelay(),
		ExitOnErrors: cfg.Run.ExitOnErrors,
	}
}

// Result summarizes a run.
type Result struct {
	RunID     string
	Mode      Mode
	WorkSet   int
	Processed int
	Resolved  int
	NoRecord  int
	Failed    int
	Updated   int // rows of the full dataset that changed
	Views     dataset.Counts
	Written   bool
	StartedAt time.Time
	Duration  time.Duration
}

// Orchestrator runs one batch: select, resolve, merge, persist.
type Orchestrator struct {
	opts     Options
	resolver Resolver
	open     SessionOpener
	ledger   Ledger
	reporter Reporter
	log      *logger.Logger
	rng      *rand.Rand
	newRunID func() string
}

// New creates an Orchestrator.
func New(opts Options, resolver Resolver, open SessionOpener, log *logger.Logger) (*Orchestrator, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is nil")
	}
	if open == nil {
		return nil, fmt.Errorf("session opener is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Orchestrator{
		opts:     opts,
		resolver: resolver,
		open:     open,
		reporter: nopReporter{},
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		newRunID: uuid.NewString,
	}, nil
}

// WithLedger enables run history recording.
func (o *Orchestrator) WithLedger(l Ledger) *Orchestrator {
	o.ledger = l
	return o
}

// WithReporter sets the progress event sink.
func (o *Orchestrator) WithReporter(r Reporter) *Orchestrator {
	if r == nil {
		r = nopReporter{}
	}
	o.reporter = r
	return o
}

// Run executes one batch. Per-record failures never abort the run unless
// ExitOnErrors is set. The views are written once, after the work set is done.
func (o *Orchestrator) Run(ctx context.Context, sel Selection) (*Result, error) {
	result := &Result{
		RunID:     o.newRunID(),
		Mode:      sel.Mode,
		StartedAt: time.Now(),
	}
	log := o.log.WithRun(result.RunID)

	ws, err := o.Select(sel)
	if err != nil {
		return nil, err
	}
	result.Mode = ws.Mode
	result.WorkSet = ws.Len()

	if ws.Len() == 0 {
		log.Infow("Nothing to resolve", "mode", ws.Mode.String())
		return result, nil
	}

	log.Infow("Starting batch run",
		"mode", ws.Mode.String(),
		"records", ws.Len(),
		"record_delay", o.opts.RecordDelay,
		"exit_on_errors", o.opts.ExitOnErrors,
	)
	o.reporter.Report(Event{
		Type:    EventRunStarted,
		RunID:   result.RunID,
		Time:    time.Now(),
		Mode:    ws.Mode.String(),
		WorkSet: ws.Len(),
	})
	o.ledgerCall(log, "start run", func() error {
		return o.ledger.StartRun(ctx, result.RunID, ws.Mode.String(), ws.Len())
	})

	results, runErr := o.resolveAll(ctx, log, ws, result)

	if ctx.Err() != nil {
		log.Warnw("Run interrupted, datasets left untouched", "processed", result.Processed)
		o.finish(log, result, history.RunStatusAborted, 0, ctx.Err())
		return result, ctx.Err()
	}
	if runErr != nil && !errors.Is(runErr, ErrRecordFailed) {
		o.finish(log, result, history.RunStatusAborted, 0, runErr)
		return result, runErr
	}

	if err := o.persist(log, results, ws, result); err != nil {
		o.finish(log, result, history.RunStatusAborted, 0, err)
		return result, err
	}

	status := history.RunStatusFinished
	if runErr != nil {
		status = history.RunStatusAborted
	}
	o.finish(log, result, status, result.Views.Failed, runErr)

	log.Infow("Batch run completed",
		"duration", result.Duration,
		"resolved", result.Resolved,
		"no_record", result.NoRecord,
		"failed", result.Failed,
		"success_view", result.Views.Success,
		"failure_view", result.Views.Failed,
	)
	return result, runErr
}

// resolveAll walks the work set on a single browser session.
func (o *Orchestrator) resolveAll(ctx context.Context, log *logger.Logger, ws *WorkSet, result *Result) (*orderedmap.OrderedMap[string, string], error) {
	results := orderedmap.NewOrderedMap[string, string]()

	page, closer, err := o.open(ctx)
	if err != nil {
		return results, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.Warnw("Failed to close browser session", "error", err)
		}
	}()

	idCol := o.opts.Schema.IDColumn
	for i, row := range ws.Table.Rows {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		id := dataset.NormalizeID(row.Get(idCol))
		rlog := log.WithRecord(id)
		rlog.Infow("Resolving record", "index", i+1, "of", ws.Len())

		out := o.resolver.Resolve(ctx, page, id)
		result.Processed++

		switch {
		case out.Resolved():
			result.Resolved++
			results.Set(id, out.Year)
		case out.Status == acgme.StatusNoRecord:
			result.NoRecord++
			results.Set(id, "")
		default:
			result.Failed++
			results.Set(id, "")
		}

		o.ledgerCall(rlog, "record outcome", func() error {
			return o.ledger.RecordOutcome(ctx, history.Entry{
				RunID:     result.RunID,
				ProgramID: id,
				Status:    out.Status.String(),
				Year:      out.Year,
				Source:    out.Source,
				Attempts:  out.Attempts,
				Reason:    out.Reason,
			})
		})
		o.reporter.Report(Event{
			Type:      EventRecordResolved,
			RunID:     result.RunID,
			Time:      time.Now(),
			ProgramID: id,
			Status:    out.Status.String(),
			Year:      out.Year,
			Attempts:  out.Attempts,
			Processed: result.Processed,
			Resolved:  result.Resolved,
			Failed:    result.Failed,
		})

		if o.opts.ExitOnErrors && out.Status == acgme.StatusFailed {
			rlog.Errorw("Stopping batch on failed record", "reason", out.Reason)
			return results, fmt.Errorf("%w: %s: %s", ErrRecordFailed, id, out.Reason)
		}

		if err := wait(ctx, o.opts.RecordDelay); err != nil {
			return results, err
		}
	}
	return results, nil
}

// persist merges the run's results into the full dataset and regenerates the views.
func (o *Orchestrator) persist(log *logger.Logger, results *orderedmap.OrderedMap[string, string], ws *WorkSet, result *Result) error {
	base, path, err := o.loadBase()
	switch {
	case errors.Is(err, ErrNoDataset):
		log.Warnw("No dataset on disk, writing work set only", "error", err)
		base = dataset.New(ws.Table.Header)
		for _, r := range ws.Table.Rows {
			base.AddRow(r.Clone())
		}
	case err != nil:
		// Existing files stay as they are.
		return fmt.Errorf("failed to persist views: %w", err)
	default:
		log.Debugw("Merging into dataset", "path", path)
	}

	result.Updated = o.opts.Schema.Merge(base, results)

	counts, err := o.opts.Schema.WriteViews(o.opts.Files.Paths(), base)
	if err != nil {
		return fmt.Errorf("failed to persist views: %w", err)
	}
	result.Views = counts
	result.Written = true

	log.Infow("Datasets written",
		"full", o.opts.Files.Full,
		"rows", counts.Total,
		"updated", result.Updated,
		"success", counts.Success,
		"failed", counts.Failed,
	)
	return nil
}

func (o *Orchestrator) finish(log *logger.Logger, result *Result, status history.RunStatus, remaining int, runErr error) {
	result.Duration = time.Since(result.StartedAt)

	ev := Event{
		Type:      EventRunFinished,
		RunID:     result.RunID,
		Time:      time.Now(),
		Mode:      result.Mode.String(),
		WorkSet:   result.WorkSet,
		Processed: result.Processed,
		Resolved:  result.Resolved,
		Failed:    result.Failed,
		Remaining: remaining,
	}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	o.reporter.Report(ev)

	o.ledgerCall(log, "finish run", func() error {
		// The run context may already be cancelled; the ledger write still matters.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return o.ledger.FinishRun(ctx, result.RunID, status, result.Resolved, result.Failed)
	})
}

// ledgerCall runs fn when a ledger is configured. Ledger errors are logged only.
func (o *Orchestrator) ledgerCall(log *logger.Logger, what string, fn func() error) {
	if o.ledger == nil {
		return
	}
	if err := fn(); err != nil {
		log.Warnw("History ledger write failed", "op", what, "error", err)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
