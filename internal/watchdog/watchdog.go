// Package watchdog watches batch progress, detects stalled runs and restarts
// them after a cooldown.
package watchdog

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/residency-data/goaccredit/internal/config"
	"github.com/residency-data/goaccredit/internal/logger"
)

// Counts is one progress observation.
type Counts struct {
	Failed    int
	Succeeded int
	// Processed counts records reported by the supervised run; zero in attach mode.
	Processed int
	// Total is informational and not used for stall detection.
	Total     int
}

func (c Counts) same(o Counts) bool {
	return c.Failed == o.Failed && c.Succeeded == o.Succeeded && c.Processed == o.Processed
}

// ProgressSource reports current progress.
type ProgressSource interface {
	Counts(ctx context.Context) (Counts, error)
}

// ProcessController terminates and launches batch runs.
type ProcessController interface {
	// Terminate stops the running batch process(es) and reports whether any was found.
	Terminate(ctx context.Context) (bool, error)
	// Spawn launches a fresh batch run.
	Spawn(ctx context.Context) error
}

// Idler is implemented by controllers that own the batch process and can
// tell when no run is active.
type Idler interface {
	Idle() bool
}

// State is the watchdog's position in its poll cycle.
type State int

const (
	StatePolling State = iota
	StateStalled
	StateRestarting
)

func (s State) String() string {
	switch s {
	case StateStalled:
		return "stalled"
	case StateRestarting:
		return "restarting"
	default:
		return "polling"
	}
}

// Options configure a Watchdog.
type Options struct {
	PollInterval time.Duration
	AvgPerRecord time.Duration
	StallLimit   int
	CooldownMin  time.Duration
	CooldownMax  time.Duration
}

// OptionsFromConfig maps the watchdog config section.
func OptionsFromConfig(cfg config.WatchdogConfig) Options {
	return Options{
		PollInterval: cfg.PollInterval(),
		AvgPerRecord: time.Duration(cfg.AvgSecondsPerRecord) * time.Second,
		StallLimit:   cfg.StallLimit,
		CooldownMin:  time.Duration(cfg.CooldownMinMinutes) * time.Minute,
		CooldownMax:  time.Duration(cfg.CooldownMaxMinutes) * time.Minute,
	}
}

// PollResult describes one poll.
type PollResult struct {
	Counts     Counts
	ETA        time.Duration
	Stalls     int
	Done       bool
	Stalled    bool
	Terminated bool
	Restarted  bool
	Cooldown   time.Duration
}

// Watchdog polls a ProgressSource and restarts stalled runs through a
// ProcessController.
type Watchdog struct {
	opts   Options
	source ProgressSource
	ctrl   ProcessController
	log    *logger.Logger
	rng    *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error

	last   *Counts
	stalls int
	state  State
}

// New creates a Watchdog.
func New(opts Options, source ProgressSource, ctrl ProcessController, log *logger.Logger) *Watchdog {
	if log == nil {
		log = logger.NewDefault()
	}
	if opts.StallLimit <= 0 {
		opts.StallLimit = 20
	}
	return &Watchdog{
		opts:   opts,
		source: source,
		ctrl:   ctrl,
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}
}

// Stalls returns the current consecutive no-change count.
func (w *Watchdog) Stalls() int { return w.stalls }

// State returns the current state.
func (w *Watchdog) State() State { return w.state }

// Poll takes one observation and acts on it. The first observation only sets
// the baseline. A stall terminates the run, and only when something was
// terminated does it wait out the cooldown and spawn a new run.
func (w *Watchdog) Poll(ctx context.Context) (PollResult, error) {
	w.state = StatePolling

	counts, err := w.source.Counts(ctx)
	if err != nil {
		return PollResult{}, fmt.Errorf("failed to read progress: %w", err)
	}
	res := PollResult{Counts: counts}

	if counts.Failed <= 0 {
		res.Done = true
		return res, nil
	}

	res.ETA = ETA(counts.Failed, w.opts.AvgPerRecord)
	w.log.Infow("Progress",
		"remaining", counts.Failed,
		"success", counts.Succeeded,
		"total", counts.Total,
		"processed", counts.Processed,
		"eta", FormatETA(res.ETA),
	)

	if w.last != nil && counts.same(*w.last) {
		w.stalls++
	} else {
		w.stalls = 0
	}
	w.last = &counts
	res.Stalls = w.stalls

	if w.stalls < w.opts.StallLimit {
		return res, nil
	}

	w.state = StateStalled
	res.Stalled = true
	w.log.Warnw("No progress detected, possible block or stall",
		"polls", w.stalls,
		"window", time.Duration(w.stalls)*w.opts.PollInterval,
	)

	terminated, err := w.ctrl.Terminate(ctx)
	w.stalls = 0
	res.Stalls = 0
	if err != nil {
		w.log.Warnw("Failed to terminate batch run", "error", err)
	}
	if !terminated {
		w.log.Info("No running batch process found to terminate")
		w.state = StatePolling
		return res, nil
	}
	res.Terminated = true

	w.state = StateRestarting
	res.Cooldown = w.cooldown()
	w.log.Infow("Waiting before restarting batch run", "cooldown", res.Cooldown)
	if err := w.sleep(ctx, res.Cooldown); err != nil {
		return res, err
	}

	w.log.Info("Restarting batch run")
	if err := w.ctrl.Spawn(ctx); err != nil {
		w.state = StatePolling
		return res, fmt.Errorf("failed to restart batch run: %w", err)
	}
	res.Restarted = true
	w.state = StatePolling
	return res, nil
}

// Run polls until every record is resolved or ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	w.log.Infow("Monitoring progress",
		"interval", w.opts.PollInterval,
		"stall_limit", w.opts.StallLimit,
	)

	for {
		res, err := w.Poll(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			w.log.Warnw("Poll failed", "error", err)
		case res.Done:
			w.log.Infow("All records processed", "success", res.Counts.Succeeded, "total", res.Counts.Total)
			return nil
		}

		if idler, ok := w.ctrl.(Idler); ok && idler.Idle() {
			w.log.Info("No batch run active, launching one")
			if err := w.ctrl.Spawn(ctx); err != nil {
				w.log.Warnw("Failed to launch batch run", "error", err)
			}
		}

		if err := w.sleep(ctx, w.opts.PollInterval); err != nil {
			return err
		}
	}
}

func (w *Watchdog) cooldown() time.Duration {
	lo, hi := w.opts.CooldownMin, w.opts.CooldownMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(w.rng.Int63n(int64(hi-lo)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
