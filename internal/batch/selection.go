package batch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/residency-data/goaccredit/internal/dataset"
)

// ErrFailedViewMissing is returned when specific failed records are requested
// but no failure view exists yet.
var ErrFailedViewMissing = errors.New("failure view does not exist")

// ErrNoDataset is returned when neither the full dataset nor the source CSV exists.
var ErrNoDataset = errors.New("no dataset found")

// Mode selects how the work set is built.
type Mode int

const (
	// ModeSample picks a few random unresolved records.
	ModeSample Mode = iota
	// ModeFailedOnly takes every record in the failure view.
	ModeFailedOnly
	// ModeFailedRecords takes the named records from the failure view.
	ModeFailedRecords
)

func (m Mode) String() string {
	switch m {
	case ModeFailedOnly:
		return "failed-only"
	case ModeFailedRecords:
		return "failed-records"
	default:
		return "sample"
	}
}

// Selection is the work set request of one run.
type Selection struct {
	Mode Mode
	IDs  []string // for ModeFailedRecords
}

// NewSelection builds a Selection from the resolve flags. Explicit record ids
// win over failedOnly.
func NewSelection(failedOnly bool, failedRecords string) Selection {
	if ids := ParseIDs(failedRecords); len(ids) > 0 {
		return Selection{Mode: ModeFailedRecords, IDs: ids}
	}
	if failedOnly {
		return Selection{Mode: ModeFailedOnly}
	}
	return Selection{Mode: ModeSample}
}

// ParseIDs splits a comma-separated id list, dropping blanks.
func ParseIDs(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if id := dataset.NormalizeID(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// WorkSet is the ordered set of records processed by one run.
type WorkSet struct {
	Mode  Mode
	Table *dataset.Table
}

// Len returns the number of records.
func (w *WorkSet) Len() int {
	if w == nil || w.Table == nil {
		return 0
	}
	return w.Table.Len()
}

// Select computes the work set. It only reads files; no browser is involved.
func (o *Orchestrator) Select(sel Selection) (*WorkSet, error) {
	schema := o.opts.Schema
	files := o.opts.Files

	switch sel.Mode {
	case ModeFailedRecords:
		if !dataset.Exists(files.Failed) {
			return nil, fmt.Errorf("%w: %s", ErrFailedViewMissing, files.Failed)
		}
		failed, err := schema.Load(files.Failed)
		if err != nil {
			return nil, fmt.Errorf("failed to load failure view: %w", err)
		}
		picked := failed.Select(schema.IDColumn, sel.IDs)
		if missing := missingIDs(sel.IDs, picked.IDs(schema.IDColumn)); len(missing) > 0 {
			o.log.Warnw("Requested records are not in the failure view", "ids", missing)
		}
		return &WorkSet{Mode: ModeFailedRecords, Table: picked}, nil

	case ModeFailedOnly:
		if !dataset.Exists(files.Failed) {
			o.log.Warnw("Failure view not found, falling back to a random sample", "path", files.Failed)
			return o.sample()
		}
		failed, err := schema.Load(files.Failed)
		if err != nil {
			return nil, fmt.Errorf("failed to load failure view: %w", err)
		}
		return &WorkSet{Mode: ModeFailedOnly, Table: failed}, nil

	default:
		return o.sample()
	}
}

func (o *Orchestrator) sample() (*WorkSet, error) {
	base, path, err := o.loadBase()
	if err != nil {
		return nil, err
	}
	pending := o.opts.Schema.Pending(base)
	o.log.Debugw("Sampling unresolved records", "path", path, "pending", pending.Len(), "sample_size", o.opts.SampleSize)
	return &WorkSet{Mode: ModeSample, Table: pending.Sample(o.rng, o.opts.SampleSize)}, nil
}

// loadBase reads the full dataset, or the source CSV before the first run.
func (o *Orchestrator) loadBase() (*dataset.Table, string, error) {
	files := o.opts.Files
	for _, path := range []string{files.Full, files.Source} {
		if path == "" || !dataset.Exists(path) {
			continue
		}
		t, err := o.opts.Schema.Load(path)
		if err != nil {
			return nil, path, fmt.Errorf("failed to load dataset: %w", err)
		}
		return t, path, nil
	}
	return nil, "", fmt.Errorf("%w: neither %s nor %s exists", ErrNoDataset, files.Full, files.Source)
}

func missingIDs(want, got []string) []string {
	have := make(map[string]struct{}, len(got))
	for _, id := range got {
		have[id] = struct{}{}
	}
	var missing []string
	for _, id := range want {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
