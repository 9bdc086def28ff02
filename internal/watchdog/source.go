package watchdog

import (
	"context"
	"fmt"

	"github.com/residency-data/goaccredit/internal/dataset"
)

// CSVProgressSource reads progress from the persisted views.
type CSVProgressSource struct {
	Failed  string
	Success string
	Full    string
	// Pending is counted as the failure count until the first run has written
	// the failure view.
	Pending string
}

// Counts implements ProgressSource.
func (s CSVProgressSource) Counts(ctx context.Context) (Counts, error) {
	if err := ctx.Err(); err != nil {
		return Counts{}, err
	}

	failedPath := s.Failed
	if !dataset.Exists(failedPath) && s.Pending != "" {
		failedPath = s.Pending
	}

	var c Counts
	var err error
	if c.Failed, err = dataset.CountRows(failedPath); err != nil {
		return Counts{}, fmt.Errorf("count failed records: %w", err)
	}
	if c.Succeeded, err = dataset.CountRows(s.Success); err != nil {
		return Counts{}, fmt.Errorf("count resolved records: %w", err)
	}
	if s.Full != "" {
		if c.Total, err = dataset.CountRows(s.Full); err != nil {
			return Counts{}, fmt.Errorf("count all records: %w", err)
		}
	}
	return c, nil
}
