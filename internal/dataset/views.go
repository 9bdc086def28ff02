package dataset

import (
	"fmt"
	"strings"

	"github.com/elliotchance/orderedmap/v2"
)

// Schema names the key columns of a program table.
type Schema struct {
	IDColumn          string
	YearColumn        string
	LegacyYearColumns []string
}

// Normalize brings a freshly read table to the schema: legacy year columns
// are renamed and the year column is made the leading column.
func (s Schema) Normalize(t *Table) {
	if !t.HasColumn(s.YearColumn) {
		for _, legacy := range s.LegacyYearColumns {
			if t.RenameColumn(legacy, s.YearColumn) {
				break
			}
		}
	}
	t.EnsureLeadingColumn(s.YearColumn)
}

// Load reads path and normalizes it to the schema.
func (s Schema) Load(path string) (*Table, error) {
	t, err := Read(path)
	if err != nil {
		return nil, err
	}
	if len(t.Header) > 0 && !t.HasColumn(s.IDColumn) {
		return nil, fmt.Errorf("%s: missing id column %q", path, s.IDColumn)
	}
	s.Normalize(t)
	return t, nil
}

// Resolved reports whether the row carries a year.
func (s Schema) Resolved(r *Row) bool {
	return IsYear(r.Get(s.YearColumn))
}

// Pending returns the rows without a year.
func (s Schema) Pending(t *Table) *Table {
	return t.Filter(func(r *Row) bool { return !s.Resolved(r) })
}

// Split partitions t into the success view (year present) and the failure
// view (year missing). Every row lands in exactly one view.
func (s Schema) Split(t *Table) (success, failed *Table) {
	success = New(t.Header)
	failed = New(t.Header)
	for _, r := range t.Rows {
		if s.Resolved(r) {
			success.Rows = append(success.Rows, r)
		} else {
			failed.Rows = append(failed.Rows, r)
		}
	}
	return success, failed
}

// Merge copies non-empty years from results into every row of full with a
// matching id. Empty results never overwrite an existing value. It returns
// the number of rows changed.
func (s Schema) Merge(full *Table, results *orderedmap.OrderedMap[string, string]) int {
	if !full.HasColumn(s.YearColumn) {
		full.EnsureLeadingColumn(s.YearColumn)
	}
	index := full.Index(s.IDColumn)

	changed := 0
	for el := results.Front(); el != nil; el = el.Next() {
		year := strings.TrimSpace(el.Value)
		if !IsYear(year) {
			continue
		}
		positions, ok := index.Get(NormalizeID(el.Key))
		if !ok {
			continue
		}
		for _, i := range positions {
			row := full.Rows[i]
			if row.Get(s.YearColumn) != year {
				row.Set(s.YearColumn, year)
				changed++
			}
		}
	}
	return changed
}

// Paths locates the three persisted views.
type Paths struct {
	Full    string
	Success string
	Failed  string
}

// Counts summarizes a views write.
type Counts struct {
	Total   int
	Success int
	Failed  int
}

// WriteViews rewrites the full dataset, then regenerates both views from it.
func (s Schema) WriteViews(p Paths, full *Table) (Counts, error) {
	success, failed := s.Split(full)

	if err := Write(p.Full, full); err != nil {
		return Counts{}, fmt.Errorf("write full dataset: %w", err)
	}
	if err := Write(p.Success, success); err != nil {
		return Counts{}, fmt.Errorf("write success view: %w", err)
	}
	if err := Write(p.Failed, failed); err != nil {
		return Counts{}, fmt.Errorf("write failure view: %w", err)
	}

	return Counts{Total: full.Len(), Success: success.Len(), Failed: failed.Len()}, nil
}

// IsYear reports whether v holds a usable year value. Pandas writes missing
// values as empty cells or "nan"; a lone dash is a placeholder.
func IsYear(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || v == "-" {
		return false
	}
	return !strings.EqualFold(v, "nan")
}

// NormalizeID trims whitespace and a trailing ".0" left by float-typed exports.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	return strings.TrimSuffix(id, ".0")
}
