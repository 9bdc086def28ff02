// Package dataset holds the CSV-backed program tables and the success/failure
// views derived from them.
package dataset

import (
	"math/rand"
	"slices"

	"github.com/elliotchance/orderedmap/v2"
)

// Row is one CSV record. Column order follows insertion order.
type Row struct {
	fields *orderedmap.OrderedMap[string, string]
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{fields: orderedmap.NewOrderedMap[string, string]()}
}

// RowOf builds a row from parallel header and value slices. Missing values are
// stored as empty strings; extra values are dropped.
func RowOf(header, values []string) *Row {
	r := NewRow()
	for i, col := range header {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		r.fields.Set(col, v)
	}
	return r
}

// Get returns the value of col, or "" when the column is absent.
func (r *Row) Get(col string) string {
	v, _ := r.fields.Get(col)
	return v
}

// Set assigns col.
func (r *Row) Set(col, value string) {
	r.fields.Set(col, value)
}

// Has reports whether the row carries col.
func (r *Row) Has(col string) bool {
	_, ok := r.fields.Get(col)
	return ok
}

// Delete removes col from the row.
func (r *Row) Delete(col string) {
	r.fields.Delete(col)
}

// Clone returns a deep copy.
func (r *Row) Clone() *Row {
	out := NewRow()
	for el := r.fields.Front(); el != nil; el = el.Next() {
		out.fields.Set(el.Key, el.Value)
	}
	return out
}

// Values projects the row onto header.
func (r *Row) Values(header []string) []string {
	out := make([]string, len(header))
	for i, col := range header {
		out[i] = r.Get(col)
	}
	return out
}

// Table is an in-memory CSV file: a header and its rows.
type Table struct {
	Header []string
	Rows   []*Row
}

// New creates an empty table with the given header.
func New(header []string) *Table {
	return &Table{Header: slices.Clone(header)}
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Append adds a row built from raw CSV values.
func (t *Table) Append(values []string) *Row {
	r := RowOf(t.Header, values)
	t.Rows = append(t.Rows, r)
	return r
}

// AddRow appends an existing row. Columns unknown to the header are added to it.
func (t *Table) AddRow(r *Row) {
	for _, col := range r.fields.Keys() {
		if !t.HasColumn(col) {
			t.Header = append(t.Header, col)
		}
	}
	t.Rows = append(t.Rows, r)
}

// HasColumn reports whether col is part of the header.
func (t *Table) HasColumn(col string) bool {
	return slices.Contains(t.Header, col)
}

// EnsureLeadingColumn makes col the first header column, inserting it with
// empty values when absent.
func (t *Table) EnsureLeadingColumn(col string) {
	if idx := slices.Index(t.Header, col); idx >= 0 {
		t.Header = slices.Delete(t.Header, idx, idx+1)
	}
	t.Header = slices.Insert(t.Header, 0, col)

	for _, r := range t.Rows {
		if !r.Has(col) {
			r.Set(col, "")
		}
	}
}

// RenameColumn renames from to to in the header and every row. It returns
// false when from is absent or to already exists.
func (t *Table) RenameColumn(from, to string) bool {
	idx := slices.Index(t.Header, from)
	if idx < 0 || t.HasColumn(to) {
		return false
	}
	t.Header[idx] = to
	for _, r := range t.Rows {
		v := r.Get(from)
		r.Delete(from)
		r.Set(to, v)
	}
	return true
}

// Filter returns a table with the same header and the rows matching keep.
// Rows are shared, not copied.
func (t *Table) Filter(keep func(*Row) bool) *Table {
	out := New(t.Header)
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Index maps each id found in idCol to the positions of its rows, in file order.
func (t *Table) Index(idCol string) *orderedmap.OrderedMap[string, []int] {
	idx := orderedmap.NewOrderedMap[string, []int]()
	for i, r := range t.Rows {
		id := NormalizeID(r.Get(idCol))
		pos, _ := idx.Get(id)
		idx.Set(id, append(pos, i))
	}
	return idx
}

// Select returns the rows whose id is in ids, in table order.
func (t *Table) Select(idCol string, ids []string) *Table {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[NormalizeID(id)] = struct{}{}
	}
	return t.Filter(func(r *Row) bool {
		_, ok := want[NormalizeID(r.Get(idCol))]
		return ok
	})
}

// Sample draws up to n rows without replacement, in draw order.
func (t *Table) Sample(rng *rand.Rand, n int) *Table {
	out := New(t.Header)
	if n <= 0 || len(t.Rows) == 0 {
		return out
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	for _, i := range rng.Perm(len(t.Rows))[:n] {
		out.Rows = append(out.Rows, t.Rows[i])
	}
	return out
}

// IDs lists the ids of every row in order.
func (t *Table) IDs(idCol string) []string {
	ids := make([]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		ids = append(ids, NormalizeID(r.Get(idCol)))
	}
	return ids
}
