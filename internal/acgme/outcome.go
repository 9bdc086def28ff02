// Package acgme resolves the first accreditation academic year of a program
// from the ACGME public lookup site.
package acgme

// Status classifies a resolution outcome.
type Status int

const (
	// StatusFailed is a transient failure; the record may be retried.
	StatusFailed Status = iota
	// StatusResolved carries a year.
	StatusResolved
	// StatusNoRecord means the site has no program with this id.
	StatusNoRecord
)

func (s Status) String() string {
	switch s {
	case StatusResolved:
		return "resolved"
	case StatusNoRecord:
		return "no_record"
	default:
		return "failed"
	}
}

// Where a resolved year was read from.
const (
	SourceTable = "table"
	SourceOCR   = "ocr"
)

// Outcome is the result of resolving one record.
type Outcome struct {
	Status   Status
	Year     string
	Source   string // SourceTable or SourceOCR when resolved
	Reason   string // why the attempt failed
	Attempts int
}

// Resolved reports whether the outcome carries a year.
func (o Outcome) Resolved() bool {
	return o.Status == StatusResolved && o.Year != ""
}

func resolved(year, source string) Outcome {
	return Outcome{Status: StatusResolved, Year: year, Source: source}
}

func noRecord() Outcome {
	return Outcome{Status: StatusNoRecord, Reason: "no program found"}
}

func failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}
