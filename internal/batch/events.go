package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// EventType names a progress event.
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventRecordResolved EventType = "record_resolved"
	EventRunFinished    EventType = "run_finished"
)

// Event is a structured progress report from a batch run.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Time      time.Time `json:"time"`
	Mode      string    `json:"mode,omitempty"`
	WorkSet   int       `json:"work_set,omitempty"`
	ProgramID string    `json:"program_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Year      string    `json:"year,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	Processed int       `json:"processed"`
	Resolved  int       `json:"resolved"`
	Failed    int       `json:"failed"`
	// Remaining is the size of the failure view after the run.
	Remaining int    `json:"remaining,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Reporter receives progress events.
type Reporter interface {
	Report(Event)
}

type nopReporter struct{}

func (nopReporter) Report(Event) {}

// JSONReporter writes one JSON object per line.
type JSONReporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONReporter creates a reporter writing to w.
func NewJSONReporter(w io.Writer) *JSONReporter {
	return &JSONReporter{enc: json.NewEncoder(w)}
}

// Report implements Reporter. Write errors are dropped; progress is advisory.
func (r *JSONReporter) Report(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(ev)
}

// DecodeEvent parses one JSON line written by JSONReporter.
func DecodeEvent(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, fmt.Errorf("decode progress event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("decode progress event: missing type")
	}
	return ev, nil
}
