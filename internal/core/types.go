package core

import "time"

// FieldType represents the data type of a record column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldDate
	FieldNumeric // currency amount stored as Cents
	FieldBool
	FieldInteger
)

// String returns a human-readable name for a field type.
func (ft FieldType) String() string {
	switch ft {
	case FieldText:
		return "text"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	case FieldBool:
		return "bool"
	case FieldInteger:
		return "integer"
	default:
		return "value"
	}
}

// ImportPhase indicates the current stage of an import run.
type ImportPhase string

const (
	PhaseQueuing    ImportPhase = "queuing"
	PhaseProcessing ImportPhase = "processing"
	PhaseComplete   ImportPhase = "complete"
	PhaseFailed     ImportPhase = "failed"
)

// FailedRow contains information about a CSV row that was skipped.
type FailedRow struct {
	FileName   string `json:"fileName,omitempty"`
	LineNumber int    `json:"lineNumber"`
	Reason     string `json:"reason"`
}

// QueueReport summarizes one QueueCSV call.
type QueueReport struct {
	FileName   string      `json:"fileName,omitempty"`
	Rows       int         `json:"rows"`       // data rows read
	Queued     int         `json:"queued"`     // rows added to the accumulator
	Duplicates int         `json:"duplicates"` // rows collapsed into an already queued row
	FailedRows []FailedRow `json:"failedRows,omitempty"`
}

// ImportResult contains the final result of a Process run.
type ImportResult struct {
	RunID      string        `json:"runId"`
	TableKey   string        `json:"tableKey"`
	Phase      ImportPhase   `json:"phase"`
	Queued     int           `json:"queued"`     // accumulator size when processing began
	Existing   int           `json:"existing"`   // queued rows already in the store
	Inserted   int           `json:"inserted"`   // parent rows inserted
	Dependents int           `json:"dependents"` // dependent rows inserted
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`

	Files []QueueReport    `json:"files,omitempty"` // per-source queue reports, for Import
	Rows  []map[string]any `json:"rows,omitempty"`  // inserted rows in default order
}
