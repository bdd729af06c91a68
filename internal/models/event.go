package models

import "time"

// Level mirrors the severities the operator log distinguishes
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelSuccess Level = "SUCCESS"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// ProgressEvent is emitted on the caller's progress channel while a run advances
type ProgressEvent struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Level   Level  `json:"level"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
}

// Fraction returns Done/Total clamped to [0,1]
func (e ProgressEvent) Fraction() float64 {
	if e.Total <= 0 {
		return 0
	}
	f := float64(e.Done) / float64(e.Total)
	if f > 1 {
		return 1
	}
	return f
}

// Report is the read-only projection of one reconciliation, ready for rendering
type Report struct {
	RunID       string            `json:"run_id"`
	Source      string            `json:"source,omitempty"`
	Success     bool              `json:"success"`
	Cancelled   bool              `json:"cancelled"`
	Total       int               `json:"total"`
	Counts      ReportCounts      `json:"counts"`
	New         []ExtractedRecord `json:"new"`
	Updated     []UpdatedRecord   `json:"updated"`
	Unchanged   []ExtractedRecord `json:"unchanged"`
	Deactivated []PersistedRecord `json:"deactivated"`
	Duplicates  []DuplicateEntry  `json:"duplicates"`
	Errors      []RowError        `json:"errors"`
	Error       string            `json:"error,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// ReportCounts holds the full category sizes; the example lists may be truncated
type ReportCounts struct {
	New         int `json:"new"`
	Updated     int `json:"updated"`
	Reactivated int `json:"reactivated"`
	Unchanged   int `json:"unchanged"`
	Deactivated int `json:"deactivated"`
	Duplicates  int `json:"duplicates"`
	Errors      int `json:"errors"`
}

// FileReport is the outcome of processing a single workbook
type FileReport struct {
	File   string            `json:"file"`
	Failed bool              `json:"failed"`
	Error  string            `json:"error,omitempty"`
	Report *Report           `json:"report,omitempty"`
	Forms  *FormUploadResult `json:"forms,omitempty"`
}

// BatchResult aggregates a multi-file run
type BatchResult struct {
	RunID   string       `json:"run_id"`
	Success bool         `json:"success"`
	Files   []FileReport `json:"files"`
	Summary string       `json:"summary"`
}

// Processed counts files that did not fail
func (b BatchResult) Processed() int {
	n := 0
	for _, f := range b.Files {
		if !f.Failed {
			n++
		}
	}
	return n
}

// RunEvent is published to the broker when a profile or manual run finishes
type RunEvent struct {
	EventID    string      `json:"event_id"`
	RunID      string      `json:"run_id"`
	Profile    string      `json:"profile"`
	Recipients []string    `json:"recipients"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
	Attachment string      `json:"attachment,omitempty"`
	Result     BatchResult `json:"result"`
	Timestamp  time.Time   `json:"timestamp"`
}
