package models

import "time"

// DuplicateEntry reports a non-first occurrence of an identifier in one batch
type DuplicateEntry struct {
	Identifier string     `json:"identifier"`
	Date       *time.Time `json:"date,omitempty"`
	Occurrence int        `json:"occurrence"`
	Reason     string     `json:"reason"`
}

// UpdatedRecord is an existing identifier whose date changed or that was inactive
type UpdatedRecord struct {
	Identifier   string     `json:"identifier"`
	Date         *time.Time `json:"date,omitempty"`
	PreviousDate *time.Time `json:"previous_date,omitempty"`
	WasInactive  bool       `json:"was_inactive"`
}

// Classification partitions one extraction batch by identifier
type Classification struct {
	New       []ExtractedRecord
	Updated   []UpdatedRecord
	Unchanged []ExtractedRecord
}

// Total is the number of classified identifiers
func (c Classification) Total() int {
	return len(c.New) + len(c.Updated) + len(c.Unchanged)
}

// WriteOp names the store operation a row error belongs to
type WriteOp string

const (
	OpInsert     WriteOp = "insert"
	OpUpdate     WriteOp = "update"
	OpDeactivate WriteOp = "deactivate"
)

// RowError is a single failed write. It never aborts the batch
type RowError struct {
	Identifier string  `json:"identifier"`
	Op         WriteOp `json:"op"`
	Message    string  `json:"message"`
}

// SyncOutcome is what one synchronization run did to the store
type SyncOutcome struct {
	RunID       string            `json:"run_id"`
	Success     bool              `json:"success"`
	Cancelled   bool              `json:"cancelled"`
	Total       int               `json:"total"`
	Inserted    []ExtractedRecord `json:"inserted"`
	Updated     []UpdatedRecord   `json:"updated"`
	Unchanged   []ExtractedRecord `json:"unchanged"`
	Deactivated []PersistedRecord `json:"deactivated"`
	Errors      []RowError        `json:"errors"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// FormUploadResult summarises a structured form upload
type FormUploadResult struct {
	Success  bool     `json:"success"`
	Total    int      `json:"total"`
	Inserted int      `json:"inserted"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors"`
}
