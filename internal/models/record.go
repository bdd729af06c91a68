package models

import "time"

// ExtractedRecord is one (identifier, date) pair read from a spreadsheet row
type ExtractedRecord struct {
	Identifier string     `json:"identifier"`
	Date       *time.Time `json:"date,omitempty"`
	Row        int        `json:"row,omitempty"` // 1-based worksheet row, 0 when unknown
}

// PersistedRecord mirrors one row of the reconciliation table
type PersistedRecord struct {
	Identifier string     `db:"identifier" json:"identifier"`
	Date       *time.Time `db:"associated_date" json:"date,omitempty"`
	Active     bool       `db:"active" json:"active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	Detail     string     `db:"detail" json:"detail"`
}

// CurrentState is the slice of a persisted row the reconciliation needs
type CurrentState struct {
	Date   *time.Time
	Active bool
}

// Extraction is the result of reading one workbook
type Extraction struct {
	File      string
	Sheet     string
	Rows      []ExtractedRecord
	TotalRows int // data rows visited, including blank identifiers
}

// FormRecord is one structured form row keyed by destination column
type FormRecord map[string]any
