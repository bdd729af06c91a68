// Package excel reads partner workbooks and writes reconciliation reports
package excel

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Guizzs26/go-imei-sync/internal/dates"
	"github.com/Guizzs26/go-imei-sync/internal/models"
)

// ExtractionError aborts the processing of one workbook only
type ExtractionError struct {
	File   string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", filepath.Base(e.File), e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", filepath.Base(e.File), e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsExtractionError reports whether err aborted a single workbook
func IsExtractionError(err error) bool {
	var e *ExtractionError
	return errors.As(err, &e)
}

// ExtractOptions selects where identifiers and dates live in the workbook.
// Columns are given either as header text ("IMEI") or as letters ("G"); a
// name that matches a first-row header is always read as a header.
type ExtractOptions struct {
	IdentifierColumn string
	DateColumn       string
	Sheet            string // empty means the active sheet
	SkipHeader       bool
	Location         *time.Location
}

// DefaultExtractOptions matches the partner report layout
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{IdentifierColumn: "G", DateColumn: "H", SkipHeader: true}
}

// Extract reads every (identifier, date) pair of one sheet. Rows where both
// cells are empty are skipped; blank identifiers are kept for the duplicate
// resolver to drop.
func Extract(path string, opts ExtractOptions) (models.Extraction, error) {
	res := models.Extraction{File: path}

	f, sheet, err := open(path, opts.Sheet)
	if err != nil {
		return res, err
	}
	defer f.Close()
	res.Sheet = sheet

	rows, err := f.Rows(sheet)
	if err != nil {
		return res, &ExtractionError{File: path, Reason: "cannot read sheet " + sheet, Err: err}
	}
	defer rows.Close()

	var (
		idCol, dateCol int
		resolved       bool
		rowNum         int
	)

	for rows.Next() {
		rowNum++
		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return res, &ExtractionError{File: path, Reason: fmt.Sprintf("cannot read row %d", rowNum), Err: err}
		}

		if !resolved {
			var idHeader, dateHeader bool
			if idCol, idHeader, err = resolveColumn(cells, opts.IdentifierColumn); err != nil {
				return res, &ExtractionError{File: path, Reason: err.Error()}
			}
			if dateCol, dateHeader, err = resolveColumn(cells, opts.DateColumn); err != nil {
				return res, &ExtractionError{File: path, Reason: err.Error()}
			}
			resolved = true
			// A name matched in the first row makes that row a header
			if idHeader || dateHeader || opts.SkipHeader {
				continue
			}
		}
		rawID := cell(cells, idCol)
		rawDate := cell(cells, dateCol)
		if rawID == "" && rawDate == "" {
			continue
		}
		res.TotalRows++

		rec := models.ExtractedRecord{Identifier: identifierText(rawID), Row: rowNum}
		if t, ok := parseCellDate(rawDate, opts.Location); ok {
			rec.Date = &t
		}
		res.Rows = append(res.Rows, rec)
	}
	if err := rows.Error(); err != nil {
		return res, &ExtractionError{File: path, Reason: "cannot iterate rows", Err: err}
	}
	if !resolved {
		return res, &ExtractionError{File: path, Reason: "sheet is empty"}
	}

	slog.Info("Workbook extracted", "file", filepath.Base(path), "sheet", sheet, "rows", res.TotalRows)
	return res, nil
}

func open(path, sheet string) (*excelize.File, string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, "", &ExtractionError{File: path, Reason: "file not found", Err: err}
	}
	if strings.EqualFold(filepath.Ext(path), ".xls") {
		return nil, "", &ExtractionError{File: path, Reason: "legacy .xls workbooks are not supported, save as .xlsx"}
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, "", &ExtractionError{File: path, Reason: "unreadable workbook", Err: err}
	}

	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
		if sheet == "" {
			sheet = f.GetSheetName(0)
		}
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		f.Close()
		return nil, "", &ExtractionError{File: path, Reason: fmt.Sprintf("sheet %q not found", sheet)}
	}
	return f, sheet, nil
}

// resolveColumn finds name in the first row. Header text wins; a name that
// matches no header is taken as a column letter. header reports which one hit.
func resolveColumn(first []string, name string) (col int, header bool, err error) {
	if idx := headerIndex(first, name); idx > 0 {
		return idx, true, nil
	}
	if isColumnLetter(name) {
		if col, err = excelize.ColumnNameToNumber(strings.ToUpper(strings.TrimSpace(name))); err == nil {
			return col, false, nil
		}
	}
	return 0, false, fmt.Errorf("column %q not found", name)
}

// isColumnLetter treats up to three ASCII letters as a column reference
func isColumnLetter(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// headerIndex returns the 1-based column whose header matches name, 0 when absent
func headerIndex(cells []string, name string) int {
	want := foldHeader(name)
	for i, c := range cells {
		if foldHeader(c) == want {
			return i + 1
		}
	}
	return 0
}

func cell(cells []string, col int) string {
	if col <= 0 || col > len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[col-1])
}

// identifierText renders numeric cells without exponent or trailing ".0".
// Plain digit strings are returned as is to keep leading zeros.
func identifierText(raw string) string {
	if !strings.ContainsAny(raw, ".eE") {
		return raw
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseCellDate(raw string, loc *time.Location) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return dates.Parse(v, loc)
	}
	return dates.Parse(raw, loc)
}
