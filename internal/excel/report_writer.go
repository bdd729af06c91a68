package excel

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Guizzs26/go-imei-sync/internal/models"
)

const (
	summarySheet   = "Summary"
	reportDateTime = "2006-01-02 15:04:05"
	reportDate     = "2006-01-02"
)

// WriteReport saves a batch result as a workbook: one summary sheet plus one
// sheet per category listing every example the reports carry
func WriteReport(path string, batch models.BatchResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to rename summary sheet: %w", err)
	}

	w := &sheetWriter{f: f}
	w.header, _ = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"305496"}},
	})

	w.table(summarySheet, []string{"File", "Status", "Total", "New", "Updated", "Reactivated", "Unchanged", "Deactivated", "Duplicates", "Errors", "Message"})
	for _, fr := range batch.Files {
		row := []any{fr.File, fileStatus(fr)}
		switch {
		case fr.Report != nil:
			c := fr.Report.Counts
			row = append(row, fr.Report.Total, c.New, c.Updated, c.Reactivated, c.Unchanged, c.Deactivated, c.Duplicates, c.Errors, fr.Report.Error)
		case fr.Forms != nil:
			row = append(row, fr.Forms.Total, fr.Forms.Inserted, 0, 0, 0, 0, 0, fr.Forms.Failed, fr.Error)
		default:
			row = append(row, 0, 0, 0, 0, 0, 0, 0, 0, fr.Error)
		}
		w.append(summarySheet, row)
	}

	w.table("New", []string{"File", "Identifier", "Date", "Row"})
	w.table("Updated", []string{"File", "Identifier", "Previous date", "New date", "Reactivated"})
	w.table("Deactivated", []string{"File", "Identifier", "Date", "Deactivated at"})
	w.table("Duplicates", []string{"File", "Identifier", "Date", "Occurrence", "Reason"})
	w.table("Errors", []string{"File", "Identifier", "Operation", "Message"})

	for _, fr := range batch.Files {
		r := fr.Report
		if r == nil {
			continue
		}
		for _, e := range r.New {
			w.append("New", []any{fr.File, e.Identifier, day(e.Date), e.Row})
		}
		for _, u := range r.Updated {
			w.append("Updated", []any{fr.File, u.Identifier, day(u.PreviousDate), day(u.Date), yesNo(u.WasInactive)})
		}
		for _, p := range r.Deactivated {
			w.append("Deactivated", []any{fr.File, p.Identifier, day(p.Date), p.UpdatedAt.Format(reportDateTime)})
		}
		for _, d := range r.Duplicates {
			w.append("Duplicates", []any{fr.File, d.Identifier, day(d.Date), d.Occurrence, d.Reason})
		}
		for _, e := range r.Errors {
			w.append("Errors", []any{fr.File, e.Identifier, string(e.Op), e.Message})
		}
	}

	if w.err != nil {
		return fmt.Errorf("failed to fill report workbook: %w", w.err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report %s: %w", path, err)
	}
	return nil
}

// sheetWriter keeps the next free row per sheet and the first error seen
type sheetWriter struct {
	f      *excelize.File
	header int
	next   map[string]int
	err    error
}

func (w *sheetWriter) table(sheet string, headings []string) {
	if w.next == nil {
		w.next = make(map[string]int)
	}
	if sheet != summarySheet {
		if _, err := w.f.NewSheet(sheet); err != nil && w.err == nil {
			w.err = err
		}
	}
	row := make([]any, len(headings))
	for i, h := range headings {
		row[i] = h
	}
	w.next[sheet] = 1
	w.append(sheet, row)

	last, _ := excelize.CoordinatesToCellName(len(headings), 1)
	if err := w.f.SetCellStyle(sheet, "A1", last, w.header); err != nil && w.err == nil {
		w.err = err
	}
	if err := w.f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil && w.err == nil {
		w.err = err
	}
	_ = w.f.SetColWidth(sheet, "A", "B", 24)
}

func (w *sheetWriter) append(sheet string, values []any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, w.next[sheet])
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		w.err = err
		return
	}
	w.next[sheet]++
}

func fileStatus(fr models.FileReport) string {
	switch {
	case fr.Failed:
		return "FAILED"
	case fr.Report != nil && fr.Report.Cancelled:
		return "CANCELLED"
	case fr.Report != nil && fr.Report.Counts.Errors > 0:
		return "WITH ERRORS"
	case fr.Forms != nil && fr.Forms.Failed > 0:
		return "WITH ERRORS"
	default:
		return "OK"
	}
}

func day(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(reportDate)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
