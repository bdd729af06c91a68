package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/Guizzs26/go-imei-sync/internal/models"
)

// DefaultExampleLimit bounds each example list when the caller passes a non-positive limit
const DefaultExampleLimit = 10

const dateLayout = "2006-01-02"

// BuildReport projects a sync outcome into a report. Counts always reflect the
// full categories; only the example lists are truncated to limit.
func BuildReport(out models.SyncOutcome, dupes []models.DuplicateEntry, limit int) models.Report {
	if limit <= 0 {
		limit = DefaultExampleLimit
	}

	generated := out.FinishedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	return models.Report{
		RunID:     out.RunID,
		Success:   out.Success,
		Cancelled: out.Cancelled,
		Total:     out.Total,
		Counts: models.ReportCounts{
			New:         len(out.Inserted),
			Updated:     len(out.Updated),
			Reactivated: countReactivated(out.Updated),
			Unchanged:   len(out.Unchanged),
			Deactivated: len(out.Deactivated),
			Duplicates:  len(dupes),
			Errors:      len(out.Errors),
		},
		New:         head(out.Inserted, limit),
		Updated:     head(out.Updated, limit),
		Unchanged:   head(out.Unchanged, limit),
		Deactivated: head(out.Deactivated, limit),
		Duplicates:  head(dupes, limit),
		Errors:      head(out.Errors, limit),
		Error:       out.Error,
		GeneratedAt: generated,
	}
}

// BuildClassificationReport projects a dry-run classification. Nothing was
// written, so the deactivated list stays empty and Success is true.
func BuildClassificationReport(c models.Classification, dupes []models.DuplicateEntry, limit int) models.Report {
	if limit <= 0 {
		limit = DefaultExampleLimit
	}

	return models.Report{
		Success: true,
		Total:   c.Total(),
		Counts: models.ReportCounts{
			New:         len(c.New),
			Updated:     len(c.Updated),
			Reactivated: countReactivated(c.Updated),
			Unchanged:   len(c.Unchanged),
			Duplicates:  len(dupes),
		},
		New:         head(c.New, limit),
		Updated:     head(c.Updated, limit),
		Unchanged:   head(c.Unchanged, limit),
		Duplicates:  head(dupes, limit),
		GeneratedAt: time.Now(),
	}
}

// RenderText renders a report as the plain-text body used in notifications,
// listing at most limit examples per category
func RenderText(r models.Report, limit int) string {
	if limit <= 0 {
		limit = DefaultExampleLimit
	}
	var b strings.Builder

	status := "SUCCESS"
	switch {
	case r.Cancelled:
		status = "CANCELLED"
	case !r.Success:
		status = "FAILED"
	case r.Counts.Errors > 0:
		status = "COMPLETED WITH ERRORS"
	}

	fmt.Fprintf(&b, "Reconciliation %s\n", status)
	if r.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", r.Source)
	}
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	}
	fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	if r.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", r.Error)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Total processed: %d\n", r.Total)
	fmt.Fprintf(&b, "  New:         %d\n", r.Counts.New)
	fmt.Fprintf(&b, "  Updated:     %d (reactivated: %d)\n", r.Counts.Updated, r.Counts.Reactivated)
	fmt.Fprintf(&b, "  Unchanged:   %d\n", r.Counts.Unchanged)
	fmt.Fprintf(&b, "  Deactivated: %d\n", r.Counts.Deactivated)
	fmt.Fprintf(&b, "  Duplicates:  %d\n", r.Counts.Duplicates)
	fmt.Fprintf(&b, "  Errors:      %d\n", r.Counts.Errors)

	section(&b, "New", r.Counts.New, head(r.New, limit), func(e models.ExtractedRecord) string {
		return fmt.Sprintf("%s  %s", e.Identifier, formatDate(e.Date))
	})
	section(&b, "Updated", r.Counts.Updated, head(r.Updated, limit), func(u models.UpdatedRecord) string {
		line := fmt.Sprintf("%s  %s -> %s", u.Identifier, formatDate(u.PreviousDate), formatDate(u.Date))
		if u.WasInactive {
			line += "  (reactivated)"
		}
		return line
	})
	section(&b, "Deactivated", r.Counts.Deactivated, head(r.Deactivated, limit), func(p models.PersistedRecord) string {
		return fmt.Sprintf("%s  %s", p.Identifier, formatDate(p.Date))
	})
	section(&b, "Duplicates", r.Counts.Duplicates, head(r.Duplicates, limit), func(d models.DuplicateEntry) string {
		return fmt.Sprintf("%s  %s", d.Identifier, d.Reason)
	})
	section(&b, "Errors", r.Counts.Errors, head(r.Errors, limit), func(e models.RowError) string {
		return fmt.Sprintf("%s  [%s] %s", e.Identifier, e.Op, e.Message)
	})

	return b.String()
}

func section[T any](b *strings.Builder, title string, count int, items []T, line func(T) string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s (showing %d of %d):\n", title, len(items), count)
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", line(it))
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

func countReactivated(updated []models.UpdatedRecord) int {
	n := 0
	for _, u := range updated {
		if u.WasInactive {
			n++
		}
	}
	return n
}

// head returns a copy of the first n items so reports never alias outcome slices
func head[T any](items []T, n int) []T {
	if len(items) < n {
		n = len(items)
	}
	out := make([]T, n)
	copy(out, items[:n])
	return out
}
