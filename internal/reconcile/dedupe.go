// Package reconcile holds the pure parts of a reconciliation run: duplicate
// resolution, change classification and report projection. Nothing here
// touches the store.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/Guizzs26/go-imei-sync/internal/models"
)

// Dedupe collapses rows to one entry per identifier, keeping the first
// occurrence in input order. Blank identifiers are dropped without being
// reported. Every later occurrence yields a DuplicateEntry.
func Dedupe(rows []models.ExtractedRecord) ([]models.ExtractedRecord, []models.DuplicateEntry) {
	seen := make(map[string]int, len(rows))
	clean := make([]models.ExtractedRecord, 0, len(rows))
	var dupes []models.DuplicateEntry

	for _, r := range rows {
		id := strings.TrimSpace(r.Identifier)
		if id == "" {
			continue
		}

		seen[id]++
		if n := seen[id]; n > 1 {
			dupes = append(dupes, models.DuplicateEntry{
				Identifier: id,
				Date:       r.Date,
				Occurrence: n,
				Reason:     fmt.Sprintf("Duplicate found (occurrence #%d)", n),
			})
			continue
		}

		r.Identifier = id
		clean = append(clean, r)
	}

	return clean, dupes
}
