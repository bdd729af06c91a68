package reconcile

import (
	"time"

	"github.com/Guizzs26/go-imei-sync/internal/dates"
	"github.com/Guizzs26/go-imei-sync/internal/models"
)

// DateChanged compares two optional dates at calendar day granularity.
// A null on exactly one side counts as a change; two nulls do not.
func DateChanged(extracted, persisted *time.Time) bool {
	if extracted == nil || persisted == nil {
		return (extracted == nil) != (persisted == nil)
	}
	return !dates.SameDay(*extracted, *persisted)
}

// Decide applies the update rule to one identifier already present in the store
func Decide(r models.ExtractedRecord, cur models.CurrentState) (models.UpdatedRecord, bool) {
	if !DateChanged(r.Date, cur.Date) && cur.Active {
		return models.UpdatedRecord{}, false
	}
	return models.UpdatedRecord{
		Identifier:   r.Identifier,
		Date:         r.Date,
		PreviousDate: cur.Date,
		WasInactive:  !cur.Active,
	}, true
}

// Classify partitions a deduplicated batch against the current store state.
// Every identifier of batch lands in exactly one of the three sets.
func Classify(batch []models.ExtractedRecord, current map[string]models.CurrentState) models.Classification {
	var c models.Classification
	for _, r := range batch {
		cur, exists := current[r.Identifier]
		if !exists {
			c.New = append(c.New, r)
			continue
		}
		if u, changed := Decide(r, cur); changed {
			c.Updated = append(c.Updated, u)
		} else {
			c.Unchanged = append(c.Unchanged, r)
		}
	}
	return c
}
