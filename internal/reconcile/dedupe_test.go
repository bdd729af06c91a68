package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/go-imei-sync/internal/models"
)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func rec(id string, d *time.Time) models.ExtractedRecord {
	return models.ExtractedRecord{Identifier: id, Date: d}
}

func TestDedupe_FirstOccurrenceWins(t *testing.T) {
	d1, d2, d3 := day(2025, 1, 1), day(2025, 1, 2), day(2025, 1, 3)

	clean, dupes := Dedupe([]models.ExtractedRecord{rec("A", d1), rec("A", d2), rec("B", d3)})

	require.Len(t, clean, 2)
	assert.Equal(t, "A", clean[0].Identifier)
	assert.Equal(t, d1, clean[0].Date)
	assert.Equal(t, "B", clean[1].Identifier)
	assert.Equal(t, d3, clean[1].Date)

	require.Len(t, dupes, 1)
	assert.Equal(t, "A", dupes[0].Identifier)
	assert.Equal(t, d2, dupes[0].Date)
	assert.Equal(t, 2, dupes[0].Occurrence)
	assert.Equal(t, "Duplicate found (occurrence #2)", dupes[0].Reason)
}

func TestDedupe_TrimsAndDropsBlanks(t *testing.T) {
	clean, dupes := Dedupe([]models.ExtractedRecord{
		rec("  123  ", nil),
		rec("", nil),
		rec("   ", nil),
		rec("123", nil),
		rec("123\t", nil),
	})

	require.Len(t, clean, 1)
	assert.Equal(t, "123", clean[0].Identifier)

	require.Len(t, dupes, 2)
	assert.Equal(t, 2, dupes[0].Occurrence)
	assert.Equal(t, 3, dupes[1].Occurrence)
}

func TestDedupe_EmptyInput(t *testing.T) {
	clean, dupes := Dedupe(nil)
	assert.Empty(t, clean)
	assert.Empty(t, dupes)
}

func TestDedupe_DoesNotMutateInput(t *testing.T) {
	in := []models.ExtractedRecord{rec(" X ", nil)}
	_, _ = Dedupe(in)
	assert.Equal(t, " X ", in[0].Identifier)
}
