package reconcile

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/go-imei-sync/internal/models"
)

func TestDateChanged(t *testing.T) {
	morning := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2025, 1, 10, 22, 30, 0, 0, time.UTC)
	next := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)

	// TIMESTAMP columns drop the zone: a Costa Rica evening comes back as the
	// same wall clock tagged UTC
	cr := time.FixedZone("CST", -6*3600)
	localEvening := time.Date(2025, 1, 10, 22, 30, 0, 0, cr)

	tests := []struct {
		name string
		a, b *time.Time
		want bool
	}{
		{"both nil", nil, nil, false},
		{"extracted nil", nil, &morning, true},
		{"persisted nil", &morning, nil, true},
		{"same day different time", &morning, &evening, false},
		{"different day", &evening, &next, true},
		{"same wall clock date across zones", &localEvening, &evening, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateChanged(tt.a, tt.b))
		})
	}
}

func TestClassify(t *testing.T) {
	d10, d11 := day(2025, 1, 10), day(2025, 1, 11)

	batch := []models.ExtractedRecord{
		rec("new", d10),
		rec("same", d10),
		rec("moved", d11),
		rec("inactive", d10),
		rec("lost-date", nil),
	}
	current := map[string]models.CurrentState{
		"same":      {Date: d10, Active: true},
		"moved":     {Date: d10, Active: true},
		"inactive":  {Date: d10, Active: false},
		"lost-date": {Date: d10, Active: true},
		"not-in":    {Date: d10, Active: true},
	}

	c := Classify(batch, current)

	require.Len(t, c.New, 1)
	assert.Equal(t, "new", c.New[0].Identifier)

	require.Len(t, c.Unchanged, 1)
	assert.Equal(t, "same", c.Unchanged[0].Identifier)

	require.Len(t, c.Updated, 3)
	byID := map[string]models.UpdatedRecord{}
	for _, u := range c.Updated {
		byID[u.Identifier] = u
	}
	assert.Equal(t, d10, byID["moved"].PreviousDate)
	assert.Equal(t, d11, byID["moved"].Date)
	assert.False(t, byID["moved"].WasInactive)
	assert.True(t, byID["inactive"].WasInactive)
	assert.Nil(t, byID["lost-date"].Date)

	assert.Equal(t, len(batch), c.Total())
}

func TestClassify_Completeness(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	randomDate := func() *time.Time {
		if rng.Intn(4) == 0 {
			return nil
		}
		d := base.AddDate(0, 0, rng.Intn(3)).Add(time.Duration(rng.Intn(20)) * time.Hour)
		return &d
	}

	for iter := 0; iter < 200; iter++ {
		var batch []models.ExtractedRecord
		current := map[string]models.CurrentState{}
		for i := 0; i < 30; i++ {
			id := fmt.Sprintf("ID%02d", rng.Intn(40))
			if rng.Intn(2) == 0 {
				current[id] = models.CurrentState{Date: randomDate(), Active: rng.Intn(3) > 0}
			}
			batch = append(batch, rec(id, randomDate()))
		}
		batch, _ = Dedupe(batch)

		c := Classify(batch, current)

		seen := map[string]int{}
		for _, r := range c.New {
			seen[r.Identifier]++
			_, exists := current[r.Identifier]
			assert.False(t, exists)
		}
		for _, u := range c.Updated {
			seen[u.Identifier]++
		}
		for _, r := range c.Unchanged {
			seen[r.Identifier]++
		}

		require.Len(t, seen, len(batch))
		for _, r := range batch {
			require.Equal(t, 1, seen[r.Identifier], "identifier %s", r.Identifier)
		}
	}
}
