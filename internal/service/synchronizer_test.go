package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/go-imei-sync/internal/db"
	"github.com/Guizzs26/go-imei-sync/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func batchOf(pairs ...any) []models.ExtractedRecord {
	var out []models.ExtractedRecord
	for i := 0; i < len(pairs); i += 2 {
		d, _ := pairs[i+1].(*time.Time)
		out = append(out, models.ExtractedRecord{Identifier: pairs[i].(string), Date: d})
	}
	return out
}

func newTestSync(store Store) *Synchronizer {
	s := NewSynchronizer(store, "unit_test", discardLogger())
	clock := time.Date(2025, 6, 17, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestSync_EndToEndScenario(t *testing.T) {
	store := db.NewMemoryStore()
	s := newTestSync(store)
	ctx := context.Background()

	out, err := s.Sync(ctx, batchOf(
		"111111111111111", date(2025, 1, 10),
		"222222222222222", date(2025, 1, 11),
	), nil)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Len(t, out.Inserted, 2)
	assert.Empty(t, out.Updated)
	assert.Empty(t, out.Deactivated)

	for _, r := range store.Rows() {
		assert.True(t, r.Active, r.Identifier)
		assert.Equal(t, "unit_test", r.Detail)
		assert.Equal(t, r.CreatedAt, r.UpdatedAt)
	}

	out, err = s.Sync(ctx, batchOf("111111111111111", date(2025, 1, 10)), nil)
	require.NoError(t, err)
	assert.Empty(t, out.Inserted)
	assert.Empty(t, out.Updated)
	require.Len(t, out.Deactivated, 1)
	assert.Equal(t, "222222222222222", out.Deactivated[0].Identifier)
	require.Len(t, out.Unchanged, 1)
	assert.Equal(t, "111111111111111", out.Unchanged[0].Identifier)

	gone, ok := store.Get("222222222222222")
	require.True(t, ok, "deactivated rows must stay in the table")
	assert.False(t, gone.Active)
	assert.Equal(t, date(2025, 1, 11), gone.Date)
}

func TestSync_Idempotent(t *testing.T) {
	store := db.NewMemoryStore()
	store.Seed(
		models.PersistedRecord{Identifier: "OLD", Date: date(2024, 12, 1), Active: true},
		models.PersistedRecord{Identifier: "B", Date: date(2025, 1, 1), Active: false},
	)
	s := newTestSync(store)
	batch := batchOf("A", date(2025, 1, 1), "B", date(2025, 1, 1), "C", nil)

	_, err := s.Sync(context.Background(), batch, nil)
	require.NoError(t, err)
	first := store.Writes()
	require.Equal(t, 4, first) // A, C inserted; B reactivated; OLD deactivated

	out, err := s.Sync(context.Background(), batch, nil)
	require.NoError(t, err)
	assert.Equal(t, first, store.Writes(), "second run must not write")
	assert.Empty(t, out.Inserted)
	assert.Empty(t, out.Updated)
	assert.Empty(t, out.Deactivated)
	assert.Len(t, out.Unchanged, 3)
}

func TestSync_DeactivationCorrectness(t *testing.T) {
	store := db.NewMemoryStore()
	for _, id := range []string{"A", "B", "C"} {
		store.Seed(models.PersistedRecord{Identifier: id, Active: true})
	}

	_, err := newTestSync(store).Sync(context.Background(), batchOf("A", nil, "B", nil), nil)
	require.NoError(t, err)

	for id, want := range map[string]bool{"A": true, "B": true, "C": false} {
		r, ok := store.Get(id)
		require.True(t, ok)
		assert.Equal(t, want, r.Active, id)
	}
}

func TestSync_NeverDeletes(t *testing.T) {
	store := db.NewMemoryStore()
	s := newTestSync(store)
	ctx := context.Background()

	batches := [][]models.ExtractedRecord{
		batchOf("A", nil, "B", nil, "C", nil),
		batchOf("D", nil),
		nil,
		batchOf("B", date(2025, 3, 3)),
		batchOf("E", nil, "A", nil),
	}

	inserted := map[string]bool{}
	for _, b := range batches {
		out, err := s.Sync(ctx, b, nil)
		require.NoError(t, err)
		for _, r := range out.Inserted {
			inserted[r.Identifier] = true
		}
		for id := range inserted {
			_, ok := store.Get(id)
			require.True(t, ok, "row %s disappeared", id)
		}
	}

	assert.Len(t, store.Rows(), 5)
	b, _ := store.Get("B")
	assert.False(t, b.Active)
	assert.Equal(t, date(2025, 3, 3), b.Date)
}

func TestSync_UpdateAndReactivate(t *testing.T) {
	store := db.NewMemoryStore()
	store.Seed(
		models.PersistedRecord{Identifier: "MOVED", Date: date(2025, 1, 1), Active: true, Detail: "legacy"},
		models.PersistedRecord{Identifier: "BACK", Date: date(2025, 1, 1), Active: false},
		models.PersistedRecord{Identifier: "SAMEDAY", Date: date(2025, 1, 1), Active: true},
	)
	later := time.Date(2025, 1, 1, 18, 45, 0, 0, time.UTC)

	out, err := newTestSync(store).Sync(context.Background(), batchOf(
		"MOVED", date(2025, 2, 1),
		"BACK", date(2025, 1, 1),
		"SAMEDAY", &later,
	), nil)
	require.NoError(t, err)

	require.Len(t, out.Updated, 2)
	byID := map[string]models.UpdatedRecord{}
	for _, u := range out.Updated {
		byID[u.Identifier] = u
	}
	assert.Equal(t, date(2025, 1, 1), byID["MOVED"].PreviousDate)
	assert.False(t, byID["MOVED"].WasInactive)
	assert.True(t, byID["BACK"].WasInactive)

	moved, _ := store.Get("MOVED")
	assert.Equal(t, "unit_test", moved.Detail)
	back, _ := store.Get("BACK")
	assert.True(t, back.Active)

	require.Len(t, out.Unchanged, 1)
	assert.Equal(t, "SAMEDAY", out.Unchanged[0].Identifier)
}

func TestSync_RowErrorsDoNotAbort(t *testing.T) {
	store := db.NewMemoryStore()
	store.Seed(models.PersistedRecord{Identifier: "STALE", Active: true})
	store.FailOn["BAD"] = errors.New("value too long for type character varying(64)")
	store.FailOn["STALE"] = errors.New("deadlock detected")

	out, err := newTestSync(store).Sync(context.Background(), batchOf("OK1", nil, "BAD", nil, "OK2", nil), nil)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Len(t, out.Inserted, 2)
	require.Len(t, out.Errors, 2)
	assert.Equal(t, models.RowError{Identifier: "BAD", Op: models.OpInsert, Message: "value too long for type character varying(64)"}, out.Errors[0])
	assert.Equal(t, models.OpDeactivate, out.Errors[1].Op)
}

func TestSync_StoreFailuresAbort(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*db.MemoryStore)
		want  error
	}{
		{"ping", func(m *db.MemoryStore) { m.PingErr = errors.New("dial tcp: connection refused") }, ErrConnection},
		{"ensure", func(m *db.MemoryStore) { m.EnsureErr = errors.New("permission denied for schema") }, ErrSchema},
		{"list", func(m *db.MemoryStore) { m.ListErr = errors.New("conn closed") }, ErrConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := db.NewMemoryStore()
			tt.setup(store)

			out, err := newTestSync(store).Sync(context.Background(), batchOf("A", nil), nil)
			require.ErrorIs(t, err, tt.want)
			assert.False(t, out.Success)
			assert.NotEmpty(t, out.Error)
			assert.Zero(t, store.Writes())
		})
	}
}

func TestSync_LockedTable(t *testing.T) {
	store := db.NewMemoryStore()
	release, ok, err := store.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	out, err := newTestSync(store).Sync(context.Background(), batchOf("A", nil), nil)
	require.ErrorIs(t, err, ErrLocked)
	assert.False(t, out.Success)
	assert.Zero(t, store.Writes())

	release()
	_, err = newTestSync(store).Sync(context.Background(), batchOf("A", nil), nil)
	require.NoError(t, err)
}

func TestSync_CancellationKeepsPartialWrites(t *testing.T) {
	store := db.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store.OnWrite = func(id string) {
		if id == "B" {
			cancel()
		}
	}

	out, err := newTestSync(store).Sync(ctx, batchOf("A", nil, "B", nil, "C", nil, "D", nil), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, out.Cancelled)
	assert.False(t, out.Success)
	assert.Len(t, out.Inserted, 2)
	assert.Len(t, store.Rows(), 2)
}

func TestSync_ProgressEvents(t *testing.T) {
	store := db.NewMemoryStore()
	progress := make(chan models.ProgressEvent, 64)

	_, err := newTestSync(store).Sync(context.Background(), batchOf("A", nil, "B", nil), progress)
	require.NoError(t, err)
	close(progress)

	var events []models.ProgressEvent
	for ev := range progress {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "done", last.Stage)
	assert.Equal(t, models.LevelSuccess, last.Level)
	assert.Equal(t, 1.0, last.Fraction())
}

func TestSync_DuplicatesInBatchIgnored(t *testing.T) {
	store := db.NewMemoryStore()
	out, err := newTestSync(store).Sync(context.Background(), batchOf("A", date(2025, 1, 1), "A", date(2025, 2, 2)), nil)
	require.NoError(t, err)
	require.Len(t, out.Inserted, 1)

	a, _ := store.Get("A")
	assert.Equal(t, date(2025, 1, 1), a.Date)
}

func TestAnalyze_ReadOnly(t *testing.T) {
	store := db.NewMemoryStore()
	store.Seed(
		models.PersistedRecord{Identifier: "A", Date: date(2025, 1, 1), Active: true},
		models.PersistedRecord{Identifier: "B", Date: date(2025, 1, 1), Active: true},
	)

	c, err := newTestSync(store).Analyze(context.Background(), batchOf("A", date(2025, 1, 1), "B", date(2025, 1, 2), "N", nil))
	require.NoError(t, err)
	assert.Len(t, c.New, 1)
	assert.Len(t, c.Updated, 1)
	assert.Len(t, c.Unchanged, 1)
	assert.Zero(t, store.Writes())
}
