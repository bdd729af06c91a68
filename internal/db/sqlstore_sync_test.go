package db_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/go-imei-sync/internal/db"
	"github.com/Guizzs26/go-imei-sync/internal/mapper"
	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/internal/service"
)

func TestSQLiteReconciliationRoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := db.NewSQLStore(mapper.DialectSQLite, db.Options{
		DSN:   filepath.Join(t.TempDir(), "sync.db"),
		Table: "imeis",
	}, logger)
	require.NoError(t, err)
	defer store.Close()

	sync := service.NewSynchronizer(store, "", logger)
	ctx := context.Background()
	d := func(day int) *time.Time {
		t := time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC)
		return &t
	}

	out, err := sync.Sync(ctx, []models.ExtractedRecord{
		{Identifier: "111111111111111", Date: d(10)},
		{Identifier: "222222222222222", Date: d(11)},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, out.Inserted, 2)

	out, err = sync.Sync(ctx, []models.ExtractedRecord{{Identifier: "111111111111111", Date: d(10)}}, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Inserted)
	assert.Empty(t, out.Updated)
	assert.Len(t, out.Unchanged, 1)
	require.Len(t, out.Deactivated, 1)

	out, err = sync.Sync(ctx, []models.ExtractedRecord{{Identifier: "111111111111111", Date: d(10)}}, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Deactivated, "already inactive rows are not written again")

	cur, err := store.ListCurrent(ctx, nil)
	require.NoError(t, err)
	require.Len(t, cur, 2)
	assert.True(t, cur["111111111111111"].Active)
	assert.False(t, cur["222222222222222"].Active)
}
