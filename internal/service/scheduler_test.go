package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/internal/profiles"
)

type recordingRunner struct {
	ran []string
	err error
}

func (r *recordingRunner) RunProfile(_ context.Context, p profiles.Profile, trigger string, _ chan<- models.ProgressEvent) (models.BatchResult, error) {
	r.ran = append(r.ran, p.Name+"/"+trigger)
	return models.BatchResult{RunID: "r"}, r.err
}

func TestScheduler_Tick(t *testing.T) {
	store := profiles.NewStore(filepath.Join(t.TempDir(), "profiles.json"), discardLogger())
	require.NoError(t, store.Add(profiles.Profile{Name: "morning", Hour: 8, Minute: 30, Enabled: true}))
	require.NoError(t, store.Add(profiles.Profile{Name: "also-morning", Hour: 8, Minute: 30, Enabled: true}))
	require.NoError(t, store.Add(profiles.Profile{Name: "disabled", Hour: 8, Minute: 30}))
	require.NoError(t, store.Add(profiles.Profile{Name: "evening", Hour: 18, Minute: 0, Enabled: true}))

	runner := &recordingRunner{err: errors.New("mailbox down")}
	s := NewScheduler(store, runner, time.Second, discardLogger())
	s.now = func() time.Time { return time.Date(2025, 6, 17, 8, 30, 5, 0, time.Local) }

	assert.Equal(t, 2, s.Tick(context.Background()))
	assert.Equal(t, []string{"morning/schedule", "also-morning/schedule"}, runner.ran)

	// a failed run still counts as today's run
	assert.Equal(t, 0, s.Tick(context.Background()))

	p, err := store.Get("morning")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-17 08:30:05", p.LastRun)
}

func TestScheduler_TickCatchesUpMissedSlot(t *testing.T) {
	store := profiles.NewStore(filepath.Join(t.TempDir(), "profiles.json"), discardLogger())
	require.NoError(t, store.Add(profiles.Profile{Name: "morning", Hour: 8, Minute: 30, Enabled: true}))
	require.NoError(t, store.Add(profiles.Profile{Name: "later", Hour: 8, Minute: 35, Enabled: true}))

	runner := &recordingRunner{}
	s := NewScheduler(store, runner, 10*time.Minute, discardLogger())

	s.now = func() time.Time { return time.Date(2025, 6, 17, 8, 30, 5, 0, time.Local) }
	assert.Equal(t, 1, s.Tick(context.Background()))

	// the first run kept the loop busy past 08:35
	s.now = func() time.Time { return time.Date(2025, 6, 17, 8, 41, 0, 0, time.Local) }
	assert.Equal(t, 1, s.Tick(context.Background()))
	assert.Equal(t, []string{"morning/schedule", "later/schedule"}, runner.ran)

	s.now = func() time.Time { return time.Date(2025, 6, 17, 23, 59, 0, 0, time.Local) }
	assert.Equal(t, 0, s.Tick(context.Background()))
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	store := profiles.NewStore(filepath.Join(t.TempDir(), "profiles.json"), discardLogger())
	s := NewScheduler(store, &recordingRunner{}, 10*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
