package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/internal/profiles"
)

// DefaultCheckInterval is how often the scheduler looks for due profiles
const DefaultCheckInterval = 30 * time.Second

// ProfileStore is the scheduler's view of the profiles file
type ProfileStore interface {
	Load() error
	Due(now time.Time) []profiles.Profile
	MarkRun(name string, at time.Time) error
}

// ProfileRunner executes one profile
type ProfileRunner interface {
	RunProfile(ctx context.Context, p profiles.Profile, trigger string, progress chan<- models.ProgressEvent) (models.BatchResult, error)
}

// Scheduler fires due profiles. Runs never overlap: a tick that finds work
// blocks the loop until every due profile has finished.
type Scheduler struct {
	store    ProfileStore
	runner   ProfileRunner
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewScheduler(store ProfileStore, runner ProfileRunner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Scheduler{
		store:    store,
		runner:   runner,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run starts the polling loop. It blocks until the context is canceled
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Profile scheduler started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler shutting down...")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick reloads the profiles file and runs whatever is due. It returns the
// number of profiles executed.
func (s *Scheduler) Tick(ctx context.Context) int {
	// The file may have been edited by the CLI since the last tick
	if err := s.store.Load(); err != nil {
		s.logger.Error("Failed to reload profiles", "error", err)
		return 0
	}

	now := s.now()
	ran := 0
	for _, p := range s.store.Due(now) {
		if ctx.Err() != nil {
			return ran
		}

		// Stamp first so a crash mid-run does not fire the profile again today
		if err := s.store.MarkRun(p.Name, now); err != nil {
			s.logger.Error("Failed to mark profile run, skipping", "profile", p.Name, "error", err)
			continue
		}

		res, err := s.runner.RunProfile(ctx, p, TriggerSchedule, nil)
		ran++
		if err != nil {
			s.logger.Error("Scheduled profile failed", "profile", p.Name, "error", err)
			continue
		}
		s.logger.Info("Scheduled profile finished", "profile", p.Name, "run_id", res.RunID, "files", len(res.Files), "processed", res.Processed())
	}
	return ran
}
