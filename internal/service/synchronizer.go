package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/internal/reconcile"
	"github.com/Guizzs26/go-imei-sync/pkg/metrics"
)

// DefaultDetail is written to the detail column when no provenance tag is configured
const DefaultDetail = "traiding_trustonic"

// progressEvery throttles per-row progress events on large batches
const progressEvery = 250

var (
	// ErrConnection means the store could not be reached. The whole run is aborted
	ErrConnection = errors.New("store connection failed")
	// ErrSchema means the destination table could not be guaranteed
	ErrSchema = errors.New("store schema unavailable")
	// ErrLocked means another run holds the table lock
	ErrLocked = errors.New("another reconciliation is running against this table")
)

// Store defines the contract for the reconciliation table
type Store interface {
	Ping(ctx context.Context) error
	EnsureTable(ctx context.Context) error
	// ListCurrent returns the state of the given identifiers, or of the whole
	// table when ids is nil
	ListCurrent(ctx context.Context, ids []string) (map[string]models.CurrentState, error)
	Insert(ctx context.Context, rec models.PersistedRecord) error
	Update(ctx context.Context, rec models.PersistedRecord) error
	Deactivate(ctx context.Context, identifier string, at time.Time) error
}

// Locker is implemented by stores that can serialize runs per table
type Locker interface {
	TryLock(ctx context.Context) (release func(), acquired bool, err error)
}

// Synchronizer runs the three-way merge of an extraction batch into the store
type Synchronizer struct {
	store  Store
	detail string
	logger *slog.Logger
	now    func() time.Time
}

func NewSynchronizer(store Store, detail string, logger *slog.Logger) *Synchronizer {
	if detail == "" {
		detail = DefaultDetail
	}
	return &Synchronizer{
		store:  store,
		detail: detail,
		logger: logger,
		now:    time.Now,
	}
}

// Sync inserts new identifiers, updates changed or inactive ones and
// deactivates those missing from batch. Rows are never deleted.
//
// Row failures are collected in the outcome and do not stop the run. A store
// that cannot be reached or prepared aborts the run with an error wrapping
// ErrConnection or ErrSchema. Cancellation is checked between rows; writes
// already made are kept and the outcome is marked Cancelled.
func (s *Synchronizer) Sync(ctx context.Context, batch []models.ExtractedRecord, progress chan<- models.ProgressEvent) (models.SyncOutcome, error) {
	began := time.Now()
	out := models.SyncOutcome{
		RunID:     uuid.NewString(),
		Total:     len(batch),
		StartedAt: s.now(),
	}
	l := s.logger.With("run_id", out.RunID)

	defer func() {
		metrics.SyncDuration.Observe(time.Since(began).Seconds())
		l.Info("Sync cycle telemetry",
			"total", out.Total,
			"inserted", len(out.Inserted),
			"updated", len(out.Updated),
			"unchanged", len(out.Unchanged),
			"deactivated", len(out.Deactivated),
			"errors", len(out.Errors),
			"duration_ms", time.Since(began).Milliseconds(),
		)
	}()

	if lk, ok := s.store.(Locker); ok {
		release, acquired, err := lk.TryLock(ctx)
		if err != nil {
			return s.abort(ctx, &out, progress, fmt.Errorf("%w: acquire run lock: %v", ErrConnection, err))
		}
		if !acquired {
			metrics.SyncRuns.WithLabelValues("locked").Inc()
			out.Error = ErrLocked.Error()
			out.FinishedAt = s.now()
			l.Warn("Table is locked by another run, skipping")
			send(ctx, progress, models.ProgressEvent{Stage: "lock", Message: ErrLocked.Error(), Level: models.LevelWarning})
			return out, ErrLocked
		}
		defer release()
	}

	send(ctx, progress, models.ProgressEvent{Stage: "connect", Message: "Checking store connection", Level: models.LevelInfo})
	if err := s.store.Ping(ctx); err != nil {
		return s.abort(ctx, &out, progress, fmt.Errorf("%w: %v", ErrConnection, err))
	}
	if err := s.store.EnsureTable(ctx); err != nil {
		return s.abort(ctx, &out, progress, fmt.Errorf("%w: %v", ErrSchema, err))
	}

	current, err := s.store.ListCurrent(ctx, nil)
	if err != nil {
		return s.abort(ctx, &out, progress, fmt.Errorf("%w: load current rows: %v", ErrConnection, err))
	}

	extracted := make(map[string]models.ExtractedRecord, len(batch))
	unique := make([]models.ExtractedRecord, 0, len(batch))
	for _, r := range batch {
		if _, dup := extracted[r.Identifier]; dup || r.Identifier == "" {
			continue
		}
		extracted[r.Identifier] = r
		unique = append(unique, r)
	}
	if len(unique) != len(batch) {
		l.Warn("Batch was not deduplicated, later occurrences ignored", "dropped", len(batch)-len(unique))
	}
	metrics.BatchSize.Observe(float64(len(unique)))

	obsolete := make([]string, 0)
	for id, st := range current {
		if _, ok := extracted[id]; !ok && st.Active {
			obsolete = append(obsolete, id)
		}
	}
	sort.Strings(obsolete)

	steps := len(unique) + len(obsolete)
	done := 0
	tick := func(stage string) {
		done++
		if done%progressEvery == 0 || done == steps {
			send(ctx, progress, models.ProgressEvent{
				Stage:   stage,
				Message: fmt.Sprintf("Processed %d/%d", done, steps),
				Level:   models.LevelInfo,
				Done:    done,
				Total:   steps,
			})
		}
	}

	l.Info("Starting reconciliation", "extracted", len(unique), "persisted", len(current), "to_deactivate", len(obsolete))

	for _, r := range unique {
		if ctx.Err() != nil {
			return s.cancelled(ctx, &out, progress)
		}

		cur, exists := current[r.Identifier]
		now := s.now()

		if !exists {
			err := s.store.Insert(ctx, models.PersistedRecord{
				Identifier: r.Identifier,
				Date:       r.Date,
				Active:     true,
				CreatedAt:  now,
				UpdatedAt:  now,
				Detail:     s.detail,
			})
			if err != nil {
				if ctx.Err() != nil {
					return s.cancelled(ctx, &out, progress)
				}
				s.rowError(l, &out, r.Identifier, models.OpInsert, err)
			} else {
				out.Inserted = append(out.Inserted, r)
			}
			tick("insert")
			continue
		}

		upd, changed := reconcile.Decide(r, cur)
		if !changed {
			out.Unchanged = append(out.Unchanged, r)
			tick("update")
			continue
		}

		err := s.store.Update(ctx, models.PersistedRecord{
			Identifier: r.Identifier,
			Date:       r.Date,
			Active:     true,
			UpdatedAt:  now,
			Detail:     s.detail,
		})
		if err != nil {
			if ctx.Err() != nil {
				return s.cancelled(ctx, &out, progress)
			}
			s.rowError(l, &out, r.Identifier, models.OpUpdate, err)
		} else {
			out.Updated = append(out.Updated, upd)
		}
		tick("update")
	}

	for _, id := range obsolete {
		if ctx.Err() != nil {
			return s.cancelled(ctx, &out, progress)
		}

		now := s.now()
		if err := s.store.Deactivate(ctx, id, now); err != nil {
			if ctx.Err() != nil {
				return s.cancelled(ctx, &out, progress)
			}
			s.rowError(l, &out, id, models.OpDeactivate, err)
		} else {
			out.Deactivated = append(out.Deactivated, models.PersistedRecord{
				Identifier: id,
				Date:       current[id].Date,
				Active:     false,
				UpdatedAt:  now,
			})
		}
		tick("deactivate")
	}

	out.Success = true
	out.FinishedAt = s.now()
	s.record(&out, "success")

	level := models.LevelSuccess
	if len(out.Errors) > 0 {
		level = models.LevelWarning
	}
	send(ctx, progress, models.ProgressEvent{
		Stage: "done",
		Message: fmt.Sprintf("Sync completed: %d new, %d updated, %d deactivated, %d errors",
			len(out.Inserted), len(out.Updated), len(out.Deactivated), len(out.Errors)),
		Level: level,
		Done:  steps,
		Total: steps,
	})
	return out, nil
}

// Analyze classifies batch against the store without writing anything
func (s *Synchronizer) Analyze(ctx context.Context, batch []models.ExtractedRecord) (models.Classification, error) {
	if err := s.store.Ping(ctx); err != nil {
		return models.Classification{}, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	ids := make([]string, 0, len(batch))
	for _, r := range batch {
		ids = append(ids, r.Identifier)
	}
	current, err := s.store.ListCurrent(ctx, ids)
	if err != nil {
		return models.Classification{}, fmt.Errorf("%w: load current rows: %v", ErrConnection, err)
	}
	return reconcile.Classify(batch, current), nil
}

func (s *Synchronizer) rowError(l *slog.Logger, out *models.SyncOutcome, id string, op models.WriteOp, err error) {
	l.Error("Row write failed", "identifier", id, "op", op, "error", err)
	metrics.RowErrors.WithLabelValues(string(op)).Inc()
	out.Errors = append(out.Errors, models.RowError{Identifier: id, Op: op, Message: err.Error()})
}

func (s *Synchronizer) abort(ctx context.Context, out *models.SyncOutcome, progress chan<- models.ProgressEvent, err error) (models.SyncOutcome, error) {
	out.Success = false
	out.Error = err.Error()
	out.FinishedAt = s.now()
	metrics.SyncRuns.WithLabelValues("failed").Inc()
	s.logger.Error("Reconciliation aborted", "run_id", out.RunID, "error", err)
	send(ctx, progress, models.ProgressEvent{Stage: "abort", Message: err.Error(), Level: models.LevelError})
	return *out, err
}

func (s *Synchronizer) cancelled(ctx context.Context, out *models.SyncOutcome, progress chan<- models.ProgressEvent) (models.SyncOutcome, error) {
	out.Cancelled = true
	out.Error = "cancelled"
	out.FinishedAt = s.now()
	s.record(out, "cancelled")
	s.logger.Warn("Reconciliation cancelled, partial writes kept",
		"run_id", out.RunID,
		"inserted", len(out.Inserted),
		"updated", len(out.Updated),
		"deactivated", len(out.Deactivated),
	)
	// ctx is done: deliver only if a reader is waiting
	if progress != nil {
		select {
		case progress <- models.ProgressEvent{Stage: "cancel", Message: "Reconciliation cancelled", Level: models.LevelWarning}:
		default:
		}
	}
	return *out, ctx.Err()
}

func (s *Synchronizer) record(out *models.SyncOutcome, status string) {
	metrics.SyncRuns.WithLabelValues(status).Inc()
	metrics.RecordsProcessed.WithLabelValues("inserted").Add(float64(len(out.Inserted)))
	metrics.RecordsProcessed.WithLabelValues("updated").Add(float64(len(out.Updated)))
	metrics.RecordsProcessed.WithLabelValues("unchanged").Add(float64(len(out.Unchanged)))
	metrics.RecordsProcessed.WithLabelValues("deactivated").Add(float64(len(out.Deactivated)))
	for _, u := range out.Updated {
		if u.WasInactive {
			metrics.RecordsProcessed.WithLabelValues("reactivated").Inc()
		}
	}
	if status == "success" {
		metrics.LastSuccess.SetToCurrentTime()
	}
}
