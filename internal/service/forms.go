package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/go-imei-sync/internal/mapper"
	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/pkg/metrics"
)

// FormStore is the destination of structured form uploads
type FormStore interface {
	Ping(ctx context.Context) error
	EnsureFormsTable(ctx context.Context, columns map[string]mapper.ColumnKind) error
	InsertForm(ctx context.Context, rec models.FormRecord) error
}

// FormUploader appends form rows to the forms table, creating it or adding
// missing columns first
type FormUploader struct {
	store  FormStore
	logger *slog.Logger
}

func NewFormUploader(store FormStore, logger *slog.Logger) *FormUploader {
	return &FormUploader{store: store, logger: logger}
}

// Upload inserts every record. Row failures are counted and reported; only
// an unreachable store or an unusable table returns an error.
func (u *FormUploader) Upload(ctx context.Context, records []models.FormRecord, columns map[string]mapper.ColumnKind, progress chan<- models.ProgressEvent) (models.FormUploadResult, error) {
	res := models.FormUploadResult{Total: len(records)}
	if len(records) == 0 {
		u.logger.Warn("No form records to upload")
		return res, nil
	}

	if err := u.store.Ping(ctx); err != nil {
		return res, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if err := u.store.EnsureFormsTable(ctx, columns); err != nil {
		return res, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	u.logger.Info("Uploading form records", "total", len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := u.store.InsertForm(ctx, rec); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("record %d: %v", i+1, err))
			metrics.RowErrors.WithLabelValues("form_insert").Inc()
			u.logger.Error("Form insert failed", "record", i+1, "error", err)
		} else {
			res.Inserted++
		}

		if (i+1)%10 == 0 || i == len(records)-1 {
			send(ctx, progress, models.ProgressEvent{
				Stage:   "forms",
				Message: fmt.Sprintf("Processed %d/%d | inserted %d | failed %d", i+1, len(records), res.Inserted, res.Failed),
				Level:   models.LevelInfo,
				Done:    i + 1,
				Total:   len(records),
			})
		}
	}

	res.Success = true
	if res.Failed > 0 {
		u.logger.Warn("Form upload finished with errors", "inserted", res.Inserted, "failed", res.Failed)
	} else {
		u.logger.Info("Form upload finished", "inserted", res.Inserted)
	}
	return res, nil
}

// send forwards ev unless the channel is nil or ctx is done
func send(ctx context.Context, ch chan<- models.ProgressEvent, ev models.ProgressEvent) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}
