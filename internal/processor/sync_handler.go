package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Guizzs26/go-imei-sync/internal/excel"
	"github.com/Guizzs26/go-imei-sync/internal/mapper"
	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/internal/reconcile"
	"github.com/Guizzs26/go-imei-sync/pkg/metrics"
)

// DefaultDetailLimit bounds the per-category lists kept in each file report.
// The text summary shows fewer; the xlsx report shows all kept rows.
const DefaultDetailLimit = 5000

// Syncer reconciles one deduplicated batch against the store
type Syncer interface {
	Sync(ctx context.Context, batch []models.ExtractedRecord, progress chan<- models.ProgressEvent) (models.SyncOutcome, error)
	Analyze(ctx context.Context, batch []models.ExtractedRecord) (models.Classification, error)
}

// FormsUploader appends structured form rows
type FormsUploader interface {
	Upload(ctx context.Context, records []models.FormRecord, columns map[string]mapper.ColumnKind, progress chan<- models.ProgressEvent) (models.FormUploadResult, error)
}

// Options tunes how workbooks are read and how much each report keeps
type Options struct {
	Extract      excel.ExtractOptions
	FormMappings []excel.FieldMapping
	ExampleLimit int // examples per category in the text summary
	DetailLimit  int // rows per category kept for the xlsx report
}

// FileHandler runs the extract, dedupe and sync pipeline over a list of workbooks
type FileHandler struct {
	sync   Syncer
	forms  FormsUploader
	opts   Options
	logger *slog.Logger
}

func NewFileHandler(sync Syncer, forms FormsUploader, opts Options, logger *slog.Logger) *FileHandler {
	if opts.ExampleLimit <= 0 {
		opts.ExampleLimit = reconcile.DefaultExampleLimit
	}
	if opts.DetailLimit <= 0 {
		opts.DetailLimit = DefaultDetailLimit
	}
	if len(opts.FormMappings) == 0 {
		opts.FormMappings = excel.DefaultFormMappings()
	}
	return &FileHandler{sync: sync, forms: forms, opts: opts, logger: logger}
}

// ProcessFiles reconciles each workbook in order. A workbook that cannot be
// read is reported and skipped; a store failure aborts the remaining files
// and is returned alongside the partial result.
func (h *FileHandler) ProcessFiles(ctx context.Context, files []string, progress chan<- models.ProgressEvent) (models.BatchResult, error) {
	return h.run(ctx, files, progress, h.reconcileFile)
}

// ProcessForms uploads each form export in order with the same failure rules
// as ProcessFiles
func (h *FileHandler) ProcessForms(ctx context.Context, files []string, progress chan<- models.ProgressEvent) (models.BatchResult, error) {
	if h.forms == nil {
		return models.BatchResult{}, errors.New("forms upload is not configured")
	}
	return h.run(ctx, files, progress, h.uploadForms)
}

// Analyze classifies one workbook against the store without writing
func (h *FileHandler) Analyze(ctx context.Context, path string) (models.Report, error) {
	ext, err := excel.Extract(path, h.opts.Extract)
	if err != nil {
		return models.Report{}, err
	}
	rows, dupes := reconcile.Dedupe(ext.Rows)
	if len(rows) == 0 {
		return models.Report{}, &excel.ExtractionError{File: path, Reason: "no identifiers found"}
	}

	c, err := h.sync.Analyze(ctx, rows)
	if err != nil {
		return models.Report{}, err
	}
	r := reconcile.BuildClassificationReport(c, dupes, h.opts.DetailLimit)
	r.Source = filepath.Base(path)
	return r, nil
}

type fileFunc func(ctx context.Context, path string, progress chan<- models.ProgressEvent) (models.FileReport, error)

func (h *FileHandler) run(ctx context.Context, files []string, progress chan<- models.ProgressEvent, process fileFunc) (models.BatchResult, error) {
	start := time.Now()
	batch := models.BatchResult{RunID: uuid.NewString()}
	l := h.logger.With("run_id", batch.RunID)

	if len(files) == 0 {
		l.Warn("No files to process")
		batch.Success = true
		batch.Summary = "No files to process"
		return batch, nil
	}

	l.Info("Processing files", "count", len(files))
	var runErr error
	for i, path := range files {
		name := filepath.Base(path)
		if runErr != nil {
			batch.Files = append(batch.Files, models.FileReport{File: name, Failed: true, Error: "skipped: " + runErr.Error()})
			metrics.FilesProcessed.WithLabelValues("skipped").Inc()
			continue
		}

		emit(ctx, progress, models.ProgressEvent{
			Stage:   "file",
			Message: fmt.Sprintf("Processing file %d/%d: %s", i+1, len(files), name),
			Level:   models.LevelInfo,
			Done:    i,
			Total:   len(files),
		})

		fr, err := process(ctx, path, progress)
		fr.File = name
		if err != nil {
			fr.Failed = true
			fr.Error = err.Error()
			if excel.IsExtractionError(err) {
				l.Warn("File skipped", "file", name, "error", err)
			} else {
				l.Error("File failed, aborting remaining files", "file", name, "error", err)
				runErr = err
			}
			metrics.FilesProcessed.WithLabelValues("failed").Inc()
		} else {
			metrics.FilesProcessed.WithLabelValues("processed").Inc()
		}
		batch.Files = append(batch.Files, fr)
	}

	processed := batch.Processed()
	batch.Success = processed > 0
	batch.Summary = Summarize(batch, h.opts.ExampleLimit)
	l.Info("Batch finished", "processed", processed, "failed", len(files)-processed, "elapsed", elapsed(start))

	emit(ctx, progress, models.ProgressEvent{
		Stage:   "batch",
		Message: fmt.Sprintf("%d of %d files processed", processed, len(files)),
		Level:   batchLevel(batch, len(files)),
		Done:    len(files),
		Total:   len(files),
	})
	return batch, runErr
}

func (h *FileHandler) reconcileFile(ctx context.Context, path string, progress chan<- models.ProgressEvent) (models.FileReport, error) {
	ext, err := excel.Extract(path, h.opts.Extract)
	if err != nil {
		return models.FileReport{}, err
	}

	// An empty batch would deactivate the whole table
	rows, dupes := reconcile.Dedupe(ext.Rows)
	if len(rows) == 0 {
		return models.FileReport{}, &excel.ExtractionError{File: path, Reason: "no identifiers found"}
	}
	metrics.DuplicatesDropped.Add(float64(len(dupes)))
	if bad := reconcile.NonIMEI(rows); len(bad) > 0 {
		h.logger.Warn("Identifiers that are not 15-digit IMEIs", "file", filepath.Base(path), "count", len(bad))
	}

	out, err := h.sync.Sync(ctx, rows, progress)
	r := reconcile.BuildReport(out, dupes, h.opts.DetailLimit)
	r.Source = filepath.Base(path)
	return models.FileReport{Report: &r}, err
}

func (h *FileHandler) uploadForms(ctx context.Context, path string, progress chan<- models.ProgressEvent) (models.FileReport, error) {
	ext, err := excel.ExtractForms(path, h.opts.FormMappings, h.opts.Extract.Location)
	if err != nil {
		return models.FileReport{}, err
	}
	if len(ext.Records) == 0 {
		return models.FileReport{}, &excel.ExtractionError{File: path, Reason: "no valid form rows"}
	}
	if len(ext.Missing) > 0 {
		h.logger.Debug("Form headers not present", "file", filepath.Base(path), "missing", len(ext.Missing))
	}

	res, err := h.forms.Upload(ctx, ext.Records, excel.ColumnKinds(h.opts.FormMappings), progress)
	return models.FileReport{Forms: &res}, err
}

// Summarize renders the batch as the plain-text notification body
func Summarize(b models.BatchResult, limit int) string {
	var sb strings.Builder
	processed := b.Processed()

	sb.WriteString("Processing completed:\n")
	fmt.Fprintf(&sb, "- Total files: %d\n", len(b.Files))
	fmt.Fprintf(&sb, "- Processed: %d\n", processed)
	fmt.Fprintf(&sb, "- Failed: %d\n", len(b.Files)-processed)
	fmt.Fprintf(&sb, "- Run: %s\n", b.RunID)

	var failed []models.FileReport
	for _, f := range b.Files {
		if f.Failed && f.Report == nil {
			failed = append(failed, f)
			continue
		}
		sb.WriteString("\n")
		switch {
		case f.Report != nil:
			sb.WriteString(reconcile.RenderText(*f.Report, limit))
		case f.Forms != nil:
			fmt.Fprintf(&sb, "Forms upload %s\n", f.File)
			fmt.Fprintf(&sb, "  Inserted: %d\n  Failed:   %d\n", f.Forms.Inserted, f.Forms.Failed)
		}
	}

	if len(failed) > 0 {
		sb.WriteString("\nFiles with errors:\n")
		for _, f := range failed {
			fmt.Fprintf(&sb, "  - %s: %s\n", f.File, f.Error)
		}
	}
	return sb.String()
}

func batchLevel(b models.BatchResult, total int) models.Level {
	switch p := b.Processed(); {
	case p == total:
		return models.LevelSuccess
	case p > 0:
		return models.LevelWarning
	default:
		return models.LevelError
	}
}

func emit(ctx context.Context, ch chan<- models.ProgressEvent, ev models.ProgressEvent) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}

func elapsed(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
