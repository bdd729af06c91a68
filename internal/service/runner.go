package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Guizzs26/go-imei-sync/internal/excel"
	"github.com/Guizzs26/go-imei-sync/internal/mail"
	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/internal/profiles"
	"github.com/Guizzs26/go-imei-sync/pkg/metrics"
)

// Trigger labels who started a run
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// MailFetcher downloads the workbooks attached to matching messages
type MailFetcher interface {
	Download(ctx context.Context, req mail.SearchRequest) (mail.DownloadResult, error)
}

// BatchProcessor runs the reconciliation or forms pipeline over local files
type BatchProcessor interface {
	ProcessFiles(ctx context.Context, files []string, progress chan<- models.ProgressEvent) (models.BatchResult, error)
	ProcessForms(ctx context.Context, files []string, progress chan<- models.ProgressEvent) (models.BatchResult, error)
}

// EventPublisher hands finished runs to the notifier
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, ev models.RunEvent) error
}

// RunnerOptions carries the mailbox limits and where artifacts go
type RunnerOptions struct {
	MaxChecked  int
	MaxMatches  int
	DownloadDir string
	ReportDir   string
}

// UploadRequest describes a manual run over local files
type UploadRequest struct {
	Files      []string
	Forms      bool
	Label      string
	Recipients []string
}

// Runner drives one profile or manual upload end to end: download, process,
// write the xlsx report and publish the run event
type Runner struct {
	fetcher   MailFetcher
	processor BatchProcessor
	publisher EventPublisher
	opts      RunnerOptions
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner wires a runner. fetcher and publisher may be nil: profile runs
// then fail and events are not published.
func NewRunner(fetcher MailFetcher, processor BatchProcessor, publisher EventPublisher, opts RunnerOptions, logger *slog.Logger) *Runner {
	return &Runner{
		fetcher:   fetcher,
		processor: processor,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// RunProfile fetches the profile's workbooks and processes them. The
// download directory is removed before returning.
func (r *Runner) RunProfile(ctx context.Context, p profiles.Profile, trigger string, progress chan<- models.ProgressEvent) (models.BatchResult, error) {
	l := r.logger.With("profile", p.Name, "trigger", trigger)
	if r.fetcher == nil {
		metrics.ProfileRuns.WithLabelValues(trigger, "failed").Inc()
		return models.BatchResult{}, fmt.Errorf("profile %s: mail is not configured", p.Name)
	}

	l.Info("Running profile", "mailbox", p.Mailbox, "filter", p.TitleFilter, "today_only", p.TodayOnly, "mode", p.EffectiveMode())
	dl, err := r.fetcher.Download(ctx, mail.SearchRequest{
		Mailbox:    p.Mailbox,
		Filter:     p.TitleFilter,
		TodayOnly:  p.TodayOnly,
		MaxChecked: r.opts.MaxChecked,
		MaxMatches: r.opts.MaxMatches,
		DownloadTo: r.opts.DownloadDir,
	})
	if dl.TempDir != "" {
		defer r.cleanup(l, dl.TempDir)
	}
	if err != nil {
		metrics.ProfileRuns.WithLabelValues(trigger, "failed").Inc()
		l.Error("Mail download failed", "error", err)
		return models.BatchResult{}, fmt.Errorf("profile %s: download: %w", p.Name, err)
	}

	l.Info("Mailbox scanned", "found", dl.Found, "checked", dl.Checked, "matched", dl.Matched, "files", len(dl.Files))
	if len(dl.Files) == 0 {
		metrics.ProfileRuns.WithLabelValues(trigger, "empty").Inc()
		return models.BatchResult{Success: true, Summary: "No matching workbooks found"}, nil
	}

	res, err := r.process(ctx, dl.Files, p.EffectiveMode() == profiles.ModeForms, progress)
	r.finish(ctx, l, res, p.Name, p.Recipients)
	metrics.ProfileRuns.WithLabelValues(trigger, runStatus(res, err)).Inc()
	return res, err
}

// Upload processes local files the same way a profile run would
func (r *Runner) Upload(ctx context.Context, req UploadRequest, progress chan<- models.ProgressEvent) (models.BatchResult, error) {
	label := req.Label
	if label == "" {
		label = TriggerManual
	}
	l := r.logger.With("profile", label, "trigger", TriggerManual)

	res, err := r.process(ctx, req.Files, req.Forms, progress)
	r.finish(ctx, l, res, label, req.Recipients)
	metrics.ProfileRuns.WithLabelValues(TriggerManual, runStatus(res, err)).Inc()
	return res, err
}

func (r *Runner) process(ctx context.Context, files []string, forms bool, progress chan<- models.ProgressEvent) (models.BatchResult, error) {
	if forms {
		return r.processor.ProcessForms(ctx, files, progress)
	}
	return r.processor.ProcessFiles(ctx, files, progress)
}

// finish writes the xlsx report and publishes the run event. Failures here
// are logged; the batch already happened.
func (r *Runner) finish(ctx context.Context, l *slog.Logger, res models.BatchResult, label string, recipients []string) {
	if len(res.Files) == 0 {
		return
	}

	attachment := ""
	if r.opts.ReportDir != "" {
		path, err := r.writeReport(res, label)
		if err != nil {
			l.Error("Failed to write xlsx report", "error", err)
		} else {
			attachment = path
			l.Info("Report written", "file", path)
		}
	}

	if r.publisher == nil || len(recipients) == 0 {
		return
	}
	ev := models.RunEvent{
		EventID:    uuid.NewString(),
		RunID:      res.RunID,
		Profile:    label,
		Recipients: recipients,
		Subject:    Subject(label, res, r.now()),
		Body:       res.Summary,
		Attachment: attachment,
		Result:     res,
		Timestamp:  r.now(),
	}
	if err := r.publisher.PublishRunEvent(ctx, ev); err != nil {
		l.Error("Failed to publish run event", "run_id", res.RunID, "error", err)
		return
	}
	l.Info("Run event published", "run_id", res.RunID, "recipients", len(recipients))
}

func (r *Runner) writeReport(res models.BatchResult, label string) (string, error) {
	if err := os.MkdirAll(r.opts.ReportDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	name := fmt.Sprintf("report_%s_%s.xlsx", slug(label), r.now().Format("20060102_150405"))
	path := filepath.Join(r.opts.ReportDir, name)
	if err := excel.WriteReport(path, res); err != nil {
		return "", err
	}
	return path, nil
}

func (r *Runner) cleanup(l *slog.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		l.Warn("Failed to remove download dir", "dir", dir, "error", err)
		return
	}
	l.Debug("Download dir removed", "dir", dir)
}

// Subject is the notification subject for a finished batch
func Subject(label string, res models.BatchResult, at time.Time) string {
	status := "OK"
	switch p := res.Processed(); {
	case !res.Success:
		status = "FAILED"
	case p < len(res.Files):
		status = "PARTIAL"
	}
	return fmt.Sprintf("[imeisync] %s %s - %s", label, status, at.Format("2006-01-02 15:04"))
}

func runStatus(res models.BatchResult, err error) string {
	switch {
	case err != nil:
		return "failed"
	case res.Processed() < len(res.Files):
		return "partial"
	default:
		return "success"
	}
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
