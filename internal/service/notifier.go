package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-imei-sync/internal/mail"
	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/pkg/metrics"
)

// ErrUndelivered means no recipient of a run event could be reached
var ErrUndelivered = errors.New("notification not delivered to any recipient")

// NotificationSender delivers one email
type NotificationSender interface {
	Notify(ctx context.Context, n mail.Notification) error
}

// NotifierService turns run events into emails
type NotifierService struct {
	sender NotificationSender
	logger *slog.Logger
}

func NewNotifierService(sender NotificationSender, logger *slog.Logger) *NotifierService {
	return &NotifierService{sender: sender, logger: logger}
}

// HandleRunEvent mails the summary, and the xlsx report when present, to
// every recipient. Individual failures are counted and logged. Only when
// every recipient failed is ErrUndelivered returned, so the event can be
// retried.
func (s *NotifierService) HandleRunEvent(ctx context.Context, ev models.RunEvent) error {
	start := time.Now()
	status := "success"
	defer func() {
		metrics.NotifierDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
		metrics.NotifierEvents.WithLabelValues(status).Inc()
	}()

	l := s.logger.With("event_id", ev.EventID, "run_id", ev.RunID, "profile", ev.Profile)
	if len(ev.Recipients) == 0 {
		l.Warn("Run event has no recipients, nothing to send")
		return nil
	}

	sent := 0
	for _, to := range ev.Recipients {
		if ctx.Err() != nil {
			status = "fatal"
			return ctx.Err()
		}
		err := s.sender.Notify(ctx, mail.Notification{
			To:             to,
			Subject:        ev.Subject,
			Body:           ev.Body,
			AttachmentPath: ev.Attachment,
		})
		if err != nil {
			metrics.NotificationsSent.WithLabelValues("failed").Inc()
			l.Error("Notification failed", "to", to, "error", err)
			continue
		}
		metrics.NotificationsSent.WithLabelValues("sent").Inc()
		sent++
	}

	switch {
	case sent == 0:
		status = "fatal"
		return ErrUndelivered
	case sent < len(ev.Recipients):
		status = "partial"
		l.Warn("Run event partially delivered", "sent", sent, "recipients", len(ev.Recipients))
	default:
		l.Info("Run event delivered", "recipients", sent)
	}
	return nil
}
