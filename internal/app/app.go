// Package app wires configuration into the stores and services the binaries share
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/go-imei-sync/internal/config"
	"github.com/Guizzs26/go-imei-sync/internal/dates"
	"github.com/Guizzs26/go-imei-sync/internal/db"
	"github.com/Guizzs26/go-imei-sync/internal/excel"
	"github.com/Guizzs26/go-imei-sync/internal/mail"
	"github.com/Guizzs26/go-imei-sync/internal/mapper"
	"github.com/Guizzs26/go-imei-sync/internal/processor"
	"github.com/Guizzs26/go-imei-sync/internal/service"
)

// Store is everything the pipeline needs from a destination database
type Store interface {
	service.Store
	service.FormStore
}

// OpenStore connects the driver named by STORE_DRIVER. The returned func
// releases the connection.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, func(), error) {
	opts := db.Options{
		DSN:        cfg.DatabaseURL,
		Schema:     cfg.DBSchema,
		Table:      cfg.DBTable,
		FormsTable: cfg.FormsTable,
	}

	switch cfg.StoreDriver {
	case "postgres":
		s, err := db.NewPostgresStore(ctx, opts, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "firebird", "sqlite":
		s, err := db.NewSQLStore(mapper.Dialect(cfg.StoreDriver), opts, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("Failed to close store", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// ExtractOptions maps the column settings onto the reader options
func ExtractOptions(cfg *config.Config) excel.ExtractOptions {
	return excel.ExtractOptions{
		IdentifierColumn: cfg.IdentifierColumn,
		DateColumn:       cfg.DateColumn,
		SkipHeader:       cfg.SkipHeader,
		Location:         dates.LocationFor(cfg.CountryCode),
	}
}

// NewFileHandler builds the reconcile and forms pipeline on top of store
func NewFileHandler(cfg *config.Config, store Store, logger *slog.Logger) *processor.FileHandler {
	return processor.NewFileHandler(
		service.NewSynchronizer(store, cfg.SyncDetail, logger),
		service.NewFormUploader(store, logger),
		processor.Options{
			Extract:      ExtractOptions(cfg),
			ExampleLimit: cfg.ReportExamples,
		},
		logger,
	)
}

// NewFetcher returns nil when no mailbox is configured
func NewFetcher(cfg *config.Config, logger *slog.Logger) *mail.Fetcher {
	if !cfg.MailEnabled() {
		return nil
	}
	return mail.NewFetcher(mail.IMAPConfig{
		Host:     cfg.IMAPHost,
		Port:     cfg.IMAPPort,
		User:     cfg.MailUser,
		Password: cfg.MailPassword,
		TLS:      cfg.MailTLS,
	}, logger)
}

// NewSender returns nil when no SMTP relay is configured
func NewSender(cfg *config.Config, logger *slog.Logger) *mail.Sender {
	if cfg.SMTPHost == "" {
		return nil
	}
	return mail.NewSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.MailUser,
		Password: cfg.MailPassword,
		From:     cfg.MailFrom,
		TLS:      cfg.MailTLS,
	}, logger)
}

// RunnerOptions maps the mailbox limits and artifact dirs
func RunnerOptions(cfg *config.Config) service.RunnerOptions {
	return service.RunnerOptions{
		MaxChecked:  cfg.MaxEmailsToCheck,
		MaxMatches:  cfg.MaxMatches,
		DownloadDir: cfg.DownloadDir,
		ReportDir:   cfg.ReportDir,
	}
}

// NewRunner wires the pipeline runner. publisher may be nil.
func NewRunner(cfg *config.Config, handler *processor.FileHandler, publisher service.EventPublisher, logger *slog.Logger) *service.Runner {
	var fetcher service.MailFetcher
	if f := NewFetcher(cfg, logger); f != nil {
		fetcher = f
	}
	return service.NewRunner(fetcher, handler, publisher, RunnerOptions(cfg), logger)
}
