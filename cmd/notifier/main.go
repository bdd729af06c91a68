package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/go-imei-sync/internal/app"
	"github.com/Guizzs26/go-imei-sync/internal/broker"
	"github.com/Guizzs26/go-imei-sync/internal/config"
	"github.com/Guizzs26/go-imei-sync/internal/service"
	"github.com/Guizzs26/go-imei-sync/pkg/infra"
	"github.com/Guizzs26/go-imei-sync/pkg/metrics"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	if err := cfg.Validate(); err != nil {
		logger.Error("CRITICAL: invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.RabbitMQURL == "" {
		logger.Error("CRITICAL: RABBITMQ_URL is required by the notifier")
		os.Exit(1)
	}

	sender := app.NewSender(cfg, logger)
	if sender == nil {
		logger.Error("CRITICAL: SMTP_HOST is required by the notifier")
		os.Exit(1)
	}

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Notifier initializing...", "smtp_host", cfg.SMTPHost)

	handler := service.NewNotifierService(sender, logger)

	go infra.StartObservabilityServer(ctx, cfg.MetricsPort, "NOTIFIER", nil, logger)

	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received")
			return
		default:
			consumer, err := broker.NewRabbitMQConsumer(cfg.RabbitMQURL, handler, logger)
			if err != nil {
				metrics.RabbitMQReconnections.Inc()
				metrics.HealthStatus.Set(0)
				logger.Error("RabbitMQ connection failed, retrying...", "attempt", connBackoff.Attempts()+1, "error", err)
				if connBackoff.Wait(ctx) != nil {
					return
				}
				continue
			}

			connBackoff.Reset()
			metrics.HealthStatus.Set(1)
			logger.Info("Connected to broker. Listening for run events...")

			if err := consumer.Listen(ctx); err != nil {
				metrics.HealthStatus.Set(0)
				logger.Error("Consumer connection lost", "error", err)
			}

			consumer.Close()
		}
	}
}
