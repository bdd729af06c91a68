package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Guizzs26/go-imei-sync/internal/app"
	"github.com/Guizzs26/go-imei-sync/internal/broker"
	"github.com/Guizzs26/go-imei-sync/internal/config"
	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/internal/profiles"
	"github.com/Guizzs26/go-imei-sync/internal/service"
	"github.com/Guizzs26/go-imei-sync/pkg/infra"
	"github.com/Guizzs26/go-imei-sync/pkg/metrics"
)

const brokerCheckInterval = 5 * time.Second

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	if err := cfg.Validate(); err != nil {
		logger.Error("FATAL: invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Profile scheduler initializing...", "driver", cfg.StoreDriver, "table", cfg.DBTable, "pid", os.Getpid())

	h, err := infra.Retry(ctx, infra.NewBackoff(time.Second, time.Minute, 2.0),
		func(ctx context.Context) (storeHandle, error) {
			s, c, err := app.OpenStore(ctx, cfg, logger)
			return storeHandle{s, c}, err
		},
		func(err error, attempt int) {
			logger.Error("Store connection failed, retrying", "attempt", attempt, "error", err)
		},
	)
	if err != nil {
		logger.Info("Shutdown signal received before store connection")
		return
	}
	store := h.store
	defer h.close()

	link := &brokerLink{url: cfg.RabbitMQURL, logger: logger}
	var publisher service.EventPublisher
	if cfg.RabbitMQURL != "" {
		publisher = link
		go link.maintain(ctx)
	} else {
		logger.Warn("RABBITMQ_URL empty, run events will not be published")
	}

	book := profiles.NewStore(cfg.ProfilesPath, logger)
	if err := book.Load(); err != nil {
		logger.Error("FATAL: cannot read profiles", "path", cfg.ProfilesPath, "error", err)
		os.Exit(1)
	}

	runner := app.NewRunner(cfg, app.NewFileHandler(cfg, store, logger), publisher, logger)
	scheduler := service.NewScheduler(book, runner, cfg.ProfileCheckInterval, logger)

	go infra.StartObservabilityServer(ctx, cfg.MetricsPort, "SCHEDULER", func() bool {
		return store.Ping(ctx) == nil
	}, logger)

	scheduler.Run(ctx)
	link.close()
	logger.Info("Shutdown complete")
}

type storeHandle struct {
	store app.Store
	close func()
}

// brokerLink keeps one healthy publisher around, reconnecting with backoff
// whenever the current one reports unhealthy
type brokerLink struct {
	url    string
	logger *slog.Logger

	mu     sync.Mutex
	client *broker.RabbitMQClient
}

func (b *brokerLink) maintain(ctx context.Context) {
	backoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)
	for {
		if !b.healthy() {
			b.close()
			client, err := broker.NewRabbitMQClient(b.url, b.logger)
			if err != nil {
				metrics.RabbitMQReconnections.Inc()
				b.logger.Error("RabbitMQ link failure, retrying", "error", err)
				if backoff.Wait(ctx) != nil {
					return
				}
				continue
			}
			b.logger.Info("RabbitMQ link established")
			backoff.Reset()
			b.mu.Lock()
			b.client = client
			b.mu.Unlock()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(brokerCheckInterval):
		}
	}
}

func (b *brokerLink) healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client != nil && b.client.IsHealthy()
}

func (b *brokerLink) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Close()
		b.client = nil
	}
}

// PublishRunEvent forwards to the current client
func (b *brokerLink) PublishRunEvent(ctx context.Context, ev models.RunEvent) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil {
		return broker.ErrUnhealthy
	}
	return client.PublishRunEvent(ctx, ev)
}
