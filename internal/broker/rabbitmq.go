package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/pkg/metrics"
)

const (
	// Exchange carries every imeisync event
	Exchange = "imeisync.topic"
	// RunFinishedKey routes finished runs to the notifier
	RunFinishedKey = "imeisync.run.finished"

	confirmTimeout = 10 * time.Second
)

var (
	ErrUnhealthy      = errors.New("broker connection is closed")
	ErrNacked         = errors.New("broker refused the message")
	ErrConfirmTimeout = errors.New("publisher confirm timeout")
)

// RabbitMQClient publishes run events on a confirm-mode channel. It does not
// reconnect: once the connection drops IsHealthy turns false and the owner is
// expected to build a new client.
type RabbitMQClient struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    *slog.Logger
	closeOnce sync.Once
	healthy   atomic.Bool
	done      chan struct{}
}

// openChannel dials url, opens one channel and declares the topic exchange.
// Both the publisher and the consumer start from here.
func openChannel(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange %s: %w", Exchange, err)
	}
	return conn, ch, nil
}

func NewRabbitMQClient(url string, l *slog.Logger) (*RabbitMQClient, error) {
	conn, ch, err := openChannel(url)
	if err != nil {
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to activate publisher confirms: %w", err)
	}

	r := &RabbitMQClient{
		conn:    conn,
		channel: ch,
		logger:  l.With("component", "publisher"),
		done:    make(chan struct{}),
	}
	r.setHealthy(true)
	go r.watch(conn.NotifyClose(make(chan *amqp.Error, 1)), ch.NotifyClose(make(chan *amqp.Error, 1)))

	r.logger.Info("Connected to RabbitMQ", "exchange", Exchange)
	return r, nil
}

// watch flips the health flag on the first close notification
func (r *RabbitMQClient) watch(connClosed, chanClosed <-chan *amqp.Error) {
	var (
		what string
		err  *amqp.Error
	)
	select {
	case err = <-connClosed:
		what = "connection"
	case err = <-chanClosed:
		what = "channel"
	case <-r.done:
		return
	}
	r.setHealthy(false)
	r.logger.Warn("RabbitMQ "+what+" closed", "error", err)
}

func (r *RabbitMQClient) setHealthy(v bool) {
	r.healthy.Store(v)
	if v {
		metrics.HealthStatus.Set(1)
	} else {
		metrics.HealthStatus.Set(0)
	}
}

// PublishRunEvent sends ev to RunFinishedKey and waits for the confirm
func (r *RabbitMQClient) PublishRunEvent(ctx context.Context, ev models.RunEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize run event: %w", err)
	}

	msg := amqp.Publishing{
		Headers:      amqp.Table{"run_id": ev.RunID, "profile": ev.Profile},
		MessageId:    ev.EventID,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.Timestamp,
		Body:         body,
	}

	if err := r.publish(ctx, RunFinishedKey, msg); err != nil {
		r.logger.Error("Run event not delivered", "event_id", ev.EventID, "run_id", ev.RunID, "error", err)
		return err
	}
	r.logger.Debug("Run event confirmed", "event_id", ev.EventID, "run_id", ev.RunID)
	return nil
}

func (r *RabbitMQClient) publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if !r.IsHealthy() {
		return ErrUnhealthy
	}

	deferred, err := r.channel.PublishWithDeferredConfirmWithContext(ctx, Exchange, key, false, false, msg)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", key, err)
	}

	timer := time.NewTimer(confirmTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return ErrNacked
		}
		return nil
	case <-timer.C:
		return ErrConfirmTimeout
	}
}

func (r *RabbitMQClient) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("Closing RabbitMQ publisher")
		close(r.done)
		r.channel.Close()
		r.conn.Close()
	})
	return nil
}

func (r *RabbitMQClient) IsHealthy() bool {
	return r.healthy.Load()
}
