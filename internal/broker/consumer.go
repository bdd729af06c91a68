package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Guizzs26/go-imei-sync/internal/models"
)

// NotifierQueue is the durable queue the notifier drains
const NotifierQueue = "imeisync.notifier"

const retryThrottle = 5 * time.Second

// RunEventHandler processes one decoded run event
type RunEventHandler interface {
	HandleRunEvent(ctx context.Context, ev models.RunEvent) error
}

// Action is what happens to a delivery after handling
type Action int

const (
	Ack Action = iota
	Requeue
	Drop
)

// RabbitMQConsumer manages the connection and message flow from the broker
type RabbitMQConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	handler RunEventHandler
	logger  *slog.Logger
}

// NewRabbitMQConsumer connects and declares the exchange so the queue can bind
// even when no publisher has run yet
func NewRabbitMQConsumer(url string, handler RunEventHandler, logger *slog.Logger) (*RabbitMQConsumer, error) {
	conn, ch, err := openChannel(url)
	if err != nil {
		return nil, err
	}

	// Prefetch 1: one SMTP conversation at a time
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &RabbitMQConsumer{
		conn:    conn,
		channel: ch,
		handler: handler,
		logger:  logger.With("component", "consumer"),
	}, nil
}

// Listen starts the consumption loop and handles the queue/exchange binding
func (c *RabbitMQConsumer) Listen(ctx context.Context) error {
	args := amqp.Table{
		"x-queue-type": "quorum",
	}
	q, err := c.channel.QueueDeclare(NotifierQueue, true, false, false, false, args)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(q.Name, RunFinishedKey, Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := c.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer is online and waiting for run events", "queue", q.Name, "routing_key", RunFinishedKey)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			switch Dispatch(ctx, c.handler, d.Body, d.Redelivered, c.logger) {
			case Drop:
				d.Nack(false, false)
			case Requeue:
				time.Sleep(retryThrottle)
				d.Nack(false, true)
			default:
				if err := d.Ack(false); err != nil {
					c.logger.Error("Failed to Ack message", "error", err)
				}
			}
		}
	}
}

// Dispatch decodes body and runs the handler. Malformed events are dropped;
// a failed event is requeued once and dropped when it fails again.
func Dispatch(ctx context.Context, h RunEventHandler, body []byte, redelivered bool, logger *slog.Logger) Action {
	var ev models.RunEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		logger.Error("Failed to unmarshal run event", "error", err)
		return Drop
	}
	if ev.RunID == "" {
		logger.Error("Run event without run_id, dropping", "event_id", ev.EventID)
		return Drop
	}

	if err := h.HandleRunEvent(ctx, ev); err != nil {
		if redelivered {
			logger.Error("Run event failed again, dropping", "run_id", ev.RunID, "error", err)
			return Drop
		}
		logger.Error("Run event failed, requeueing", "run_id", ev.RunID, "error", err)
		return Requeue
	}
	return Ack
}

// Close gracefully terminates RabbitMQ resources
func (c *RabbitMQConsumer) Close() {
	c.logger.Info("Shutting down RabbitMQ consumer")
	c.channel.Close()
	c.conn.Close()
}
