// Package notify publishes command results to a RabbitMQ exchange.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jdziat/durable-cmd-tracker/pkg/coordinator"
	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/retry"
)

const contentType = "application/json"

// ErrClosed is returned when publishing through a closed notifier.
var ErrClosed = errors.New("notify: notifier is closed")

// Config holds the exchange and retry settings.
type Config struct {
	URL          string
	Exchange     string
	ExchangeType string
	// RoutingKey is a prefix; the operation type is appended, for example
	// "commands.PERSIST".
	RoutingKey string
	Heartbeat  time.Duration
	Retry      retry.Config
}

// DefaultConfig returns a topic exchange named "cmdtracker" with the default
// retry schedule.
func DefaultConfig() Config {
	return Config{
		Exchange:     "cmdtracker",
		ExchangeType: amqp.ExchangeTopic,
		RoutingKey:   "commands",
		Heartbeat:    10 * time.Second,
		Retry:        retry.DefaultConfig(),
	}
}

// Message is the JSON body published for one finished command.
type Message struct {
	CommandID      string             `json:"command_id"`
	Name           string             `json:"name"`
	OperationType  core.OperationType `json:"operation_type"`
	Status         core.Status        `json:"status"`
	FailedTargets  []string           `json:"failed_targets"`
	Unattributed   []string           `json:"unattributed,omitempty"`
	Total          int                `json:"total"`
	SubmitFailures int                `json:"submit_failures"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
	DurationMs     int64              `json:"duration_ms"`
}

// NewMessage builds the message for res.
func NewMessage(res *coordinator.Result) Message {
	failed := append([]string{}, res.FailedTargets...)
	sort.Strings(failed)
	return Message{
		CommandID:      res.CommandID,
		Name:           res.Name,
		OperationType:  res.OperationType,
		Status:         res.Status,
		FailedTargets:  failed,
		Unattributed:   res.Unattributed,
		Total:          res.Total,
		SubmitFailures: res.SubmitFailures,
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
		DurationMs:     res.Duration().Milliseconds(),
	}
}

// channel is the part of *amqp.Channel the notifier uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Notifier publishes command results.
type Notifier struct {
	config Config
	conn   *amqp.Connection
	ch     channel
	logger *slog.Logger
}

// Dial connects to the broker and declares the exchange.
func Dial(cfg Config, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat: cfg.Heartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,     // name
		cfg.ExchangeType, // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("result notifier connected", "exchange", cfg.Exchange)
	n := newNotifier(ch, cfg, logger)
	n.conn = conn
	return n, nil
}

func newNotifier(ch channel, cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Notifier{config: cfg, ch: ch, logger: logger}
}

// RoutingKey returns the routing key used for op.
func (n *Notifier) RoutingKey(op core.OperationType) string {
	if n.config.RoutingKey == "" {
		return string(op)
	}
	return n.config.RoutingKey + "." + string(op)
}

// Publish sends the message for res, retrying with backoff.
func (n *Notifier) Publish(ctx context.Context, res *coordinator.Result) error {
	if n.ch == nil {
		return ErrClosed
	}
	body, err := json.Marshal(NewMessage(res))
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	key := n.RoutingKey(res.OperationType)
	attempts := 0
	err = retry.Do(ctx, n.config.Retry, func() error {
		attempts++
		return n.ch.PublishWithContext(ctx, n.config.Exchange, key, false, false, amqp.Publishing{
			ContentType:  contentType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    res.CommandID,
			Timestamp:    time.Now(),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to publish result after %d attempts: %w", attempts, err)
	}

	n.logger.Debug("command result published", "command_id", res.CommandID, "routing_key", key, "attempts", attempts)
	return nil
}

// Hook publishes res and logs failures. Register it with
// Coordinator.OnCommandFinished.
func (n *Notifier) Hook(ctx context.Context, res *coordinator.Result) {
	if err := n.Publish(ctx, res); err != nil {
		n.logger.Error("failed to publish command result", "command_id", res.CommandID, "error", err)
	}
}

// Close closes the channel and connection.
func (n *Notifier) Close() error {
	var errs []error
	if n.ch != nil {
		errs = append(errs, n.ch.Close())
		n.ch = nil
	}
	if n.conn != nil {
		errs = append(errs, n.conn.Close())
		n.conn = nil
	}
	return errors.Join(errs...)
}
