// Package broker provides the RabbitMQ topology and the publish/consume
// primitives used by the stage workers.
package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/clipforge/clipforge/internal/config"
)

// Queue names. These are part of the external contract; mismatched
// declarations against a live broker are fatal.
const (
	CollectQueue    = "collect_queue"
	TranscribeQueue = "transcribe_queue"
	AnalyseQueue    = "analyse_queue"
	EditQueue       = "edit_queue"
	CompletedQueue  = "completed_queue"
	DeadLetterQueue = "dead_letter_queue"

	DeadLetterExchange = "dlx"
)

// ErrConnectExhausted indicates the broker was unreachable after all
// connection attempts.
var ErrConnectExhausted = errors.New("broker connection attempts exhausted")

// Broker wraps an AMQP connection with the pipeline's declaration and
// messaging conventions.
type Broker struct {
	conn   *amqp.Connection
	cfg    config.BrokerConfig
	logger *slog.Logger
}

// Connect dials RabbitMQ, retrying with a fixed delay. With the default
// configuration that is 10 attempts 5 seconds apart.
func Connect(cfg config.BrokerConfig, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 10
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		conn, err := amqp.Dial(cfg.URL)
		if err == nil {
			logger.Info("connected to broker", slog.Int("attempt", attempt))
			return &Broker{conn: conn, cfg: cfg, logger: logger}, nil
		}
		lastErr = err
		logger.Warn("broker connection failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retries),
			slog.String("error", err.Error()),
		)
		if attempt < retries {
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrConnectExhausted, lastErr)
}

// Close shuts down the underlying connection.
func (b *Broker) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

// PrimaryQueues lists the queues that route rejections to the DLX, in
// pipeline order.
func PrimaryQueues() []string {
	return []string{CollectQueue, TranscribeQueue, AnalyseQueue, EditQueue}
}

// DeadLetterArgs returns the declaration arguments that bind a primary queue
// to the dead-letter exchange.
func DeadLetterArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": "",
	}
}

// DeclareInfrastructure declares the exchange, queues and bindings the
// pipeline needs. It is idempotent: redeclaring with identical parameters on
// a live broker is a no-op.
func (b *Broker) DeclareInfrastructure() error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(DeadLetterQueue, "", DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("binding dead-letter queue: %w", err)
	}

	dlqArgs := DeadLetterArgs()
	for _, q := range PrimaryQueues() {
		if _, err := ch.QueueDeclare(q, true, false, false, false, dlqArgs); err != nil {
			return fmt.Errorf("declaring queue %s: %w", q, err)
		}
	}

	// Terminal and purely informational: no DLX binding.
	if _, err := ch.QueueDeclare(CompletedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %s: %w", CompletedQueue, err)
	}

	b.logger.Info("broker topology declared",
		slog.Int("primary_queues", len(PrimaryQueues())+1),
		slog.String("dead_letter_exchange", DeadLetterExchange),
	)
	return nil
}
