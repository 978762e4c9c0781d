package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the minimal publish surface stage handlers depend on. Tests
// substitute an in-memory implementation.
type Publisher interface {
	Publish(ctx context.Context, queue string, env *Envelope) error
}

// Publish serializes the envelope and publishes it persistently to the
// default exchange, routed by queue name. The channel is closed after the
// broker write; there is no publisher-confirm wait.
func (b *Broker) Publish(ctx context.Context, queue string, env *Envelope) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", queue, err)
	}

	b.logger.Info("message published",
		slog.String("queue", queue),
		slog.String("job_id", env.JobID),
		slog.String("step", env.Step),
	)
	return nil
}

// Handler processes one decoded envelope. A nil return acknowledges the
// delivery; any error parks it in the DLQ. Redelivery is an operator
// decision, never automatic: media work is expensive and a poison message
// would otherwise burn CPU indefinitely.
type Handler func(ctx context.Context, env *Envelope) error

// Consume subscribes to queue with prefetch 1 and dispatches deliveries to
// the handler until the context is canceled or the channel closes.
func (b *Broker) Consume(ctx context.Context, queue string, handler Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	// Exactly one unacknowledged delivery per worker.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("setting prefetch: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("starting consumer on %s: %w", queue, err)
	}

	b.logger.Info("consuming", slog.String("queue", queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queue)
			}
			b.dispatch(ctx, queue, d, handler)
		}
	}
}

// dispatch applies the ack/nack policy for a single delivery.
func (b *Broker) dispatch(ctx context.Context, queue string, d amqp.Delivery, handler Handler) {
	env, err := ParseEnvelope(d.Body)
	if err != nil {
		b.logger.Error("malformed message, parking in DLQ",
			slog.String("queue", queue),
			slog.String("error", err.Error()),
		)
		b.nack(d)
		return
	}

	if err := handler(ctx, env); err != nil {
		b.logger.Error("handler failed, parking in DLQ",
			slog.String("queue", queue),
			slog.String("job_id", env.JobID),
			slog.String("error", err.Error()),
		)
		b.nack(d)
		return
	}

	if err := d.Ack(false); err != nil {
		b.logger.Error("ack failed",
			slog.String("queue", queue),
			slog.String("job_id", env.JobID),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Broker) nack(d amqp.Delivery) {
	if err := d.Nack(false, false); err != nil {
		b.logger.Error("nack failed", slog.String("error", err.Error()))
	}
}
