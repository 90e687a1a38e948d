package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher pushes domain events to RabbitMQ.  It dials per publish, so a
// broker outage costs one failed call instead of a poisoned shared
// connection; event volume here is a handful per booking, not a firehose.
// Messages are persistent and queues durable.
type Publisher struct {
	url string
	log *logrus.Logger
}

// NewPublisher builds a publisher for the given broker URL.
func NewPublisher(url string, log *logrus.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

// Publish marshals payload as JSON and sends it to the named queue,
// declaring the queue idempotently first.  Errors are returned so callers
// can decide whether the event matters enough to surface.
func (p *Publisher) Publish(ctx context.Context, queueName string, payload any) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", queueName, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	p.log.WithField("queue", queueName).Debug("event published")
	return nil
}
