package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/openride/bus-seat-reservation/internal/repository"
)

// PaymentHandler applies a confirmed payment to its booking.
type PaymentHandler interface {
	ProcessPayment(ctx context.Context, bookingID uint64) error
}

// PaymentConsumer listens on the payment.confirmed queue and applies each
// payment to its booking.  It runs a reconnect loop with exponential
// backoff so a broker restart never takes the service down with it.
type PaymentConsumer struct {
	url     string
	handler PaymentHandler
	log     *logrus.Logger
}

// NewPaymentConsumer builds a consumer for the given broker URL.
func NewPaymentConsumer(url string, handler PaymentHandler, log *logrus.Logger) *PaymentConsumer {
	return &PaymentConsumer{url: url, handler: handler, log: log}
}

// Run consumes until ctx is cancelled.  Connection failures are retried
// with backoff; a failed message is rejected without requeue so a poison
// payload cannot loop forever, the gateway retries its callback instead.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).Warnf("payment-consumer: dial failed, retrying in %s", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := c.consumeLoop(ctx, conn); err != nil {
			if errors.Is(err, context.Canceled) {
				_ = conn.Close()
				return err
			}
			c.log.WithError(err).Warn("payment-consumer: consume loop ended, reconnecting")
		}
		_ = conn.Close()
	}
}

func (c *PaymentConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("payment-consumer: set QoS failed")
	}

	if _, err := ch.QueueDeclare(PaymentConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(PaymentConfirmedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.log.WithError(err).Warn("payment-consumer: handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *PaymentConsumer) handle(ctx context.Context, body []byte) error {
	var ev PaymentConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.BookingID == 0 {
		return errors.New("payment event missing booking_id")
	}
	if err := c.handler.ProcessPayment(ctx, ev.BookingID); err != nil {
		// An unknown booking is a permanent failure; drop it rather than
		// let the gateway's retries pile up warnings.
		if errors.Is(err, repository.ErrBookingNotFound) {
			c.log.WithField("booking_id", ev.BookingID).Warn("payment-consumer: booking not found, dropping")
			return nil
		}
		return fmt.Errorf("process payment for booking %d: %w", ev.BookingID, err)
	}
	c.log.WithFields(logrus.Fields{"booking_id": ev.BookingID, "reference": ev.Reference}).Info("payment applied")
	return nil
}
