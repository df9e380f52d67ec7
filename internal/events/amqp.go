// README: Inbound dispatch trigger consumed from RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"shopd/internal/modules/dispatch"
	"shopd/internal/modules/order"
	"shopd/internal/types"
)

// TriggerMessage asks for a dispatch of one order, or of the whole pending
// set when All is true.
type TriggerMessage struct {
	OrderID string `json:"order_id"`
	All     bool   `json:"all"`
}

var errBadMessage = errors.New("malformed trigger message")

type TriggerConsumer struct {
	conn     *amqp.Connection
	queue    string
	prefetch int
	trigger  *dispatch.Trigger
	log      *slog.Logger
}

func NewTriggerConsumer(conn *amqp.Connection, queue string, trigger *dispatch.Trigger, log *slog.Logger) *TriggerConsumer {
	return &TriggerConsumer{conn: conn, queue: queue, prefetch: 8, trigger: trigger, log: log}
}

// Run consumes until ctx is done or the channel closes.
func (c *TriggerConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", c.queue, err)
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return err
	}
	msgs, err := ch.Consume(c.queue, "shopd-dispatch", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.log.Info("consuming dispatch triggers", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

func (c *TriggerConsumer) deliver(ctx context.Context, d amqp.Delivery) {
	err := c.Handle(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errBadMessage):
		c.log.Warn("dropping malformed trigger", "err", err)
		_ = d.Nack(false, false)
	default:
		c.log.Error("dispatch trigger failed, requeueing", "err", err)
		_ = d.Nack(false, !d.Redelivered)
	}
}

// Handle decodes and runs one trigger. Outcomes that a retry cannot change
// (already assigned, offer in flight, unknown order) count as handled.
func (c *TriggerConsumer) Handle(ctx context.Context, body []byte) error {
	var msg TriggerMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errBadMessage, err)
	}
	if msg.All {
		res, err := c.trigger.All(ctx)
		if err != nil {
			return err
		}
		c.log.Info("triggered pending scan", "orders", res.Orders, "dispatched", res.Dispatched)
		return nil
	}
	if msg.OrderID == "" {
		return fmt.Errorf("%w: order_id missing", errBadMessage)
	}
	err := c.trigger.Order(ctx, types.ID(msg.OrderID))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dispatch.ErrAlreadyAssigned), errors.Is(err, dispatch.ErrOfferInFlight), errors.Is(err, order.ErrNotFound):
		c.log.Info("dispatch trigger skipped", "order_id", msg.OrderID, "reason", err)
		return nil
	default:
		return err
	}
}
