package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"plateful/internal/domain"
)

// OrderNotifier is the slice of the dispatcher the consumer needs.
type OrderNotifier interface {
	NotifyOrderStatusChange(ctx context.Context, customerID string, status domain.OrderStatus, order *domain.Order) error
	NotifyNewOrder(ctx context.Context, restaurantID string, order *domain.Order) error
}

// Consumer replays order events into push notifications. Running it on a
// separate consumer group lets a second process handle notification load;
// the dispatcher's dedupe window absorbs the overlap with the in-process
// fire-and-forget path.
type Consumer struct {
	Reader   *kafka.Reader
	Notifier OrderNotifier
	Log      zerolog.Logger
}

func NewConsumer(reader *kafka.Reader, notifier OrderNotifier, log zerolog.Logger) *Consumer {
	return &Consumer{Reader: reader, Notifier: notifier, Log: log}
}

func (c *Consumer) Start(ctx context.Context) {
	c.Log.Info().Msg("order event consumer started")
	for {
		message, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.Log.Warn().Err(err).Msg("read order event")
			continue
		}

		var ev OrderEvent
		if err := json.Unmarshal(message.Value, &ev); err != nil {
			c.Log.Warn().Err(err).Msg("unmarshal order event")
			continue
		}
		c.process(ctx, ev)
	}
}

func (c *Consumer) process(ctx context.Context, ev OrderEvent) {
	order := &domain.Order{
		ID:           ev.OrderID,
		RestaurantID: ev.RestaurantID,
		CustomerID:   ev.CustomerID,
		Status:       ev.Status,
	}
	switch ev.Type {
	case TypeNewOrder:
		if err := c.Notifier.NotifyNewOrder(ctx, ev.RestaurantID, order); err != nil {
			c.Log.Warn().Err(err).Str("order_id", ev.OrderID).Msg("notify new order")
		}
	case TypeStatusChanged:
		if err := c.Notifier.NotifyOrderStatusChange(ctx, ev.CustomerID, ev.Status, order); err != nil {
			c.Log.Warn().Err(err).Str("order_id", ev.OrderID).Msg("notify status change")
		}
	default:
		c.Log.Debug().Str("type", ev.Type).Msg("ignoring unknown event type")
	}
}
