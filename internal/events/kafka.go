// Package events mirrors order lifecycle changes onto Kafka and feeds
// them back into the notification dispatcher.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"plateful/internal/domain"
)

const (
	TypeNewOrder      = "order_created"
	TypeStatusChanged = "order_status_changed"
)

type OrderEvent struct {
	Type         string             `json:"type"`
	OrderID      string             `json:"order_id"`
	RestaurantID string             `json:"restaurant_id"`
	CustomerID   string             `json:"customer_id"`
	Status       domain.OrderStatus `json:"status"`
	PrevStatus   domain.OrderStatus `json:"prev_status,omitempty"`
	At           time.Time          `json:"at"`
}

type KafkaPublisher struct {
	Writer *kafka.Writer
}

func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{Writer: writer}
}

func (p *KafkaPublisher) PublishNewOrder(ctx context.Context, order *domain.Order) error {
	return p.publish(ctx, OrderEvent{
		Type:         TypeNewOrder,
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		CustomerID:   order.CustomerID,
		Status:       order.Status,
		At:           time.Now().UTC(),
	})
}

func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, order *domain.Order, prev domain.OrderStatus) error {
	return p.publish(ctx, OrderEvent{
		Type:         TypeStatusChanged,
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		CustomerID:   order.CustomerID,
		Status:       order.Status,
		PrevStatus:   prev,
		At:           time.Now().UTC(),
	})
}

func (p *KafkaPublisher) publish(ctx context.Context, ev OrderEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: payload,
	})
}
