package service

import (
	"context"

	"plateful/internal/domain"
)

// Collections used by the services. The store is schemaless; these names
// are the only coupling.
const (
	colOrders      = "orders"
	colRestaurants = "restaurants"
	colMenuItems   = "menu_items"
	colUsers       = "users"
	colSettings    = "app_settings"
)

// Notifier delivers best-effort push notifications. Failures never roll
// back the business operation that triggered them.
type Notifier interface {
	NotifyOrderStatusChange(ctx context.Context, customerID string, status domain.OrderStatus, order *domain.Order) error
	NotifyNewOrder(ctx context.Context, restaurantID string, order *domain.Order) error
}

// EventPublisher mirrors order lifecycle changes onto the event bus.
type EventPublisher interface {
	PublishNewOrder(ctx context.Context, order *domain.Order) error
	PublishStatusChanged(ctx context.Context, order *domain.Order, prev domain.OrderStatus) error
}

// QREncoder renders the pickup code stamped on orders that turn ready.
type QREncoder interface {
	Encode(orderID string) ([]byte, error)
}
