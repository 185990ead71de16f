// Package notify turns order events into push notifications. Delivery is
// best-effort everywhere: a missing token or a transport failure never
// fails the business operation that triggered it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"plateful/internal/domain"
	"plateful/internal/store"
)

const (
	colUsers       = "users"
	colRestaurants = "restaurants"
)

// DedupeWindow is how long a repeated (order, status) notification is
// suppressed. Realtime listeners can deliver the same snapshot more than
// once; this keeps that from double-sending.
const DedupeWindow = 5 * time.Second

// PushTransport delivers one notification to one device token.
type PushTransport interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

type message struct {
	Title string
	Body  string
}

var statusMessages = map[domain.OrderStatus]message{
	domain.StatusCooking:   {"Order accepted", "The kitchen started cooking your order"},
	domain.StatusReady:     {"Order ready", "Your order is ready for pickup"},
	domain.StatusCompleted: {"Order completed", "Enjoy your meal!"},
	domain.StatusDeclined:  {"Order declined", "The restaurant could not take your order"},
	domain.StatusCancelled: {"Order cancelled", "Your order was cancelled"},
}

type Dispatcher struct {
	store     store.Store
	transport PushTransport
	markers   MarkerCache
	log       zerolog.Logger
}

func NewDispatcher(st store.Store, transport PushTransport, markers MarkerCache, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: st, transport: transport, markers: markers, log: log}
}

// NotifyOrderStatusChange pushes a status update to the customer. A
// customer without a registered token is a successful no-op.
func (d *Dispatcher) NotifyOrderStatusChange(ctx context.Context, customerID string, status domain.OrderStatus, order *domain.Order) error {
	if order == nil || customerID == "" {
		return nil
	}
	key := fmt.Sprintf("notify:%s:%s", order.ID, status)
	if seen, err := d.markers.Seen(ctx, key); err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("dedupe check failed, sending anyway")
	} else if seen {
		return nil
	}

	token, err := d.pushToken(ctx, customerID)
	if err != nil {
		// Not marked: a redelivery (or the consumer) may still succeed.
		return err
	}
	d.mark(ctx, key)
	if token == "" {
		return nil
	}

	msg, ok := statusMessages[status]
	if !ok {
		msg = message{Title: "Order update", Body: fmt.Sprintf("Order status: %s", status)}
	}
	d.send(ctx, token, msg, map[string]string{"orderId": order.ID, "status": string(status)})
	return nil
}

// NotifyNewOrder alerts the restaurant owner about an incoming order.
func (d *Dispatcher) NotifyNewOrder(ctx context.Context, restaurantID string, order *domain.Order) error {
	if order == nil || restaurantID == "" {
		return nil
	}
	key := fmt.Sprintf("notify:new:%s", order.ID)
	if seen, err := d.markers.Seen(ctx, key); err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("dedupe check failed, sending anyway")
	} else if seen {
		return nil
	}

	doc, err := d.store.Get(ctx, colRestaurants, restaurantID)
	if err != nil {
		return err
	}
	var r domain.Restaurant
	if err := store.Decode(doc.Data, &r); err != nil {
		return err
	}
	token, err := d.pushToken(ctx, r.OwnerID)
	if err != nil {
		return err
	}
	d.mark(ctx, key)
	if token == "" {
		return nil
	}

	msg := message{Title: "New order", Body: fmt.Sprintf("New order from %s", order.CustomerName)}
	d.send(ctx, token, msg, map[string]string{"orderId": order.ID})
	return nil
}

// mark flags a notification as handled. Marking happens only after the
// lookup path succeeded, so a transient failure does not suppress a
// later redelivery for the whole dedupe window.
func (d *Dispatcher) mark(ctx context.Context, key string) {
	if err := d.markers.Mark(ctx, key); err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("dedupe mark failed")
	}
}

func (d *Dispatcher) pushToken(ctx context.Context, userID string) (string, error) {
	doc, err := d.store.Get(ctx, colUsers, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	var u domain.User
	if err := store.Decode(doc.Data, &u); err != nil {
		return "", err
	}
	return u.PushToken, nil
}

func (d *Dispatcher) send(ctx context.Context, token string, msg message, data map[string]string) {
	if err := d.transport.Send(ctx, token, msg.Title, msg.Body, data); err != nil {
		// Transport failures are logged and swallowed on purpose.
		d.log.Warn().Err(err).Msg("push send failed")
	}
}
