package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"plateful/internal/apperr"
	"plateful/internal/domain"
	"plateful/internal/store"
	"plateful/internal/validation"
)

// OrderService owns the order lifecycle: creation, the status state
// machine, and the restaurant-side live feed. Orders are never deleted;
// terminal statuses are retained.
type OrderService struct {
	store    store.Store
	notifier Notifier
	events   EventPublisher
	qr       QREncoder
	log      zerolog.Logger
}

func NewOrderService(st store.Store, notifier Notifier, events EventPublisher, qr QREncoder, log zerolog.Logger) *OrderService {
	return &OrderService{store: st, notifier: notifier, events: events, qr: qr, log: log}
}

func (s *OrderService) Get(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, apperr.Validation(map[string]string{"id": "order id is required"})
	}
	doc, err := s.store.Get(ctx, colOrders, id)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	var o domain.Order
	if err := store.Decode(doc.Data, &o); err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknown, "corrupt order record", err)
	}
	return &o, nil
}

// Create inserts a new pending order and alerts the restaurant. The
// notification and event publication are fire-and-forget.
func (s *OrderService) Create(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	errs := validation.Errors{}
	if o.RestaurantID == "" {
		errs["restaurantId"] = "restaurant is required"
	}
	if o.CustomerID == "" {
		errs["customerId"] = "customer is required"
	}
	if len(o.Items) == 0 {
		errs["items"] = "order needs at least one item"
	}
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			errs["items"] = "item quantities must be positive"
			break
		}
	}
	if errs.Any() {
		return nil, apperr.Validation(errs)
	}

	now := time.Now().UTC()
	o.ID = uuid.NewString()
	o.Status = domain.StatusPending
	o.CreatedAt = now
	o.StatusUpdatedAt = now
	o.CompletedAt = nil

	data, err := store.Encode(o)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknown, "could not encode order", err)
	}
	if err := s.store.Set(ctx, colOrders, o.ID, data); err != nil {
		return nil, apperr.Classify(err)
	}

	s.fireAndForget(func(ctx context.Context) {
		if s.events != nil {
			if err := s.events.PublishNewOrder(ctx, o); err != nil {
				s.log.Warn().Err(err).Str("order_id", o.ID).Msg("publish new order event")
			}
		}
		if s.notifier != nil {
			if err := s.notifier.NotifyNewOrder(ctx, o.RestaurantID, o); err != nil {
				s.log.Warn().Err(err).Str("order_id", o.ID).Msg("notify new order")
			}
		}
	})

	return o, nil
}

// UpdateStatus moves an order along the state machine. The transition is
// validated against the currently stored status before any write, then
// re-verified inside a transaction so a racing writer surfaces as a
// retryable conflict instead of a lost update.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus, restaurantID string) (*domain.Order, error) {
	if orderID == "" || restaurantID == "" {
		return nil, apperr.Validation(map[string]string{"id": "order id and restaurant id are required"})
	}

	current, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if msg := validation.ValidateStatusTransition(current.Status, next); msg != "" {
		return nil, apperr.New(apperr.CodeInvalidTransition, msg)
	}

	var updated domain.Order
	err = s.store.RunTransaction(ctx, func(tx store.Tx) error {
		doc, err := tx.Get(colOrders, orderID)
		if err != nil {
			return err
		}
		var o domain.Order
		if err := store.Decode(doc.Data, &o); err != nil {
			return apperr.Wrap(apperr.CodeUnknown, "corrupt order record", err)
		}
		if o.RestaurantID != restaurantID {
			return apperr.New(apperr.CodePermissionDenied, "order belongs to another restaurant")
		}
		if o.Status != current.Status {
			return apperr.New(apperr.CodeConflict, "order status changed underneath this update")
		}

		now := time.Now().UTC()
		fields := map[string]any{
			"status":          string(next),
			"statusUpdatedAt": now,
		}
		o.Status = next
		o.StatusUpdatedAt = now
		if next == domain.StatusCompleted {
			fields["completedAt"] = now
			o.CompletedAt = &now
		}
		if next == domain.StatusReady && s.qr != nil {
			if png, err := s.qr.Encode(o.ID); err == nil {
				fields["pickupQr"] = png
				o.PickupQR = png
			} else {
				s.log.Warn().Err(err).Str("order_id", o.ID).Msg("pickup qr")
			}
		}

		if err := tx.Update(colOrders, orderID, fields); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, apperr.Classify(err)
	}

	prev := current.Status
	s.fireAndForget(func(ctx context.Context) {
		if s.events != nil {
			if err := s.events.PublishStatusChanged(ctx, &updated, prev); err != nil {
				s.log.Warn().Err(err).Str("order_id", updated.ID).Msg("publish status event")
			}
		}
		if s.notifier != nil {
			if err := s.notifier.NotifyOrderStatusChange(ctx, updated.CustomerID, updated.Status, &updated); err != nil {
				s.log.Warn().Err(err).Str("order_id", updated.ID).Msg("notify status change")
			}
		}
	})

	return &updated, nil
}

// ListenByRestaurant streams the restaurant's full order set, newest
// first. Malformed documents are logged and dropped rather than crashing
// the subscriber; listener errors arrive on the same callback and leave
// the subscription live.
func (s *OrderService) ListenByRestaurant(ctx context.Context, restaurantID string, fn func([]domain.Order, error)) (*store.Subscription, error) {
	if restaurantID == "" {
		return nil, apperr.Validation(map[string]string{"restaurantId": "restaurant id is required"})
	}

	sub, err := s.store.Listen(ctx, colOrders, []store.Filter{store.Where("restaurantId", restaurantID)}, func(snap store.Snapshot, err error) {
		if err != nil {
			fn(nil, listenerError(err))
			return
		}
		orders := make([]domain.Order, 0, len(snap.Docs))
		for _, doc := range snap.Docs {
			var o domain.Order
			if err := store.Decode(doc.Data, &o); err != nil || o.ID == "" || o.RestaurantID == "" {
				s.log.Warn().Str("doc_id", doc.ID).Msg("dropping malformed order document")
				continue
			}
			orders = append(orders, o)
		}
		sort.Slice(orders, func(i, j int) bool {
			if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
				return orders[i].CreatedAt.After(orders[j].CreatedAt)
			}
			return orders[i].ID < orders[j].ID
		})
		if snap.FromCache {
			s.log.Debug().Str("restaurant_id", restaurantID).Int("orders", len(orders)).Msg("cache snapshot")
		}
		fn(orders, nil)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeSetup, "could not attach order listener", err)
	}
	return sub, nil
}

// listenerError keeps permission failures distinguishable from transient
// listener trouble.
func listenerError(err error) *apperr.Error {
	classified := apperr.Classify(err)
	if classified.Code == apperr.CodePermissionDenied {
		return classified
	}
	return apperr.Wrap(apperr.CodeListener, "", err)
}

func (s *OrderService) fireAndForget(f func(context.Context)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		f(ctx)
	}()
}
