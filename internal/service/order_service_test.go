package service

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plateful/internal/apperr"
	"plateful/internal/domain"
	"plateful/internal/store"
)

type stubQR struct{}

func (stubQR) Encode(string) ([]byte, error) { return []byte("png-bytes"), nil }

func newOrderService(st store.Store) *OrderService {
	return NewOrderService(st, nil, nil, stubQR{}, zerolog.Nop())
}

func seedOrder(t *testing.T, st store.Store, o *domain.Order) {
	t.Helper()
	data, err := store.Encode(o)
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), colOrders, o.ID, data))
}

func TestOrderCreate(t *testing.T) {
	st := store.NewMemory()
	svc := newOrderService(st)

	created, err := svc.Create(context.Background(), &domain.Order{
		RestaurantID: "r1",
		CustomerID:   "c1",
		CustomerName: "Ada",
		Items:        []domain.OrderItem{{Name: "Pad Thai", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.StatusUpdatedAt)
	assert.Nil(t, created.CompletedAt)

	stored, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestOrderCreateValidation(t *testing.T) {
	st := store.NewMemory()
	svc := newOrderService(st)

	tests := []struct {
		name  string
		order domain.Order
		field string
	}{
		{"no restaurant", domain.Order{CustomerID: "c1", Items: []domain.OrderItem{{Quantity: 1}}}, "restaurantId"},
		{"no customer", domain.Order{RestaurantID: "r1", Items: []domain.OrderItem{{Quantity: 1}}}, "customerId"},
		{"no items", domain.Order{RestaurantID: "r1", CustomerID: "c1"}, "items"},
		{"zero quantity", domain.Order{RestaurantID: "r1", CustomerID: "c1", Items: []domain.OrderItem{{Quantity: 0}}}, "items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), &tt.order)
			require.Error(t, err)
			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, apperr.CodeValidation, ae.Code)
			assert.Contains(t, ae.Fields, tt.field)
		})
	}
}

func TestOrderUpdateStatusHappyPath(t *testing.T) {
	st := store.NewMemory()
	svc := newOrderService(st)

	seedOrder(t, st, &domain.Order{ID: "o1", RestaurantID: "r1", CustomerID: "c1", Status: domain.StatusPending})

	updated, err := svc.UpdateStatus(context.Background(), "o1", domain.StatusCooking, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCooking, updated.Status)
	assert.False(t, updated.StatusUpdatedAt.IsZero())
	assert.Nil(t, updated.CompletedAt)

	updated, err = svc.UpdateStatus(context.Background(), "o1", domain.StatusReady, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, updated.Status)
	assert.Equal(t, []byte("png-bytes"), updated.PickupQR)

	updated, err = svc.UpdateStatus(context.Background(), "o1", domain.StatusCompleted, "r1")
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	assert.Equal(t, updated.StatusUpdatedAt, *updated.CompletedAt)
}

func TestOrderUpdateStatusIllegalTransitions(t *testing.T) {
	st := store.NewMemory()
	svc := newOrderService(st)

	tests := []struct {
		from domain.OrderStatus
		to   domain.OrderStatus
	}{
		{domain.StatusPending, domain.StatusReady},
		{domain.StatusPending, domain.StatusCompleted},
		{domain.StatusPending, domain.StatusCancelled},
		{domain.StatusCooking, domain.StatusCompleted},
		{domain.StatusCooking, domain.StatusDeclined},
		{domain.StatusReady, domain.StatusCooking},
		{domain.StatusCompleted, domain.StatusCooking},
		{domain.StatusDeclined, domain.StatusReady},
		{domain.StatusCancelled, domain.StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			id := "o-" + string(tt.from) + "-" + string(tt.to)
			seedOrder(t, st, &domain.Order{ID: id, RestaurantID: "r1", CustomerID: "c1", Status: tt.from})

			before, err := st.Get(context.Background(), colOrders, id)
			require.NoError(t, err)

			_, err = svc.UpdateStatus(context.Background(), id, tt.to, "r1")
			require.Error(t, err)
			assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))
			assert.False(t, apperr.IsRetryable(err))

			after, err := st.Get(context.Background(), colOrders, id)
			require.NoError(t, err)
			assert.Equal(t, before.Version, after.Version, "rejected transition must not write")
		})
	}
}

func TestOrderUpdateStatusUnknownStatus(t *testing.T) {
	st := store.NewMemory()
	svc := newOrderService(st)
	seedOrder(t, st, &domain.Order{ID: "o1", RestaurantID: "r1", CustomerID: "c1", Status: domain.StatusPending})

	_, err := svc.UpdateStatus(context.Background(), "o1", domain.OrderStatus("frozen"), "r1")
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))
}

func TestOrderUpdateStatusWrongRestaurant(t *testing.T) {
	st := store.NewMemory()
	svc := newOrderService(st)
	seedOrder(t, st, &domain.Order{ID: "o1", RestaurantID: "r1", CustomerID: "c1", Status: domain.StatusPending})

	_, err := svc.UpdateStatus(context.Background(), "o1", domain.StatusCooking, "r2")
	assert.Equal(t, apperr.CodePermissionDenied, apperr.CodeOf(err))

	doc, err := st.Get(context.Background(), colOrders, "o1")
	require.NoError(t, err)
	assert.Equal(t, "pending", doc.Data["status"])
}

func TestOrderUpdateStatusNotFound(t *testing.T) {
	st := store.NewMemory()
	svc := newOrderService(st)
	_, err := svc.UpdateStatus(context.Background(), "missing", domain.StatusCooking, "r1")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

// racingStore slips a concurrent write between a caller's pre-check read
// and its transaction, deterministically reproducing a lost race.
type racingStore struct {
	store.Store
	once   sync.Once
	mutate func()
}

func (s *racingStore) RunTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	s.once.Do(s.mutate)
	return s.Store.RunTransaction(ctx, fn)
}

func TestOrderUpdateStatusConflict(t *testing.T) {
	mem := store.NewMemory()
	seedOrder(t, mem, &domain.Order{ID: "o1", RestaurantID: "r1", CustomerID: "c1", Status: domain.StatusPending})

	raced := &racingStore{Store: mem, mutate: func() {
		require.NoError(t, mem.Update(context.Background(), colOrders, "o1", map[string]any{"status": "declined"}))
	}}
	svc := newOrderService(raced)

	_, err := svc.UpdateStatus(context.Background(), "o1", domain.StatusCooking, "r1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	assert.True(t, apperr.IsRetryable(err))

	// The losing update must not have clobbered the winner.
	doc, err := mem.Get(context.Background(), colOrders, "o1")
	require.NoError(t, err)
	assert.Equal(t, "declined", doc.Data["status"])
}

func TestOrderListenByRestaurant(t *testing.T) {
	st := store.NewMemory()
	svc := newOrderService(st)

	seedOrder(t, st, &domain.Order{ID: "o1", RestaurantID: "r1", CustomerID: "c1", Status: domain.StatusPending})
	seedOrder(t, st, &domain.Order{ID: "o2", RestaurantID: "r1", CustomerID: "c2", Status: domain.StatusReady})
	seedOrder(t, st, &domain.Order{ID: "other", RestaurantID: "r2", CustomerID: "c3", Status: domain.StatusPending})
	// Garbage documents are dropped, not fatal.
	require.NoError(t, st.Set(context.Background(), colOrders, "junk", map[string]any{"restaurantId": "r1"}))

	var mu sync.Mutex
	var last []domain.Order
	var calls int
	sub, err := svc.ListenByRestaurant(context.Background(), "r1", func(orders []domain.Order, err error) {
		require.NoError(t, err)
		mu.Lock()
		last = orders
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Cancel()

	mu.Lock()
	require.Equal(t, 1, calls)
	require.Len(t, last, 2)
	ids := []string{last[0].ID, last[1].ID}
	assert.ElementsMatch(t, []string{"o1", "o2"}, ids)
	mu.Unlock()

	_, err = svc.UpdateStatus(context.Background(), "o1", domain.StatusCooking, "r1")
	require.NoError(t, err)

	mu.Lock()
	assert.GreaterOrEqual(t, calls, 2)
	for _, o := range last {
		if o.ID == "o1" {
			assert.Equal(t, domain.StatusCooking, o.Status)
		}
	}
	mu.Unlock()
}

func TestOrderListenRequiresRestaurant(t *testing.T) {
	svc := newOrderService(store.NewMemory())
	_, err := svc.ListenByRestaurant(context.Background(), "", func([]domain.Order, error) {})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}
