package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plateful/internal/domain"
	"plateful/internal/store"
)

type recordingTransport struct {
	mu    sync.Mutex
	sends []sentPush
	err   error
}

type sentPush struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

func (t *recordingTransport) Send(_ context.Context, token, title, body string, data map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends = append(t.sends, sentPush{Token: token, Title: title, Body: body, Data: data})
	return t.err
}

func (t *recordingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sends)
}

func newDispatcherFixture(t *testing.T) (*Dispatcher, *recordingTransport, store.Store) {
	t.Helper()
	st := store.NewMemory()
	transport := &recordingTransport{}
	d := NewDispatcher(st, transport, NewMemoryMarkerCache(DedupeWindow), zerolog.Nop())
	return d, transport, st
}

func putUser(t *testing.T, st store.Store, u *domain.User) {
	t.Helper()
	data, err := store.Encode(u)
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), colUsers, u.ID, data))
}

func TestNotifyOrderStatusChange(t *testing.T) {
	d, transport, st := newDispatcherFixture(t)
	putUser(t, st, &domain.User{ID: "c1", Email: "c@example.com", PushToken: "tok-1"})

	order := &domain.Order{ID: "o1", CustomerID: "c1"}
	require.NoError(t, d.NotifyOrderStatusChange(context.Background(), "c1", domain.StatusReady, order))

	require.Equal(t, 1, transport.count())
	sent := transport.sends[0]
	assert.Equal(t, "tok-1", sent.Token)
	assert.Equal(t, "Order ready", sent.Title)
	assert.Equal(t, "o1", sent.Data["orderId"])
	assert.Equal(t, "ready", sent.Data["status"])
}

func TestNotifyDedupesWithinWindow(t *testing.T) {
	d, transport, st := newDispatcherFixture(t)
	putUser(t, st, &domain.User{ID: "c1", Email: "c@example.com", PushToken: "tok-1"})

	order := &domain.Order{ID: "o1", CustomerID: "c1"}
	require.NoError(t, d.NotifyOrderStatusChange(context.Background(), "c1", domain.StatusReady, order))
	require.NoError(t, d.NotifyOrderStatusChange(context.Background(), "c1", domain.StatusReady, order))
	require.NoError(t, d.NotifyOrderStatusChange(context.Background(), "c1", domain.StatusReady, order))

	assert.Equal(t, 1, transport.count())

	// A different status for the same order is a new notification.
	require.NoError(t, d.NotifyOrderStatusChange(context.Background(), "c1", domain.StatusCompleted, order))
	assert.Equal(t, 2, transport.count())
}

func TestNotifyDedupeExpires(t *testing.T) {
	st := store.NewMemory()
	transport := &recordingTransport{}
	d := NewDispatcher(st, transport, NewMemoryMarkerCache(10*time.Millisecond), zerolog.Nop())
	putUser(t, st, &domain.User{ID: "c1", Email: "c@example.com", PushToken: "tok-1"})

	order := &domain.Order{ID: "o1", CustomerID: "c1"}
	require.NoError(t, d.NotifyOrderStatusChange(context.Background(), "c1", domain.StatusReady, order))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, d.NotifyOrderStatusChange(context.Background(), "c1", domain.StatusReady, order))

	assert.Equal(t, 2, transport.count())
}

func TestNotifyMissingTokenIsSuccess(t *testing.T) {
	d, transport, st := newDispatcherFixture(t)
	putUser(t, st, &domain.User{ID: "c1", Email: "c@example.com"})

	order := &domain.Order{ID: "o1", CustomerID: "c1"}
	require.NoError(t, d.NotifyOrderStatusChange(context.Background(), "c1", domain.StatusReady, order))
	assert.Zero(t, transport.count())
}

func TestNotifyMissingUserIsSuccess(t *testing.T) {
	d, transport, _ := newDispatcherFixture(t)

	order := &domain.Order{ID: "o1", CustomerID: "ghost"}
	require.NoError(t, d.NotifyOrderStatusChange(context.Background(), "ghost", domain.StatusReady, order))
	assert.Zero(t, transport.count())
}

func TestNotifyUnknownStatusFallback(t *testing.T) {
	d, transport, st := newDispatcherFixture(t)
	putUser(t, st, &domain.User{ID: "c1", Email: "c@example.com", PushToken: "tok-1"})

	order := &domain.Order{ID: "o1", CustomerID: "c1"}
	require.NoError(t, d.NotifyOrderStatusChange(context.Background(), "c1", domain.OrderStatus("frozen"), order))

	require.Equal(t, 1, transport.count())
	assert.Equal(t, "Order update", transport.sends[0].Title)
	assert.Contains(t, transport.sends[0].Body, "frozen")
}

func TestNotifyTransportFailureIsSwallowed(t *testing.T) {
	d, transport, st := newDispatcherFixture(t)
	transport.err = errors.New("push endpoint returned 502")
	putUser(t, st, &domain.User{ID: "c1", Email: "c@example.com", PushToken: "tok-1"})

	order := &domain.Order{ID: "o1", CustomerID: "c1"}
	assert.NoError(t, d.NotifyOrderStatusChange(context.Background(), "c1", domain.StatusReady, order))
	assert.Equal(t, 1, transport.count())
}

func TestNotifyNewOrder(t *testing.T) {
	d, transport, st := newDispatcherFixture(t)
	putUser(t, st, &domain.User{ID: "owner1", Email: "o@example.com", PushToken: "owner-tok"})

	restData, err := store.Encode(&domain.Restaurant{ID: "r1", OwnerID: "owner1", Name: "Wok"})
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), colRestaurants, "r1", restData))

	order := &domain.Order{ID: "o1", RestaurantID: "r1", CustomerName: "Ada"}
	require.NoError(t, d.NotifyNewOrder(context.Background(), "r1", order))

	require.Equal(t, 1, transport.count())
	sent := transport.sends[0]
	assert.Equal(t, "owner-tok", sent.Token)
	assert.Equal(t, "New order", sent.Title)
	assert.Contains(t, sent.Body, "Ada")

	// The same order only alerts once.
	require.NoError(t, d.NotifyNewOrder(context.Background(), "r1", order))
	assert.Equal(t, 1, transport.count())
}

func TestNotifyNewOrderRetriesAfterLookupFailure(t *testing.T) {
	d, transport, st := newDispatcherFixture(t)
	order := &domain.Order{ID: "o1", RestaurantID: "r1", CustomerName: "Ada"}

	// The restaurant document isn't there yet: delivery fails and must
	// not burn the dedupe marker for the rest of the window.
	require.Error(t, d.NotifyNewOrder(context.Background(), "r1", order))
	assert.Zero(t, transport.count())

	putUser(t, st, &domain.User{ID: "owner1", Email: "o@example.com", PushToken: "owner-tok"})
	restData, err := store.Encode(&domain.Restaurant{ID: "r1", OwnerID: "owner1", Name: "Wok"})
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), colRestaurants, "r1", restData))

	require.NoError(t, d.NotifyNewOrder(context.Background(), "r1", order))
	assert.Equal(t, 1, transport.count())
}

func TestMarkerCacheContract(t *testing.T) {
	c := NewMemoryMarkerCache(time.Minute)
	ctx := context.Background()

	seen, err := c.Seen(ctx, "k")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, c.Mark(ctx, "k"))
	seen, err = c.Seen(ctx, "k")
	require.NoError(t, err)
	assert.True(t, seen)
}
