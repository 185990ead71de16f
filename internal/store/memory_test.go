package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGet(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "orders", "o1", map[string]any{"status": "pending", "total": 12}))

	doc, err := s.Get(ctx, "orders", "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", doc.ID)
	assert.Equal(t, "pending", doc.Data["status"])
	// Numbers come back JSON-normalized.
	assert.Equal(t, float64(12), doc.Data["total"])
	assert.Equal(t, int64(1), doc.Version)

	_, err = s.Get(ctx, "orders", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUpdateBumpsVersion(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "orders", "o1", map[string]any{"status": "pending"}))

	require.NoError(t, s.Update(ctx, "orders", "o1", map[string]any{"status": "cooking"}))

	doc, err := s.Get(ctx, "orders", "o1")
	require.NoError(t, err)
	assert.Equal(t, "cooking", doc.Data["status"])
	assert.Equal(t, int64(2), doc.Version)

	assert.ErrorIs(t, s.Update(ctx, "orders", "missing", map[string]any{"x": 1}), ErrNotFound)
}

func TestMemoryQueryFilters(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "orders", "a", map[string]any{"restaurantId": "r1", "status": "pending"}))
	require.NoError(t, s.Set(ctx, "orders", "b", map[string]any{"restaurantId": "r1", "status": "ready"}))
	require.NoError(t, s.Set(ctx, "orders", "c", map[string]any{"restaurantId": "r2", "status": "pending"}))

	docs, err := s.Query(ctx, "orders", Where("restaurantId", "r1"))
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = s.Query(ctx, "orders", Where("restaurantId", "r1"), Where("status", "ready"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].ID)

	docs, err = s.Query(ctx, "orders", Where("status", "archived"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMemorySentinels(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{"name": "Ada", "pushToken": "tok"}))

	require.NoError(t, s.Update(ctx, "users", "u1", map[string]any{
		"pushToken": FieldDelete,
		"updatedAt": ServerTimestamp,
		"favorites": ArrayUnion("r1", "r2", "r1"),
	}))

	doc, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.NotContains(t, doc.Data, "pushToken")
	assert.IsType(t, "", doc.Data["updatedAt"])
	assert.Equal(t, []any{"r1", "r2"}, doc.Data["favorites"])

	require.NoError(t, s.Update(ctx, "users", "u1", map[string]any{"favorites": ArrayUnion("r2", "r3")}))
	doc, _ = s.Get(ctx, "users", "u1")
	assert.Equal(t, []any{"r1", "r2", "r3"}, doc.Data["favorites"])

	require.NoError(t, s.Update(ctx, "users", "u1", map[string]any{"favorites": ArrayRemove("r2")}))
	doc, _ = s.Get(ctx, "users", "u1")
	assert.Equal(t, []any{"r1", "r3"}, doc.Data["favorites"])
}

func TestMemoryTransactionRollsBack(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "orders", "o1", map[string]any{"status": "pending"}))

	boom := errors.New("abort")
	err := s.RunTransaction(ctx, func(tx Tx) error {
		require.NoError(t, tx.Update("orders", "o1", map[string]any{"status": "cooking"}))
		require.NoError(t, tx.Set("orders", "o2", map[string]any{"status": "pending"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	doc, err := s.Get(ctx, "orders", "o1")
	require.NoError(t, err)
	assert.Equal(t, "pending", doc.Data["status"])
	assert.Equal(t, int64(1), doc.Version)

	_, err = s.Get(ctx, "orders", "o2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTransactionCommits(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "orders", "o1", map[string]any{"status": "pending"}))

	err := s.RunTransaction(ctx, func(tx Tx) error {
		doc, err := tx.Get("orders", "o1")
		if err != nil {
			return err
		}
		if doc.Data["status"] != "pending" {
			return errors.New("unexpected status")
		}
		return tx.Update("orders", "o1", map[string]any{"status": "cooking"})
	})
	require.NoError(t, err)

	doc, _ := s.Get(ctx, "orders", "o1")
	assert.Equal(t, "cooking", doc.Data["status"])
}

func TestMemoryApplyBatchMergesAndCreates(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "restaurants", "r1", map[string]any{"status": "draft", "name": "Wok"}))

	err := s.ApplyBatch(ctx, []Write{
		{Collection: "restaurants", ID: "r1", Fields: map[string]any{"status": "active"}},
		{Collection: "users", ID: "u1", Fields: map[string]any{"onboardingCompleted": true}},
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, "restaurants", "r1")
	require.NoError(t, err)
	assert.Equal(t, "active", doc.Data["status"])
	assert.Equal(t, "Wok", doc.Data["name"])

	doc, err = s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, true, doc.Data["onboardingCompleted"])
}

func TestMemoryListen(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "orders", "o1", map[string]any{"restaurantId": "r1"}))

	var mu sync.Mutex
	var snaps []Snapshot
	sub, err := s.Listen(ctx, "orders", []Filter{Where("restaurantId", "r1")}, func(snap Snapshot, err error) {
		require.NoError(t, err)
		mu.Lock()
		snaps = append(snaps, snap)
		mu.Unlock()
	})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].FromCache)
	assert.Len(t, snaps[0].Docs, 1)
	mu.Unlock()

	require.NoError(t, s.Set(ctx, "orders", "o2", map[string]any{"restaurantId": "r1"}))
	// A write for another restaurant still re-delivers the filtered set.
	require.NoError(t, s.Set(ctx, "orders", "o3", map[string]any{"restaurantId": "r2"}))

	mu.Lock()
	require.Len(t, snaps, 3)
	assert.False(t, snaps[1].FromCache)
	assert.Len(t, snaps[1].Docs, 2)
	assert.Len(t, snaps[2].Docs, 2)
	mu.Unlock()

	sub.Cancel()
	require.NoError(t, s.Set(ctx, "orders", "o4", map[string]any{"restaurantId": "r1"}))

	mu.Lock()
	assert.Len(t, snaps, 3)
	mu.Unlock()

	// Cancel is idempotent.
	sub.Cancel()
}

func TestMemoryClose(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Close())

	_, err := s.Get(ctx, "orders", "o1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(ctx, "orders", "o1", nil), ErrClosed)
	_, err = s.Listen(ctx, "orders", nil, func(Snapshot, error) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	type payload struct {
		Name  string   `json:"name"`
		Count int      `json:"count"`
		Tags  []string `json:"tags"`
	}
	in := payload{Name: "x", Count: 3, Tags: []string{"a", "b"}}

	data, err := Encode(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, Decode(data, &out))
	assert.Equal(t, in, out)
}
