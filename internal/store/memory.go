package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a process-local Store with the same transaction and
// listener semantics as the Postgres implementation. It backs tests and
// local runs without a database.
type MemoryStore struct {
	mu           sync.Mutex
	collections  map[string]map[string]*memEntry
	listeners    map[int64]*memListener
	nextListener int64
	closed       bool
}

type memEntry struct {
	data      map[string]any
	version   int64
	updatedAt time.Time
}

type memListener struct {
	collection string
	filters    []Filter
	fn         SnapshotFunc
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*memEntry),
		listeners:   make(map[int64]*memListener),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.getLocked(collection, id)
}

func (s *MemoryStore) getLocked(collection, id string) (*Document, error) {
	e, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Data: cloneMap(e.data), Version: e.version, UpdatedAt: e.updatedAt}, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.queryLocked(collection, filters), nil
}

func (s *MemoryStore) queryLocked(collection string, filters []Filter) []Document {
	var docs []Document
	for id, e := range s.collections[collection] {
		if matches(e.data, filters) {
			docs = append(docs, Document{ID: id, Data: cloneMap(e.data), Version: e.version, UpdatedAt: e.updatedAt})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.setLocked(collection, id, data, time.Now())
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *MemoryStore) setLocked(collection, id string, data map[string]any, now time.Time) {
	col := s.collections[collection]
	if col == nil {
		col = make(map[string]*memEntry)
		s.collections[collection] = col
	}
	version := int64(1)
	if prev, ok := col[id]; ok {
		version = prev.version + 1
	}
	col[id] = &memEntry{data: applyFields(nil, data, now), version: version, updatedAt: now}
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := s.updateLocked(collection, id, fields, time.Now()); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *MemoryStore) updateLocked(collection, id string, fields map[string]any, now time.Time) error {
	e, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	e.data = applyFields(e.data, fields, now)
	e.version++
	e.updatedAt = now
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	delete(s.collections[collection], id)
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

// RunTransaction serializes transactions behind the store lock, which gives
// the same effective guarantee as the database's row locking: a transaction
// always reads the latest committed state.
func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	backup := s.deepCopyLocked()
	tx := &memTx{store: s, now: time.Now(), touched: make(map[string]struct{})}
	err := fn(tx)
	if err != nil {
		s.collections = backup
		s.mu.Unlock()
		return err
	}
	touched := tx.touched
	s.mu.Unlock()
	for collection := range touched {
		s.notify(collection)
	}
	return nil
}

func (s *MemoryStore) deepCopyLocked() map[string]map[string]*memEntry {
	out := make(map[string]map[string]*memEntry, len(s.collections))
	for name, col := range s.collections {
		c := make(map[string]*memEntry, len(col))
		for id, e := range col {
			c[id] = &memEntry{data: cloneMap(e.data), version: e.version, updatedAt: e.updatedAt}
		}
		out[name] = c
	}
	return out
}

type memTx struct {
	store   *MemoryStore
	now     time.Time
	touched map[string]struct{}
}

func (t *memTx) Get(collection, id string) (*Document, error) {
	return t.store.getLocked(collection, id)
}

func (t *memTx) Query(collection string, filters ...Filter) ([]Document, error) {
	return t.store.queryLocked(collection, filters), nil
}

func (t *memTx) Set(collection, id string, data map[string]any) error {
	t.store.setLocked(collection, id, data, t.now)
	t.touched[collection] = struct{}{}
	return nil
}

func (t *memTx) Update(collection, id string, fields map[string]any) error {
	if err := t.store.updateLocked(collection, id, fields, t.now); err != nil {
		return err
	}
	t.touched[collection] = struct{}{}
	return nil
}

func (t *memTx) Delete(collection, id string) error {
	delete(t.store.collections[collection], id)
	t.touched[collection] = struct{}{}
	return nil
}

func (s *MemoryStore) ApplyBatch(ctx context.Context, writes []Write) error {
	now := time.Now()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	touched := make(map[string]struct{})
	for _, w := range writes {
		touched[w.Collection] = struct{}{}
		if w.Delete {
			delete(s.collections[w.Collection], w.ID)
			continue
		}
		col := s.collections[w.Collection]
		if col == nil {
			col = make(map[string]*memEntry)
			s.collections[w.Collection] = col
		}
		e, ok := col[w.ID]
		if !ok {
			e = &memEntry{data: map[string]any{}}
			col[w.ID] = e
		}
		e.data = applyFields(e.data, w.Fields, now)
		e.version++
		e.updatedAt = now
	}
	s.mu.Unlock()
	for collection := range touched {
		s.notify(collection)
	}
	return nil
}

func (s *MemoryStore) Listen(ctx context.Context, collection string, filters []Filter, fn SnapshotFunc) (*Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = &memListener{collection: collection, filters: filters, fn: fn}
	initial := s.queryLocked(collection, filters)
	s.mu.Unlock()

	fn(Snapshot{Docs: initial, FromCache: true}, nil)

	return NewSubscription(func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}), nil
}

// notify re-runs each matching listener's query and delivers the fresh set.
// Runs on the mutating goroutine, outside the store lock.
func (s *MemoryStore) notify(collection string) {
	s.mu.Lock()
	type delivery struct {
		fn   SnapshotFunc
		docs []Document
	}
	var deliveries []delivery
	for _, l := range s.listeners {
		if l.collection != collection {
			continue
		}
		deliveries = append(deliveries, delivery{fn: l.fn, docs: s.queryLocked(collection, l.filters)})
	}
	s.mu.Unlock()
	for _, d := range deliveries {
		d.fn(Snapshot{Docs: d.docs}, nil)
	}
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.listeners = make(map[int64]*memListener)
	s.mu.Unlock()
	return nil
}
