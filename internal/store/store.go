// Package store is the document-store boundary: a small keyed-document API
// with equality queries, transactions, unconditional batches, and realtime
// snapshot listeners. Two implementations exist, Postgres-backed and
// in-memory.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("store: document not found")
	ErrConflict = errors.New("store: transaction conflict")
	ErrClosed   = errors.New("store: closed")
)

// Document is a stored record. Data holds JSON-normalized values.
type Document struct {
	ID        string
	Data      map[string]any
	Version   int64
	UpdatedAt time.Time
}

// Filter is an equality predicate on a top-level document field.
type Filter struct {
	Field string
	Value any
}

func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Snapshot is one delivery of a listener's full result set. FromCache marks
// the initial locally-served snapshot; later deliveries are store-confirmed.
type Snapshot struct {
	Docs      []Document
	FromCache bool
}

// SnapshotFunc receives snapshots and listener errors on the same channel.
// A non-nil error does not terminate the subscription.
type SnapshotFunc func(Snapshot, error)

// Subscription is a cancellable handle to a live listener. Callers own it
// and must Cancel it when their scope ends.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Sentinel field operations, resolved at write time.
type ServerTimestampOp struct{}
type FieldDeleteOp struct{}
type ArrayUnionOp struct{ Values []any }
type ArrayRemoveOp struct{ Values []any }

// ServerTimestamp resolves to the store's clock when the write applies.
var ServerTimestamp = ServerTimestampOp{}

// FieldDelete removes the field from the document.
var FieldDelete = FieldDeleteOp{}

func ArrayUnion(values ...any) ArrayUnionOp  { return ArrayUnionOp{Values: values} }
func ArrayRemove(values ...any) ArrayRemoveOp { return ArrayRemoveOp{Values: values} }

// Tx exposes reads and writes inside a transaction. Reads lock the rows
// they touch; conflicting transactions abort with ErrConflict.
type Tx interface {
	Get(collection, id string) (*Document, error)
	Query(collection string, filters ...Filter) ([]Document, error)
	Set(collection, id string, data map[string]any) error
	Update(collection, id string, fields map[string]any) error
	Delete(collection, id string) error
}

// Write is one entry of an unconditional batch. Fields merge into the
// document, creating it when absent; Delete drops it.
type Write struct {
	Collection string
	ID         string
	Fields     map[string]any
	Delete     bool
}

type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Set(ctx context.Context, collection, id string, data map[string]any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	ApplyBatch(ctx context.Context, writes []Write) error
	Listen(ctx context.Context, collection string, filters []Filter, fn SnapshotFunc) (*Subscription, error)
	Close() error
}

// Encode marshals a domain value into a JSON-normalized data map.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	return out, nil
}

// Decode unmarshals a document data map into a domain value.
func Decode(data map[string]any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("store: decode: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("store: decode: %w", err)
	}
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out, err := Encode(m)
	if err != nil {
		// A data map that came through Encode always re-encodes.
		panic(err)
	}
	return out
}

// normalize runs a value through JSON so sentinel resolution and filter
// matching see the same shapes both implementations store.
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func jsonEqual(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok || !jsonEqual(v, f.Value) {
			return false
		}
	}
	return true
}

// applyFields merges an update into base, resolving sentinel ops. The input
// maps are not mutated.
func applyFields(base, fields map[string]any, now time.Time) map[string]any {
	out := cloneMap(base)
	for key, value := range fields {
		switch op := value.(type) {
		case ServerTimestampOp:
			out[key] = now.UTC().Format(time.RFC3339Nano)
		case FieldDeleteOp:
			delete(out, key)
		case ArrayUnionOp:
			out[key] = arrayUnion(out[key], op.Values)
		case ArrayRemoveOp:
			out[key] = arrayRemove(out[key], op.Values)
		default:
			out[key] = normalize(value)
		}
	}
	return out
}

func arrayUnion(existing any, values []any) []any {
	arr, _ := existing.([]any)
	for _, v := range values {
		nv := normalize(v)
		found := false
		for _, e := range arr {
			if jsonEqual(e, nv) {
				found = true
				break
			}
		}
		if !found {
			arr = append(arr, nv)
		}
	}
	if arr == nil {
		arr = []any{}
	}
	return arr
}

func arrayRemove(existing any, values []any) []any {
	arr, _ := existing.([]any)
	out := make([]any, 0, len(arr))
	for _, e := range arr {
		drop := false
		for _, v := range values {
			if jsonEqual(e, v) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, e)
		}
	}
	return out
}
