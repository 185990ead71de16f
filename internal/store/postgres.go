package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// PostgresStore keeps every document in one jsonb table and uses
// LISTEN/NOTIFY for realtime snapshots. Transactions lock the rows they
// read (FOR UPDATE); serialization failures surface as ErrConflict.
type PostgresStore struct {
	db  *sql.DB
	log zerolog.Logger

	pql *pq.Listener

	mu      sync.Mutex
	subs    map[int64]*pgSub
	nextSub int64

	done chan struct{}
}

type pgSub struct {
	collection string
	filters    []Filter
	fn         SnapshotFunc
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		data       JSONB NOT NULL DEFAULT '{}'::jsonb,
		version    BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS documents_data_idx ON documents USING gin (data)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS restaurants_owner_idx
		ON documents ((data->>'ownerId')) WHERE collection = 'restaurants'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_idx
		ON documents ((data->>'email')) WHERE collection = 'users'`,
	`CREATE OR REPLACE FUNCTION notify_document_change() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('document_changes', json_build_object(
			'collection', COALESCE(NEW.collection, OLD.collection),
			'id', COALESCE(NEW.id, OLD.id)
		)::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS documents_notify ON documents`,
	`CREATE TRIGGER documents_notify
		AFTER INSERT OR UPDATE OR DELETE ON documents
		FOR EACH ROW EXECUTE FUNCTION notify_document_change()`,
}

// NewPostgres wires the store over an open database handle. connInfo is the
// same DSN the handle was opened with; it feeds the notification listener.
func NewPostgres(db *sql.DB, connInfo string, log zerolog.Logger) (*PostgresStore, error) {
	if err := ensureSchema(db); err != nil {
		return nil, err
	}

	s := &PostgresStore{
		db:   db,
		log:  log,
		subs: make(map[int64]*pgSub),
		done: make(chan struct{}),
	}

	s.pql = pq.NewListener(connInfo, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("document listener event")
		}
	})
	if err := s.pql.Listen("document_changes"); err != nil {
		return nil, fmt.Errorf("listen document_changes: %w", err)
	}
	go s.dispatch()

	return s, nil
}

func ensureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data, version, updated_at FROM documents
		WHERE collection = $1 AND id = $2`, collection, id)
	return scanDocument(row, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, id string) (*Document, error) {
	var (
		raw       []byte
		version   int64
		updatedAt time.Time
	)
	if err := row.Scan(&raw, &version, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &Document{ID: id, Data: data, Version: version, UpdatedAt: updatedAt}, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryDocuments(ctx context.Context, q queryer, collection string, filters []Filter, forUpdate bool) ([]Document, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT id, data, version, updated_at FROM documents WHERE collection = $1`)
	args = append(args, collection)
	for _, f := range filters {
		probe, err := json.Marshal(map[string]any{f.Field: f.Value})
		if err != nil {
			return nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		args = append(args, string(probe))
		fmt.Fprintf(&sb, ` AND data @> $%d::jsonb`, len(args))
	}
	sb.WriteString(` ORDER BY id`)
	if forUpdate {
		sb.WriteString(` FOR UPDATE`)
	}

	rows, err := q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			id        string
			raw       []byte
			version   int64
			updatedAt time.Time
		)
		if err := rows.Scan(&id, &raw, &version, &updatedAt); err != nil {
			return nil, err
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		docs = append(docs, Document{ID: id, Data: data, Version: version, UpdatedAt: updatedAt})
	}
	return docs, rows.Err()
}

func (s *PostgresStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	return queryDocuments(ctx, s.db, collection, filters, false)
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	resolved := applyFields(nil, data, time.Now())
	raw, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, version = documents.version + 1, updated_at = now()`,
		collection, id, raw)
	return err
}

// Update is a read-modify-write in its own transaction so sentinel ops see
// a locked, current copy of the document.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(tx Tx) error {
		return tx.Update(collection, id, fields)
	})
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	return err
}

func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	tx := &pgTx{ctx: ctx, tx: sqlTx, now: time.Now()}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return translateTxError(err)
	}
	return nil
}

func translateTxError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
	now time.Time
}

func (t *pgTx) Get(collection, id string) (*Document, error) {
	row := t.tx.QueryRowContext(t.ctx, `
		SELECT data, version, updated_at FROM documents
		WHERE collection = $1 AND id = $2 FOR UPDATE`, collection, id)
	doc, err := scanDocument(row, id)
	if err != nil {
		return nil, translateTxError(err)
	}
	return doc, nil
}

func (t *pgTx) Query(collection string, filters ...Filter) ([]Document, error) {
	docs, err := queryDocuments(t.ctx, t.tx, collection, filters, true)
	if err != nil {
		return nil, translateTxError(err)
	}
	return docs, nil
}

func (t *pgTx) Set(collection, id string, data map[string]any) error {
	resolved := applyFields(nil, data, t.now)
	raw, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", id, err)
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, version = documents.version + 1, updated_at = now()`,
		collection, id, raw)
	return translateTxError(err)
}

func (t *pgTx) Update(collection, id string, fields map[string]any) error {
	doc, err := t.Get(collection, id)
	if err != nil {
		return err
	}
	resolved := applyFields(doc.Data, fields, t.now)
	raw, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", id, err)
	}
	_, err = t.tx.ExecContext(t.ctx, `
		UPDATE documents SET data = $3, version = version + 1, updated_at = now()
		WHERE collection = $1 AND id = $2`, collection, id, raw)
	return translateTxError(err)
}

func (t *pgTx) Delete(collection, id string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	return translateTxError(err)
}

// ApplyBatch applies every write in one database transaction without any
// prior reads. Writes are merges, so the batch is safe to reapply.
func (s *PostgresStore) ApplyBatch(ctx context.Context, writes []Write) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	now := time.Now()
	for _, w := range writes {
		if w.Delete {
			if _, err := sqlTx.ExecContext(ctx, `
				DELETE FROM documents WHERE collection = $1 AND id = $2`, w.Collection, w.ID); err != nil {
				return err
			}
			continue
		}
		patch := applyFields(nil, w.Fields, now)
		raw, err := json.Marshal(patch)
		if err != nil {
			return fmt.Errorf("encode batch write %s/%s: %w", w.Collection, w.ID, err)
		}
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data)
			VALUES ($1, $2, $3)
			ON CONFLICT (collection, id) DO UPDATE
			SET data = documents.data || EXCLUDED.data,
			    version = documents.version + 1,
			    updated_at = now()`,
			w.Collection, w.ID, raw); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func (s *PostgresStore) Listen(ctx context.Context, collection string, filters []Filter, fn SnapshotFunc) (*Subscription, error) {
	initial, err := s.Query(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &pgSub{collection: collection, filters: filters, fn: fn}
	s.mu.Unlock()

	fn(Snapshot{Docs: initial, FromCache: true}, nil)

	return NewSubscription(func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}), nil
}

type changePayload struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// dispatch fans NOTIFY payloads out to subscriptions. Listener errors are
// delivered on the snapshot channel and the subscription stays live; the
// pq listener reconnects on its own.
func (s *PostgresStore) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case n := <-s.pql.Notify:
			if n == nil {
				// Connection was re-established; every collection may have
				// changed while we were away.
				s.redeliver("")
				continue
			}
			var payload changePayload
			if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
				s.log.Warn().Err(err).Str("payload", n.Extra).Msg("bad change notification")
				continue
			}
			s.redeliver(payload.Collection)
		case <-time.After(90 * time.Second):
			if err := s.pql.Ping(); err != nil {
				s.log.Warn().Err(err).Msg("document listener ping")
			}
		}
	}
}

func (s *PostgresStore) redeliver(collection string) {
	s.mu.Lock()
	targets := make([]*pgSub, 0, len(s.subs))
	for _, sub := range s.subs {
		if collection == "" || sub.collection == collection {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		docs, err := s.Query(context.Background(), sub.collection, sub.filters...)
		if err != nil {
			sub.fn(Snapshot{}, err)
			continue
		}
		sub.fn(Snapshot{Docs: docs}, nil)
	}
}

func (s *PostgresStore) Close() error {
	close(s.done)
	return s.pql.Close()
}
