package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

const (
	notifyChannel        = "document_changes"
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// PostgresStore keeps every document as one JSONB row of the documents
// table. A trigger publishes the collection name of each changed row on
// the document_changes channel; subscriptions re-run their query when a
// notification for their collection arrives.
type PostgresStore struct {
	db       *sql.DB
	listener *pq.Listener

	mu   sync.Mutex
	subs map[*pgSub]struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

type pgSub struct {
	store *PostgresStore
	query Query
	fn    func(Snapshot)

	mu     sync.Mutex
	closed atomic.Bool
}

// OpenPostgres connects, applies the schema and starts listening for
// change notifications.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	listener := pq.NewListener(dsn, listenerMinReconnect, listenerMaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.WithError(err).WithField("event", ev).Warn("store: listener")
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		db.Close()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	return NewPostgresStore(db, listener), nil
}

// NewPostgresStore wraps an open database. With a nil listener, changes
// made through this store are fanned out locally instead.
func NewPostgresStore(db *sql.DB, listener *pq.Listener) *PostgresStore {
	s := &PostgresStore{
		db:       db,
		listener: listener,
		subs:     make(map[*pgSub]struct{}),
		done:     make(chan struct{}),
	}
	if listener != nil {
		s.wg.Add(1)
		go s.listen()
	}
	return s
}

func (s *PostgresStore) listen() {
	defer s.wg.Done()

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnected; notifications may have been lost meanwhile.
				s.fanout("")
				continue
			}
			s.fanout(n.Extra)
		case <-ticker.C:
			if err := s.listener.Ping(); err != nil {
				log.WithError(err).Warn("store: listener ping")
			}
		}
	}
}

// fanout redelivers to subscribers of collection, or to all when empty.
func (s *PostgresStore) fanout(collection string) {
	s.mu.Lock()
	var targets []*pgSub
	for sub := range s.subs {
		if collection == "" || sub.query.Collection == collection {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.deliver()
	}
}

func (s *PostgresStore) changed(collection string) {
	if s.listener == nil {
		s.fanout(collection)
	}
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	query := `
		SELECT data, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
	`
	doc := Document{ID: id}
	var raw []byte
	err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&raw, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return Document{}, err
	}
	if doc.Data, err = decodeData(raw); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *PostgresStore) Create(ctx context.Context, collection string, fields map[string]any) (Document, error) {
	raw, err := json.Marshal(cloneData(fields))
	if err != nil {
		return Document{}, fmt.Errorf("encode document: %w", err)
	}

	query := `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`
	doc := Document{ID: uuid.NewString(), Data: cloneData(fields)}
	err = s.db.QueryRowContext(ctx, query, collection, doc.ID, raw).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	s.changed(collection)
	return doc, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := json.Marshal(cloneData(fields))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	query := `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, collection, id, raw); err != nil {
		return err
	}
	s.changed(collection)
	return nil
}

func (s *PostgresStore) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	top := make(map[string]any)
	var nested []string
	for k, v := range fields {
		if strings.Contains(k, ".") {
			nested = append(nested, k)
			continue
		}
		top[k] = cloneValue(v)
	}
	sort.Strings(nested)

	patch, err := json.Marshal(top)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	args := []any{collection, id, patch}
	expr := "data || $3::jsonb"
	for _, path := range nested {
		value, err := json.Marshal(cloneValue(fields[path]))
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		args = append(args, pq.Array(splitPath(path)), value)
		expr = fmt.Sprintf("jsonb_set(%s, $%d::text[], $%d::jsonb, true)", expr, len(args)-1, len(args))
	}

	query := fmt.Sprintf(`UPDATE documents SET data = %s, updated_at = NOW() WHERE collection = $1 AND id = $2`, expr)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if err := requireRow(result, collection, id); err != nil {
		return err
	}
	s.changed(collection)
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	query := `DELETE FROM documents WHERE collection = $1 AND id = $2`
	if _, err := s.db.ExecContext(ctx, query, collection, id); err != nil {
		return err
	}
	s.changed(collection)
	return nil
}

func (s *PostgresStore) Increment(ctx context.Context, collection, id, path string, delta int) error {
	query := `
		UPDATE documents
		SET data = jsonb_set(data, $3::text[], to_jsonb(GREATEST(COALESCE((data #>> $3::text[])::numeric, 0) + $4, 0)), true),
			updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`
	result, err := s.db.ExecContext(ctx, query, collection, id, pq.Array(splitPath(path)), delta)
	if err != nil {
		return err
	}
	if err := requireRow(result, collection, id); err != nil {
		return err
	}
	s.changed(collection)
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Document, error) {
	var b strings.Builder
	args := []any{q.Collection}
	b.WriteString(`SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1`)
	for _, f := range q.Filters {
		if f.Field == FieldDocumentID {
			args = append(args, f.Value)
			fmt.Fprintf(&b, ` AND id = $%d`, len(args))
			continue
		}
		args = append(args, f.Field, f.Value)
		fmt.Fprintf(&b, ` AND data->>$%d = $%d`, len(args)-1, len(args))
	}
	switch q.OrderBy {
	case FieldCreatedAt, FieldUpdatedAt:
		col := "created_at"
		if q.OrderBy == FieldUpdatedAt {
			col = "updated_at"
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, ` ORDER BY %s %s, id %s`, col, dir, dir)
	default:
		b.WriteString(` ORDER BY id ASC`)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var raw []byte
		if err := rows.Scan(&d.ID, &raw, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if d.Data, err = decodeData(raw); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (Subscription, error) {
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}

	sub := &pgSub{store: s, query: q, fn: fn}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	sub.deliver()

	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				sub.Close()
			case <-s.done:
			}
		}()
	}
	return sub, nil
}

func (sub *pgSub) deliver() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed.Load() {
		return
	}
	docs, err := sub.store.Query(context.Background(), sub.query)
	if err != nil {
		sub.fn(Snapshot{Err: err})
		return
	}
	sub.fn(Snapshot{Documents: docs})
}

func (sub *pgSub) Close() {
	sub.store.mu.Lock()
	delete(sub.store.subs, sub)
	sub.store.mu.Unlock()
	sub.closed.Store(true)
}

func (s *PostgresStore) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	return s.db.Close()
}

func requireRow(result sql.Result, collection, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func decodeData(raw []byte) (map[string]any, error) {
	data := make(map[string]any)
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return data, nil
}
