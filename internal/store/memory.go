package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Op names a write primitive for fault injection.
type Op string

const (
	OpCreate    Op = "create"
	OpSet       Op = "set"
	OpMerge     Op = "merge"
	OpDelete    Op = "delete"
	OpIncrement Op = "increment"
)

type MemoryOption func(*MemoryStore)

// WithClock replaces the server timestamp source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// MemoryStore keeps documents in process. Every write holds the store lock
// for exactly one document, matching the atomicity of the real backends.
type MemoryStore struct {
	mu     sync.Mutex
	cols   map[string]map[string]Document
	subs   map[*memorySub]struct{}
	faults map[Op][]error
	now    func() time.Time
	closed bool
}

type memorySub struct {
	store *MemoryStore
	query Query
	fn    func(Snapshot)

	mu     sync.Mutex
	closed atomic.Bool
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		cols:   make(map[string]map[string]Document),
		subs:   make(map[*memorySub]struct{}),
		faults: make(map[Op][]error),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailNext makes the next call of op return err without applying it.
// Queued failures are consumed in order.
func (s *MemoryStore) FailNext(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

func (s *MemoryStore) takeFault(op Op) error {
	queue := s.faults[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	s.faults[op] = queue[1:]
	return err
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Document{}, ErrClosed
	}
	d, ok := s.cols[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return cloneDocument(d), nil
}

func (s *MemoryStore) Create(ctx context.Context, collection string, fields map[string]any) (Document, error) {
	id := uuid.NewString()
	var doc Document
	err := s.write(ctx, OpCreate, collection, func(col map[string]Document) error {
		now := s.now()
		doc = Document{ID: id, Data: cloneData(fields), CreatedAt: now, UpdatedAt: now}
		col[id] = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.write(ctx, OpSet, collection, func(col map[string]Document) error {
		now := s.now()
		created := now
		if prev, ok := col[id]; ok {
			created = prev.CreatedAt
		}
		col[id] = Document{ID: id, Data: cloneData(fields), CreatedAt: created, UpdatedAt: now}
		return nil
	})
}

func (s *MemoryStore) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.write(ctx, OpMerge, collection, func(col map[string]Document) error {
		d, ok := col[id]
		if !ok {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		data := cloneData(d.Data)
		for path, v := range fields {
			setPath(data, path, cloneValue(v))
		}
		d.Data = data
		d.UpdatedAt = s.now()
		col[id] = d
		return nil
	})
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	return s.write(ctx, OpDelete, collection, func(col map[string]Document) error {
		delete(col, id)
		return nil
	})
}

func (s *MemoryStore) Increment(ctx context.Context, collection, id, path string, delta int) error {
	return s.write(ctx, OpIncrement, collection, func(col map[string]Document) error {
		d, ok := col[id]
		if !ok {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		data := cloneData(d.Data)
		cur, _ := getPath(data, path)
		n, _ := toFloat(cur)
		n += float64(delta)
		if n < 0 {
			n = 0
		}
		setPath(data, path, n)
		d.Data = data
		d.UpdatedAt = s.now()
		col[id] = d
		return nil
	})
}

// write applies fn to one collection under the store lock, then pushes
// fresh snapshots to subscribers of that collection.
func (s *MemoryStore) write(ctx context.Context, op Op, collection string, fn func(map[string]Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := s.takeFault(op); err != nil {
		s.mu.Unlock()
		return err
	}
	col, ok := s.cols[collection]
	if !ok {
		col = make(map[string]Document)
		s.cols[collection] = col
	}
	if err := fn(col); err != nil {
		s.mu.Unlock()
		return err
	}
	var targets []*memorySub
	for sub := range s.subs {
		if sub.query.Collection == collection {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.deliver()
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.queryLocked(q), nil
}

func (s *MemoryStore) queryLocked(q Query) []Document {
	var out []Document
	for _, d := range s.cols[q.Collection] {
		if q.Matches(d) {
			out = append(out, cloneDocument(d))
		}
	}
	SortDocuments(out, q)
	return out
}

func (s *MemoryStore) Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	sub := &memorySub{store: s, query: q, fn: fn}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	sub.deliver()

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			sub.Close()
		}()
	}
	return sub, nil
}

// deliver evaluates the query at delivery time, so the last push a
// subscriber sees always reflects the latest committed state.
func (sub *memorySub) deliver() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed.Load() {
		return
	}
	sub.store.mu.Lock()
	if sub.store.closed {
		sub.store.mu.Unlock()
		return
	}
	docs := sub.store.queryLocked(sub.query)
	sub.store.mu.Unlock()
	sub.fn(Snapshot{Documents: docs})
}

func (sub *memorySub) Close() {
	sub.store.mu.Lock()
	delete(sub.store.subs, sub)
	sub.store.mu.Unlock()
	sub.closed.Store(true)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[*memorySub]struct{})
	return nil
}
