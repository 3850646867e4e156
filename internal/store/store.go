package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrClosed   = errors.New("store closed")
)

// Metadata field names that may appear in a Query's OrderBy.
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// FieldDocumentID in a Filter matches the document id instead of a data field.
const FieldDocumentID = "__id__"

type Document struct {
	ID        string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter is an equality match on a top-level string field.
type Filter struct {
	Field string
	Value string
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
}

// Where returns a copy of q with an extra equality filter.
func (q Query) Where(field, value string) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

// OrderedBy returns a copy of q ordered by a metadata field.
func (q Query) OrderedBy(field string, desc bool) Query {
	q.OrderBy = field
	q.Desc = desc
	return q
}

// Snapshot is one push from a subscription. Err is set when the backend
// failed to evaluate the query; Documents is then nil.
type Snapshot struct {
	Documents []Document
	Err       error
}

type Subscription interface {
	Close()
}

type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Create(ctx context.Context, collection string, fields map[string]any) (Document, error)
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	// Merge updates the named fields of an existing document. Keys may be
	// dotted paths into nested maps ("location.address").
	Merge(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// Increment atomically adds delta to the numeric field at path. The
	// result is floored at zero: counters never go negative.
	Increment(ctx context.Context, collection, id, path string, delta int) error
	Query(ctx context.Context, q Query) ([]Document, error)
	// Subscribe calls fn with the full result set of q now and after every
	// change to q's collection until the subscription is closed or ctx ends.
	// Calls for one subscription never overlap.
	Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (Subscription, error)
	Close() error
}

func (d Document) Get(path string) (any, bool) {
	return getPath(d.Data, path)
}

func (d Document) String(path string) string {
	v, _ := d.Get(path)
	s, _ := v.(string)
	return s
}

func (d Document) Bool(path string) bool {
	v, _ := d.Get(path)
	b, _ := v.(bool)
	return b
}

func (d Document) Float(path string) (float64, bool) {
	v, ok := d.Get(path)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func (d Document) Int(path string) int {
	f, _ := d.Float(path)
	return int(f)
}

func (d Document) Strings(path string) []string {
	v, _ := d.Get(path)
	items, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return append([]string(nil), ss...)
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (d Document) Map(path string) map[string]any {
	v, _ := d.Get(path)
	m, _ := v.(map[string]any)
	return m
}

// Matches reports whether d satisfies every filter of q.
func (q Query) Matches(d Document) bool {
	for _, f := range q.Filters {
		v := d.String(f.Field)
		if f.Field == FieldDocumentID {
			v = d.ID
		}
		if v != f.Value {
			return false
		}
	}
	return true
}

// SortDocuments orders docs by q's OrderBy field, breaking ties by id.
func SortDocuments(docs []Document, q Query) {
	if q.OrderBy == "" {
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
		return
	}
	key := func(d Document) time.Time {
		if q.OrderBy == FieldUpdatedAt {
			return d.UpdatedAt
		}
		return d.CreatedAt
	}
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := key(docs[i]), key(docs[j])
		if a.Equal(b) {
			if q.Desc {
				return docs[i].ID > docs[j].ID
			}
			return docs[i].ID < docs[j].ID
		}
		if q.Desc {
			return a.After(b)
		}
		return a.Before(b)
	})
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

func getPath(data map[string]any, path string) (any, bool) {
	parts := splitPath(path)
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath writes v at path, creating intermediate maps.
func setPath(data map[string]any, path string, v any) {
	parts := splitPath(path)
	cur := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// cloneValue deep-copies maps and slices so stored data never aliases
// caller-owned values.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case map[string]int:
		out := make(map[string]any, len(t))
		for k, n := range t {
			out[k] = float64(n)
		}
		return out
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	}
	return v
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return make(map[string]any)
	}
	return cloneValue(data).(map[string]any)
}

func cloneDocument(d Document) Document {
	d.Data = cloneData(d.Data)
	return d
}
