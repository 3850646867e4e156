package repository

import (
	"context"
	"encoding/json"
	"time"

	"corruption-report-service/internal/store"
)

const (
	OutboxPending   = "pending"
	OutboxPublished = "published"
	OutboxFailed    = "failed"

	maxOutboxRetries = 5
)

type OutboxMessage struct {
	ID         string          `json:"id"`
	RoutingKey string          `json:"routing_key"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	RetryCount int             `json:"retry_count"`
	LastError  *string         `json:"last_error,omitempty"`
	Status     string          `json:"status"`
}

// OutboxRepository queues domain events in the document store until the
// outbox worker hands them to the broker.
type OutboxRepository struct {
	store store.DocumentStore
}

func NewOutboxRepository(s store.DocumentStore) *OutboxRepository {
	return &OutboxRepository{store: s}
}

func (r *OutboxRepository) Create(ctx context.Context, routingKey string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var body map[string]any
	if err := json.Unmarshal(payloadBytes, &body); err != nil {
		return err
	}

	_, err = r.store.Create(ctx, CollectionOutbox, map[string]any{
		"routingKey": routingKey,
		"payload":    body,
		"status":     OutboxPending,
		"retryCount": 0,
	})
	return err
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]OutboxMessage, error) {
	q := store.Query{Collection: CollectionOutbox}.
		Where("status", OutboxPending).
		OrderedBy(store.FieldCreatedAt, false)
	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(docs) > limit {
		docs = docs[:limit]
	}

	messages := make([]OutboxMessage, 0, len(docs))
	for _, d := range docs {
		m, err := outboxFromDocument(d)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (r *OutboxRepository) MarkAsPublished(ctx context.Context, id string) error {
	return r.store.Merge(ctx, CollectionOutbox, id, map[string]any{
		"status":      OutboxPublished,
		"publishedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

// MarkAsFailed records a failed attempt. The message stays pending until
// it has failed maxOutboxRetries times.
func (r *OutboxRepository) MarkAsFailed(ctx context.Context, msg OutboxMessage, errMsg string) error {
	if err := r.store.Increment(ctx, CollectionOutbox, msg.ID, "retryCount", 1); err != nil {
		return err
	}
	status := OutboxPending
	if msg.RetryCount+1 >= maxOutboxRetries {
		status = OutboxFailed
	}
	return r.store.Merge(ctx, CollectionOutbox, msg.ID, map[string]any{
		"status":    status,
		"lastError": errMsg,
	})
}

func (r *OutboxRepository) DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	docs, err := r.store.Query(ctx, store.Query{Collection: CollectionOutbox}.Where("status", OutboxPublished))
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan)
	var deleted int64
	for _, d := range docs {
		if d.UpdatedAt.After(cutoff) {
			continue
		}
		if err := r.store.Delete(ctx, CollectionOutbox, d.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (r *OutboxRepository) GetStats(ctx context.Context) (map[string]int, error) {
	docs, err := r.store.Query(ctx, store.Query{Collection: CollectionOutbox})
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int)
	for _, d := range docs {
		stats[d.String("status")]++
	}
	return stats, nil
}

func outboxFromDocument(d store.Document) (OutboxMessage, error) {
	payload, err := json.Marshal(d.Map("payload"))
	if err != nil {
		return OutboxMessage{}, err
	}
	m := OutboxMessage{
		ID:         d.ID,
		RoutingKey: d.String("routingKey"),
		Payload:    payload,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
		RetryCount: d.Int("retryCount"),
		Status:     d.String("status"),
	}
	if e := d.String("lastError"); e != "" {
		m.LastError = &e
	}
	return m, nil
}
