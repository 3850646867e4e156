package messaging

import (
	"context"
	"sync"
	"time"

	"corruption-report-service/internal/repository"

	"github.com/apex/log"
	"github.com/avast/retry-go"
)

// Publisher hands one outbox entry to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey, messageID string, body []byte) error
}

type WorkerConfig struct {
	Interval           time.Duration
	BatchSize          int
	CleanupInterval    time.Duration
	PublishedRetention time.Duration
	PublishAttempts    uint
	RetryDelay         time.Duration
	MaxRetryDelay      time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval:           1 * time.Second,
		BatchSize:          50,
		CleanupInterval:    1 * time.Hour,
		PublishedRetention: 24 * time.Hour,
		PublishAttempts:    3,
		RetryDelay:         200 * time.Millisecond,
		MaxRetryDelay:      2 * time.Second,
	}
}

// OutboxWorker publishes pending outbox entries. Entries are marked
// published only after the broker accepted them.
type OutboxWorker struct {
	outboxRepo *repository.OutboxRepository
	pub        Publisher
	cfg        WorkerConfig
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewOutboxWorker builds a worker. A nil publisher logs and drops events.
func NewOutboxWorker(outboxRepo *repository.OutboxRepository, pub Publisher, cfg WorkerConfig) *OutboxWorker {
	if pub == nil {
		pub = dropPublisher{}
	}
	def := DefaultWorkerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.PublishedRetention <= 0 {
		cfg.PublishedRetention = def.PublishedRetention
	}
	if cfg.PublishAttempts == 0 {
		cfg.PublishAttempts = def.PublishAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = def.MaxRetryDelay
	}
	return &OutboxWorker{
		outboxRepo: outboxRepo,
		pub:        pub,
		cfg:        cfg,
	}
}

func (w *OutboxWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(2)
	go w.processLoop(ctx)
	go w.cleanupLoop(ctx)
	log.Info("outbox: started")
}

func (w *OutboxWorker) processLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil {
				log.WithError(err).Warn("outbox: get pending")
			}
		}
	}
}

// ProcessPending publishes one batch and returns how many entries went out.
func (w *OutboxWorker) ProcessPending(ctx context.Context) (int, error) {
	messages, err := w.outboxRepo.GetPendingMessages(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, msg := range messages {
		entry := log.WithFields(log.Fields{"id": msg.ID, "routing_key": msg.RoutingKey})

		err := retry.Do(
			func() error {
				return w.pub.Publish(ctx, msg.RoutingKey, msg.ID, msg.Payload)
			},
			retry.Attempts(w.cfg.PublishAttempts),
			retry.Delay(w.cfg.RetryDelay),
			retry.MaxDelay(w.cfg.MaxRetryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.OnRetry(func(n uint, err error) {
				entry.WithError(err).Debugf("outbox: retry %d", n+1)
			}),
		)
		if err != nil {
			entry.WithError(err).Warn("outbox: publish")
			if err := w.outboxRepo.MarkAsFailed(ctx, msg, err.Error()); err != nil {
				entry.WithError(err).Error("outbox: mark failed")
			}
			continue
		}

		if err := w.outboxRepo.MarkAsPublished(ctx, msg.ID); err != nil {
			entry.WithError(err).Error("outbox: mark published")
			continue
		}
		published++
	}
	return published, nil
}

func (w *OutboxWorker) cleanupLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Cleanup(ctx)
		}
	}
}

// Cleanup removes published entries older than the retention window.
func (w *OutboxWorker) Cleanup(ctx context.Context) int64 {
	deleted, err := w.outboxRepo.DeletePublished(ctx, w.cfg.PublishedRetention)
	if err != nil {
		log.WithError(err).Warn("outbox: cleanup")
	} else if deleted > 0 {
		log.WithField("deleted", deleted).Info("outbox: cleaned old messages")
	}
	return deleted
}

func (w *OutboxWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	log.Info("outbox: stopped")
}

func (w *OutboxWorker) Stats(ctx context.Context) (map[string]int, error) {
	return w.outboxRepo.GetStats(ctx)
}

type dropPublisher struct{}

func (dropPublisher) Publish(_ context.Context, routingKey, messageID string, body []byte) error {
	log.WithFields(log.Fields{
		"id":          messageID,
		"routing_key": routingKey,
		"bytes":       len(body),
	}).Info("outbox: no broker, event dropped")
	return nil
}
