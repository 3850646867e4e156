package service

import (
	"context"
	"time"

	"corruption-report-service/internal/model"

	"github.com/apex/log"
)

// EventLog queues domain events for asynchronous delivery. The outbox
// repository satisfies it.
type EventLog interface {
	Create(ctx context.Context, routingKey string, payload interface{}) error
}

// emit records an event after the domain write has been applied. A failure
// here never fails the caller's operation.
func emit(ctx context.Context, events EventLog, routingKey string, payload interface{}) {
	if events == nil {
		return
	}
	if err := events.Create(ctx, routingKey, payload); err != nil {
		log.WithError(err).WithField("routing_key", routingKey).Warn("outbox: record event")
	}
}

func requireWriter(actor model.Actor) error {
	if actor.UserID == "" {
		return denied("authentication required")
	}
	if actor.Disabled {
		return denied("account %s is disabled", actor.UserID)
	}
	return nil
}

func RequireAdmin(actor model.Actor) error {
	if err := requireWriter(actor); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return denied("admin role required")
	}
	return nil
}

// CanView is true for approved reports, for their author and for admins.
func CanView(actor model.Actor, report *model.Report) bool {
	return report.IsPublic() || actor.IsAdmin() || (actor.UserID != "" && report.UserID == actor.UserID)
}

func now() int64 { return time.Now().Unix() }
