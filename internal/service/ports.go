package service

import (
	"context"
	"time"

	"pos-service/internal/models"
)

// Locker serializes work on a key. The returned func releases the lock and
// is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Deduplicator remembers request ids per scope for a while
type Deduplicator interface {
	// Claim returns false when key was already claimed in scope
	Claim(ctx context.Context, scope, key string, ttl time.Duration) (bool, error)
	// Forget releases a claim so the request can be retried
	Forget(ctx context.Context, scope, key string) error
}

// Publisher delivers lifecycle notifications. Delivery is best effort and
// never affects the outcome of an operation.
type Publisher interface {
	PublishOrderStarted(ctx context.Context, event *models.OrderStartedEvent) error
	PublishKitchenTicket(ctx context.Context, event *models.KitchenTicketEvent) error
	PublishOrderClosed(ctx context.Context, event *models.OrderClosedEvent) error
	PublishOrderCanceled(ctx context.Context, event *models.OrderCanceledEvent) error
	PublishSaleCanceled(ctx context.Context, event *models.SaleCanceledEvent) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

// PublishOrderStarted drops the event
func (NopPublisher) PublishOrderStarted(context.Context, *models.OrderStartedEvent) error {
	return nil
}

// PublishKitchenTicket drops the event
func (NopPublisher) PublishKitchenTicket(context.Context, *models.KitchenTicketEvent) error {
	return nil
}

// PublishOrderClosed drops the event
func (NopPublisher) PublishOrderClosed(context.Context, *models.OrderClosedEvent) error {
	return nil
}

// PublishOrderCanceled drops the event
func (NopPublisher) PublishOrderCanceled(context.Context, *models.OrderCanceledEvent) error {
	return nil
}

// PublishSaleCanceled drops the event
func (NopPublisher) PublishSaleCanceled(context.Context, *models.SaleCanceledEvent) error {
	return nil
}
