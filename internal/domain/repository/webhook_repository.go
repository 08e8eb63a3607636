package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
)

// WebhookRepository manages merchant webhook subscriptions
type WebhookRepository interface {
	Create(ctx context.Context, webhook *model.Webhook) error

	GetByID(ctx context.Context, id uuid.UUID) (*model.Webhook, error)

	ListActiveByStore(ctx context.Context, storeID uuid.UUID) ([]*model.Webhook, error)

	// RecordSuccess resets the consecutive failure counter
	RecordSuccess(ctx context.Context, id uuid.UUID) error

	// RecordFailure increments the failure counter and disables the webhook
	// once it reaches threshold. Returns whether it was disabled by this call.
	RecordFailure(ctx context.Context, id uuid.UUID, threshold int, at time.Time) (bool, error)
}

// WebhookDeliveryRepository is the append-only delivery log
type WebhookDeliveryRepository interface {
	Create(ctx context.Context, delivery *model.WebhookDelivery) error

	ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit int) ([]*model.WebhookDelivery, error)
}

// OutboxRepository persists domain events written alongside ledger changes
type OutboxRepository interface {
	Enqueue(ctx context.Context, event *model.OutboxEvent) error

	// ClaimDue returns pending events whose next attempt is due
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxEvent, error)

	GetByID(ctx context.Context, id uuid.UUID) (*model.OutboxEvent, error)

	MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error

	// Reschedule records a fan-out failure and when to try again
	Reschedule(ctx context.Context, id uuid.UUID, lastErr string, next time.Time, dead bool) error

	ListByStore(ctx context.Context, storeID uuid.UUID, eventType string) ([]*model.OutboxEvent, error)
}

// WebhookTaskRepository tracks per-endpoint delivery of outbox events
type WebhookTaskRepository interface {
	// CreateBatch inserts tasks, skipping (event, webhook) pairs that exist
	CreateBatch(ctx context.Context, tasks []*model.WebhookTask) error

	// ClaimDue leases due pending tasks until leaseUntil so no other worker takes them
	ClaimDue(ctx context.Context, now time.Time, leaseUntil time.Time, limit int) ([]*model.WebhookTask, error)

	MarkDelivered(ctx context.Context, id uuid.UUID, attempts int) error

	Reschedule(ctx context.Context, id uuid.UUID, attempts int, next time.Time) error

	MarkDead(ctx context.Context, id uuid.UUID, attempts int) error
}
