package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Outbox event types emitted by the core.
const (
	EventOrderPaid           = "order.paid"
	EventOrderCancelled      = "order.cancelled"
	EventOrderRefunded       = "order.refunded"
	EventGiftCardIssued      = "gift_card.issued"
	EventCreditsAdded        = "credits.added"
	EventSubscriptionRenewed = "subscription.renewed"
	EventIssuanceFailed      = "issuance.failed"
	EventPaymentDuplicate    = "payment.duplicate"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusDispatched OutboxStatus = "dispatched"
	OutboxStatusDead       OutboxStatus = "dead"
)

// OutboxEvent is written in the same transaction as the ledger change it
// describes and fanned out to webhooks afterwards.
type OutboxEvent struct {
	Base
	StoreID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"store_id"`
	EventType     string         `gorm:"size:100;not null" json:"event_type"`
	Payload       datatypes.JSON `json:"payload"`
	Status        OutboxStatus   `gorm:"size:20;not null;default:'pending';index:idx_outbox_due,priority:1" json:"status"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt time.Time      `gorm:"not null;index:idx_outbox_due,priority:2" json:"next_attempt_at"`
	LastError     *string        `json:"last_error,omitempty"`
	DispatchedAt  *time.Time     `json:"dispatched_at,omitempty"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// NewOutboxEvent builds a pending event due immediately.
func NewOutboxEvent(storeID uuid.UUID, eventType string, data interface{}, now time.Time) (*OutboxEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &OutboxEvent{
		StoreID:       storeID,
		EventType:     eventType,
		Payload:       datatypes.JSON(payload),
		Status:        OutboxStatusPending,
		NextAttemptAt: now,
	}, nil
}

type WebhookTaskStatus string

const (
	WebhookTaskPending   WebhookTaskStatus = "pending"
	WebhookTaskDelivered WebhookTaskStatus = "delivered"
	WebhookTaskDead      WebhookTaskStatus = "dead"
)

// WebhookTask tracks delivery of one outbox event to one webhook so retries
// are per endpoint.
type WebhookTask struct {
	Base
	OutboxEventID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:ux_webhook_task,priority:1" json:"outbox_event_id"`
	WebhookID     uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:ux_webhook_task,priority:2" json:"webhook_id"`
	Status        WebhookTaskStatus `gorm:"size:20;not null;default:'pending';index:idx_webhook_task_due,priority:1" json:"status"`
	Attempts      int               `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt time.Time         `gorm:"not null;index:idx_webhook_task_due,priority:2" json:"next_attempt_at"`
	ClaimedUntil  *time.Time        `json:"claimed_until,omitempty"`
}

func (WebhookTask) TableName() string {
	return "webhook_tasks"
}
