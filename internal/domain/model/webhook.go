package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Webhook is a merchant endpoint subscribed to order events.
type Webhook struct {
	Base
	StoreID      uuid.UUID                   `gorm:"type:uuid;not null;index" json:"store_id"`
	URL          string                      `gorm:"size:1000;not null" json:"url"`
	Events       datatypes.JSONSlice[string] `json:"events"`
	Secret       string                      `gorm:"size:255" json:"-"`
	IsActive     bool                        `gorm:"not null" json:"is_active"`
	FailureCount int                         `gorm:"not null;default:0" json:"failure_count"`
	DisabledAt   *time.Time                  `json:"disabled_at,omitempty"`
}

func (Webhook) TableName() string {
	return "webhooks"
}

// Subscribed reports whether the webhook listens to the event ("*" matches all).
func (w *Webhook) Subscribed(event string) bool {
	for _, e := range w.Events {
		e = strings.TrimSpace(e)
		if e == "*" || e == event {
			return true
		}
	}
	return false
}

// WebhookDelivery is one append-only delivery attempt.
type WebhookDelivery struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WebhookID    uuid.UUID `gorm:"type:uuid;not null;index" json:"webhook_id"`
	EventID      uuid.UUID `gorm:"type:uuid;not null;index" json:"event_id"`
	Event        string    `gorm:"size:100;not null" json:"event"`
	Attempt      int       `gorm:"not null" json:"attempt"`
	StatusCode   *int      `json:"status_code,omitempty"`
	ResponseBody *string   `json:"response_body,omitempty"`
	Error        *string   `json:"error,omitempty"`
	DurationMs   int64     `gorm:"not null" json:"duration_ms"`
	Success      bool      `gorm:"not null" json:"success"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}
