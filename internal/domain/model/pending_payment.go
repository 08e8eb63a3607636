package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/wekeepgrowing/paycore/internal/domain/money"
)

type PendingPaymentStatus string

const (
	PendingStatusPending   PendingPaymentStatus = "pending"
	PendingStatusCaptured  PendingPaymentStatus = "captured"
	PendingStatusCompleted PendingPaymentStatus = "completed"
	PendingStatusFailed    PendingPaymentStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s PendingPaymentStatus) Terminal() bool {
	return s == PendingStatusCompleted || s == PendingStatusFailed
}

// PendingPayment is a charge that has been initiated with a gateway but whose
// outcome is not yet known.
type PendingPayment struct {
	Base
	StoreID           uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:ux_pending_provider_request,priority:1;index:idx_pending_provider_order,priority:1" json:"store_id"`
	Provider          string               `gorm:"size:20;not null;uniqueIndex:ux_pending_provider_request,priority:2;index:idx_pending_provider_order,priority:2" json:"provider"`
	ProviderRequestID string               `gorm:"size:100;not null;uniqueIndex:ux_pending_provider_request,priority:3" json:"provider_request_id"`
	ProviderOrderID   *string              `gorm:"size:100;index:idx_pending_provider_order,priority:3" json:"provider_order_id,omitempty"`
	Amount            int64                `gorm:"not null" json:"amount"`
	Currency          string               `gorm:"size:3;not null" json:"currency"`
	CustomerRef       string               `gorm:"size:255" json:"customer_ref"`
	PurposeType       PurposeType          `gorm:"size:30;not null" json:"purpose_type"`
	Purpose           datatypes.JSON       `json:"purpose"`
	Status            PendingPaymentStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	OrderID           *uuid.UUID           `gorm:"type:uuid;index" json:"order_id,omitempty"`
	ErrorCode         *string              `gorm:"size:100" json:"error_code,omitempty"`
	ExpiresAt         time.Time            `gorm:"not null;index" json:"expires_at"`
	CompletedAt       *time.Time           `json:"completed_at,omitempty"`
}

func (PendingPayment) TableName() string {
	return "pending_payments"
}

func (p *PendingPayment) Money() money.Money {
	return money.Money{Amount: p.Amount, Currency: p.Currency}
}

// SetPurpose stores the tagged purpose payload.
func (p *PendingPayment) SetPurpose(purpose Purpose) error {
	raw, err := EncodePurpose(purpose)
	if err != nil {
		return err
	}
	p.PurposeType = purpose.PurposeType()
	p.Purpose = datatypes.JSON(raw)
	return nil
}

// DecodePurpose returns the typed purpose payload.
func (p *PendingPayment) DecodePurpose() (Purpose, error) {
	return DecodePurpose(p.Purpose)
}

// Expired reports whether the payment outlived its TTL while still pending.
// A captured payment has already moved money and never expires.
func (p *PendingPayment) Expired(now time.Time) bool {
	return p.Status == PendingStatusPending && now.After(p.ExpiresAt)
}
