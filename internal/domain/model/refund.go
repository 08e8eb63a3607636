package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/paycore/internal/domain/money"
)

type RefundStatus string

const (
	RefundStatusCompleted RefundStatus = "completed"
	RefundStatusFailed    RefundStatus = "failed"
)

// Refund is the merchant-facing record of a refund request.
type Refund struct {
	Base
	StoreID        uuid.UUID    `gorm:"type:uuid;not null;index" json:"store_id"`
	OrderID        uuid.UUID    `gorm:"type:uuid;not null;index" json:"order_id"`
	TransactionID  uuid.UUID    `gorm:"type:uuid;not null" json:"transaction_id"`
	Amount         int64        `gorm:"not null" json:"amount"`
	Currency       string       `gorm:"size:3;not null" json:"currency"`
	Reason         string       `gorm:"size:500" json:"reason"`
	Status         RefundStatus `gorm:"size:20;not null" json:"status"`
	ProcessedByID  string       `gorm:"size:100" json:"processed_by_id"`
	IdempotencyKey *string      `gorm:"size:100" json:"idempotency_key,omitempty"`
	ProcessedAt    time.Time    `json:"processed_at"`
}

func (Refund) TableName() string {
	return "refunds"
}

func (r *Refund) Money() money.Money {
	return money.Money{Amount: r.Amount, Currency: r.Currency}
}
