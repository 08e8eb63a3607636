package model

import (
	"time"

	"github.com/google/uuid"
)

// GiftCard is issued once per settled gift-card pending payment.
type GiftCard struct {
	Base
	StoreID          uuid.UUID `gorm:"type:uuid;not null" json:"store_id"`
	Code             string    `gorm:"size:32;not null" json:"code"`
	InitialAmount    int64     `gorm:"not null" json:"initial_amount"`
	Balance          int64     `gorm:"not null" json:"balance"`
	Currency         string    `gorm:"size:3;not null" json:"currency"`
	RecipientEmail   string    `gorm:"size:255" json:"recipient_email"`
	SenderName       string    `gorm:"size:255" json:"sender_name"`
	Message          string    `json:"message"`
	PendingPaymentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"pending_payment_id"`
	OrderID          uuid.UUID `gorm:"type:uuid;not null" json:"order_id"`
	IssuedAt         time.Time `json:"issued_at"`
}

func (GiftCard) TableName() string {
	return "gift_cards"
}
