package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditEntryKind classifies a credit ledger entry
type CreditEntryKind string

const (
	CreditEntryTopup      CreditEntryKind = "topup"
	CreditEntryUsage      CreditEntryKind = "usage"
	CreditEntryAdjustment CreditEntryKind = "adjustment"
)

// CreditEntry is one append-only movement of a customer's store credit.
// ReferenceID is unique per store so a paid top-up is granted once.
type CreditEntry struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	StoreID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_credit_entries_reference;index:idx_credit_entries_account" json:"store_id"`
	AccountID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_credit_entries_account" json:"account_id"`
	Kind         CreditEntryKind `gorm:"size:20;not null" json:"kind"`
	Amount       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	BalanceAfter decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"balance_after"`
	Description  string          `gorm:"size:500;not null" json:"description"`
	ReferenceID  string          `gorm:"size:200;not null;uniqueIndex:idx_credit_entries_reference" json:"reference_id"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index:idx_credit_entries_account" json:"created_at"`
}

func (CreditEntry) TableName() string {
	return "credit_entries"
}

// CreditBalance is the running balance of one account inside one store.
type CreditBalance struct {
	StoreID     uuid.UUID       `gorm:"type:uuid;primaryKey" json:"store_id"`
	AccountID   uuid.UUID       `gorm:"type:uuid;primaryKey" json:"account_id"`
	Balance     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"balance"`
	LastEntryAt time.Time       `json:"last_entry_at"`
}

func (CreditBalance) TableName() string {
	return "credit_balances"
}
