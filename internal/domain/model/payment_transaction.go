package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/wekeepgrowing/paycore/internal/domain/money"
)

type TransactionKind string

const (
	TransactionKindCharge TransactionKind = "charge"
	TransactionKindRefund TransactionKind = "refund"
)

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusSuccess    TransactionStatus = "success"
	TransactionStatusFailed     TransactionStatus = "failed"
)

// Terminal reports whether the ledger row is immutable.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusFailed
}

// TransactionMetadata is the typed payload stored with a ledger row.
type TransactionMetadata struct {
	Source          string            `json:"source,omitempty"`
	ProviderStatus  string            `json:"providerStatus,omitempty"`
	CaptureID       string            `json:"captureId,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	ProcessedByID   string            `json:"processedById,omitempty"`
	ExpectedAmount  *int64            `json:"expectedAmount,omitempty"`
	ReceivedAmount  *int64            `json:"receivedAmount,omitempty"`
	ProviderDetails map[string]string `json:"providerDetails,omitempty"`
	DuplicateOf     string            `json:"duplicateOf,omitempty"`
}

// PaymentTransaction is an append-only ledger entry. Rows in a terminal
// status never change; pending rows are finalised exactly once.
type PaymentTransaction struct {
	Base
	StoreID               uuid.UUID                               `gorm:"type:uuid;not null;index" json:"store_id"`
	OrderID               *uuid.UUID                              `gorm:"type:uuid;index" json:"order_id,omitempty"`
	PendingPaymentID      *uuid.UUID                              `gorm:"type:uuid;index" json:"pending_payment_id,omitempty"`
	Provider              string                                  `gorm:"size:20;not null" json:"provider"`
	ProviderConfigID      *uuid.UUID                              `gorm:"type:uuid" json:"provider_config_id,omitempty"`
	Type                  TransactionKind                         `gorm:"size:10;not null" json:"type"`
	Status                TransactionStatus                       `gorm:"size:20;not null;index" json:"status"`
	Amount                int64                                   `gorm:"not null" json:"amount"`
	Currency              string                                  `gorm:"size:3;not null" json:"currency"`
	ProviderTransactionID *string                                 `gorm:"size:100;index" json:"provider_transaction_id,omitempty"`
	ProviderRequestID     *string                                 `gorm:"size:100" json:"provider_request_id,omitempty"`
	ParentTransactionID   *uuid.UUID                              `gorm:"type:uuid;index" json:"parent_transaction_id,omitempty"`
	ErrorCode             *string                                 `gorm:"size:100" json:"error_code,omitempty"`
	ErrorMessage          *string                                 `json:"error_message,omitempty"`
	ProcessedAt           *time.Time                              `json:"processed_at,omitempty"`
	Metadata              datatypes.JSONType[TransactionMetadata] `json:"metadata"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

func (t *PaymentTransaction) Money() money.Money {
	return money.Money{Amount: t.Amount, Currency: t.Currency}
}

// TransactionResult carries the fields written when a ledger row is finalised.
type TransactionResult struct {
	Status                TransactionStatus
	ProviderTransactionID *string
	ErrorCode             *string
	ErrorMessage          *string
	ProcessedAt           time.Time
}
