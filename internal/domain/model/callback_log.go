package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CallbackOutcome string

const (
	CallbackOutcomeApplied  CallbackOutcome = "applied"
	CallbackOutcomeNoop     CallbackOutcome = "noop"
	CallbackOutcomeNotFound CallbackOutcome = "not_found"
	CallbackOutcomeExpired  CallbackOutcome = "expired"
	CallbackOutcomeInvalid  CallbackOutcome = "invalid"
	CallbackOutcomeError    CallbackOutcome = "error"
)

// ProviderCallbackLog records every inbound provider notification.
type ProviderCallbackLog struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID        *uuid.UUID      `gorm:"type:uuid;index" json:"store_id,omitempty"`
	Provider       string          `gorm:"size:20;not null" json:"provider"`
	Source         string          `gorm:"size:20;not null" json:"source"`
	TransactionRef string          `gorm:"size:100;index" json:"transaction_ref"`
	ProviderStatus string          `gorm:"size:50" json:"provider_status"`
	Outcome        CallbackOutcome `gorm:"size:20;not null" json:"outcome"`
	Detail         string          `gorm:"size:500" json:"detail"`
	RawPayload     datatypes.JSON  `json:"raw_payload"`
	RemoteIP       string          `gorm:"size:64" json:"remote_ip"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (ProviderCallbackLog) TableName() string {
	return "provider_callback_logs"
}
