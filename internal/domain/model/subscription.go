package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
)

// Scan implements sql.Scanner interface
func (s *SubscriptionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = SubscriptionStatus(v)
	case []byte:
		*s = SubscriptionStatus(v)
	default:
		*s = SubscriptionStatusInactive
	}
	return nil
}

// Value implements driver.Valuer interface
func (s SubscriptionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Subscription is a customer's paid plan, extended one period per settled charge.
type Subscription struct {
	Base
	StoreID                 uuid.UUID          `gorm:"type:uuid;not null;index" json:"store_id"`
	CustomerRef             string             `gorm:"size:255;not null" json:"customer_ref"`
	PlanCode                string             `gorm:"size:100;not null" json:"plan_code"`
	Status                  SubscriptionStatus `gorm:"size:20;not null;default:'active'" json:"status"`
	CurrentPeriodStart      time.Time          `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd        time.Time          `gorm:"not null" json:"current_period_end"`
	CanceledAt              *time.Time         `json:"canceled_at,omitempty"`
	LastChargeTransactionID *uuid.UUID         `gorm:"type:uuid;uniqueIndex" json:"last_charge_transaction_id,omitempty"`
}

// TableName specifies the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}
