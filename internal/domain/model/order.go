package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/paycore/internal/domain/money"
)

// FinancialStatus is the order's money state.
type FinancialStatus string

const (
	FinancialStatusPending           FinancialStatus = "pending"
	FinancialStatusPaid              FinancialStatus = "paid"
	FinancialStatusPartiallyRefunded FinancialStatus = "partially_refunded"
	FinancialStatusRefunded          FinancialStatus = "refunded"
	FinancialStatusCancelled         FinancialStatus = "cancelled"
)

// Scan implements sql.Scanner interface
func (s *FinancialStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = FinancialStatus(v)
	case []byte:
		*s = FinancialStatus(v)
	default:
		*s = FinancialStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s FinancialStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Refundable reports whether refunds may be issued against the order.
func (s FinancialStatus) Refundable() bool {
	return s == FinancialStatusPaid || s == FinancialStatusPartiallyRefunded
}

// Settled reports whether money has been taken for the order.
func (s FinancialStatus) Settled() bool {
	return s == FinancialStatusPaid || s == FinancialStatusPartiallyRefunded || s == FinancialStatusRefunded
}

// Order is the financial view of a customer order.
type Order struct {
	Base
	StoreID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_orders_store_number" json:"store_id"`
	OrderNumber     string          `gorm:"size:40;not null;uniqueIndex:ux_orders_store_number" json:"order_number"`
	CustomerRef     string          `gorm:"size:255" json:"customer_ref"`
	TotalAmount     int64           `gorm:"not null" json:"total_amount"`
	Currency        string          `gorm:"size:3;not null" json:"currency"`
	FinancialStatus FinancialStatus `gorm:"size:30;not null;default:'pending';index" json:"financial_status"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	Version         int64           `gorm:"not null;default:1" json:"version"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) Total() money.Money {
	return money.Money{Amount: o.TotalAmount, Currency: o.Currency}
}
