package model

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Store is a merchant tenant. Rows are seeded and read-only to the core.
type Store struct {
	Base
	Slug             string `gorm:"size:100;not null;uniqueIndex" json:"slug"`
	Name             string `gorm:"size:255;not null" json:"name"`
	Currency         string `gorm:"size:3;not null" json:"currency"`
	OrderConfirmURL  string `gorm:"size:500" json:"order_confirm_url"`
	CheckoutErrorURL string `gorm:"size:500" json:"checkout_error_url"`
}

func (Store) TableName() string {
	return "stores"
}

// ProviderConfig holds a store's gateway credentials. The payload is opaque
// to the core and decoded by the adapter that owns it.
type ProviderConfig struct {
	Base
	StoreID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_provider_configs_lookup" json:"store_id"`
	ProviderType string         `gorm:"size:20;not null;index:idx_provider_configs_lookup" json:"provider_type"`
	Credentials  datatypes.JSON `json:"-"`
	TestMode     bool           `gorm:"not null;default:false" json:"test_mode"`
	IsActive     bool           `gorm:"not null;index:idx_provider_configs_lookup" json:"is_active"`
}

func (ProviderConfig) TableName() string {
	return "provider_configs"
}
