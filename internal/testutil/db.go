// Package testutil provides an in-memory database and fixtures for tests.
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/infrastructure/database"
)

// NewTestDB opens a private in-memory SQLite database migrated with the
// production schema. A single connection keeps every goroutine on the same
// database and serialises transactions.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=off"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db, zap.NewNop()))
	return db
}

// StoreFixture creates a store with sensible redirect URLs.
func StoreFixture(t *testing.T, db *gorm.DB, slug, currency string) *model.Store {
	t.Helper()
	store := &model.Store{
		Slug:             slug,
		Name:             slug,
		Currency:         currency,
		OrderConfirmURL:  "https://" + slug + ".example.com/order-confirmation",
		CheckoutErrorURL: "https://" + slug + ".example.com/checkout",
	}
	require.NoError(t, db.Create(store).Error)
	return store
}

// ProviderConfigFixture creates an active provider config with the given credentials.
func ProviderConfigFixture(t *testing.T, db *gorm.DB, storeID uuid.UUID, providerType string, credentials interface{}) *model.ProviderConfig {
	t.Helper()
	raw, err := json.Marshal(credentials)
	require.NoError(t, err)
	cfg := &model.ProviderConfig{
		StoreID:      storeID,
		ProviderType: providerType,
		Credentials:  datatypes.JSON(raw),
		TestMode:     true,
		IsActive:     true,
	}
	require.NoError(t, db.Create(cfg).Error)
	return cfg
}

// PendingPaymentFixture creates a pending payment for a storefront order.
func PendingPaymentFixture(t *testing.T, db *gorm.DB, storeID uuid.UUID, provider string, amount int64, currency string, purpose model.Purpose) *model.PendingPayment {
	t.Helper()
	if purpose == nil {
		purpose = model.StorefrontOrderPurpose{CartID: "cart-1"}
	}
	pending := &model.PendingPayment{
		StoreID:           storeID,
		Provider:          provider,
		ProviderRequestID: uuid.NewString(),
		Amount:            amount,
		Currency:          currency,
		CustomerRef:       "customer@example.com",
		Status:            model.PendingStatusPending,
		ExpiresAt:         time.Now().UTC().Add(30 * time.Minute),
	}
	require.NoError(t, pending.SetPurpose(purpose))
	require.NoError(t, db.Create(pending).Error)
	return pending
}

// WebhookFixture subscribes an endpoint to events for a store.
func WebhookFixture(t *testing.T, db *gorm.DB, storeID uuid.UUID, url, secret string, events ...string) *model.Webhook {
	t.Helper()
	if len(events) == 0 {
		events = []string{"*"}
	}
	webhook := &model.Webhook{
		StoreID:  storeID,
		URL:      url,
		Events:   datatypes.JSONSlice[string](events),
		Secret:   secret,
		IsActive: true,
	}
	require.NoError(t, db.Create(webhook).Error)
	return webhook
}

// Count returns the number of rows of a model matching the condition.
func Count(t *testing.T, db *gorm.DB, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.WithContext(context.Background()).Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
