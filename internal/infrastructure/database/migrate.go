package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
)

// Migrate runs database migrations. It works against Postgres and against
// the SQLite database used in tests.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	err := db.AutoMigrate(
		&model.Store{},
		&model.ProviderConfig{},
		&model.Order{},
		&model.PendingPayment{},
		&model.PaymentTransaction{},
		&model.Refund{},
		&model.Webhook{},
		&model.WebhookDelivery{},
		&model.OutboxEvent{},
		&model.WebhookTask{},
		&model.ProviderCallbackLog{},
		&model.GiftCard{},
		&model.CreditEntry{},
		&model.CreditBalance{},
		&model.Subscription{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomIndexes creates the partial unique indexes that back
// idempotency. GORM tags cannot express WHERE clauses on unique indexes.
func createCustomIndexes(db *gorm.DB) error {
	statements := []string{
		// at most one successful charge per pending payment
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_tx_success_charge ON payment_transactions (pending_payment_id) WHERE type = 'charge' AND status = 'success' AND pending_payment_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_gift_cards_store_code ON gift_cards (store_id, code)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_refund_idempotency ON refunds (order_id, idempotency_key) WHERE idempotency_key IS NOT NULL AND status = 'completed'`,
		`CREATE INDEX IF NOT EXISTS idx_payment_tx_order_status ON payment_transactions (order_id, type, status) WHERE order_id IS NOT NULL`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
