package database

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/paycore/internal/adapter/repository"
	domainRepo "github.com/wekeepgrowing/paycore/internal/domain/repository"
)

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *domainRepo.Repositories {
	return &domainRepo.Repositories{
		Stores:          repository.NewStoreRepository(db, logger),
		ProviderConfigs: repository.NewProviderConfigRepository(db, logger),
		Orders:          repository.NewOrderRepository(db, logger),
		PendingPayments: repository.NewPendingPaymentRepository(db, logger),
		Transactions:    repository.NewTransactionRepository(db, logger),
		Refunds:         repository.NewRefundRepository(db, logger),
		Webhooks:        repository.NewWebhookRepository(db, logger),
		Deliveries:      repository.NewWebhookDeliveryRepository(db),
		Outbox:          repository.NewOutboxRepository(db, logger),
		WebhookTasks:    repository.NewWebhookTaskRepository(db),
		CallbackLogs:    repository.NewCallbackLogRepository(db, logger),
		GiftCards:       repository.NewGiftCardRepository(db, logger),
		Credits:         repository.NewCreditRepository(db, logger),
		Subscriptions:   repository.NewSubscriptionRepository(db, logger),
		Tx:              NewTransactor(db, logger),
	}
}

type transactor struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTransactor returns a Transactor that binds a fresh repository set to
// each gorm transaction. On a handle that is already inside a transaction
// gorm opens a savepoint instead.
func NewTransactor(db *gorm.DB, logger *zap.Logger) domainRepo.Transactor {
	return &transactor{db: db, logger: logger}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *domainRepo.Repositories) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewRepositories(tx, t.logger))
	})
}
