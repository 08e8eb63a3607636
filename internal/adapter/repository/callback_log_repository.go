package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

type callbackLogRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCallbackLogRepository creates a new provider callback log repository
func NewCallbackLogRepository(db *gorm.DB, logger *zap.Logger) repository.CallbackLogRepository {
	return &callbackLogRepository{db: db, logger: logger}
}

func (r *callbackLogRepository) Create(ctx context.Context, entry *model.ProviderCallbackLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.logger.Error("Failed to write provider callback log",
			zap.String("provider", entry.Provider),
			zap.String("transaction_ref", entry.TransactionRef),
			zap.Error(err))
		return fmt.Errorf("failed to write callback log: %w", err)
	}
	return nil
}

func (r *callbackLogRepository) ListByTransactionRef(ctx context.Context, storeID uuid.UUID, ref string) ([]*model.ProviderCallbackLog, error) {
	var entries []*model.ProviderCallbackLog
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND transaction_ref = ?", storeID, ref).
		Order("created_at").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list callback logs: %w", err)
	}
	return entries, nil
}
