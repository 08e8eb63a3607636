package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

type giftCardRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGiftCardRepository creates a new gift card repository
func NewGiftCardRepository(db *gorm.DB, logger *zap.Logger) repository.GiftCardRepository {
	return &giftCardRepository{db: db, logger: logger}
}

func (r *giftCardRepository) Create(ctx context.Context, card *model.GiftCard) error {
	if err := r.db.WithContext(ctx).Create(card).Error; err != nil {
		r.logger.Error("Failed to create gift card",
			zap.String("pending_payment_id", card.PendingPaymentID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create gift card: %w", err)
	}
	return nil
}

func (r *giftCardRepository) FindByPendingPayment(ctx context.Context, pendingPaymentID uuid.UUID) (*model.GiftCard, error) {
	var card model.GiftCard
	err := r.db.WithContext(ctx).Where("pending_payment_id = ?", pendingPaymentID).First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get gift card: %w", err)
	}
	return &card, nil
}

func (r *giftCardRepository) CodeExists(ctx context.Context, storeID uuid.UUID, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.GiftCard{}).
		Where("store_id = ? AND code = ?", storeID, code).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check gift card code: %w", err)
	}
	return count > 0, nil
}
