package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

type webhookRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookRepository creates a new webhook subscription repository
func NewWebhookRepository(db *gorm.DB, logger *zap.Logger) repository.WebhookRepository {
	return &webhookRepository{db: db, logger: logger}
}

func (r *webhookRepository) Create(ctx context.Context, webhook *model.Webhook) error {
	if err := r.db.WithContext(ctx).Create(webhook).Error; err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

func (r *webhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Webhook, error) {
	var webhook model.Webhook
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&webhook).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return &webhook, nil
}

func (r *webhookRepository) ListActiveByStore(ctx context.Context, storeID uuid.UUID) ([]*model.Webhook, error) {
	var webhooks []*model.Webhook
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND is_active = ?", storeID, true).
		Order("created_at").
		Find(&webhooks).Error
	if err != nil {
		r.logger.Error("Failed to list webhooks", zap.String("store_id", storeID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return webhooks, nil
}

func (r *webhookRepository) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&model.Webhook{}).
		Where("id = ? AND failure_count <> 0", id).
		Update("failure_count", 0).Error
	if err != nil {
		return fmt.Errorf("failed to reset webhook failures: %w", err)
	}
	return nil
}

func (r *webhookRepository) RecordFailure(ctx context.Context, id uuid.UUID, threshold int, at time.Time) (bool, error) {
	disabled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var webhook model.Webhook
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&webhook).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"failure_count": webhook.FailureCount + 1}
		if threshold > 0 && webhook.FailureCount+1 >= threshold && webhook.IsActive {
			updates["is_active"] = false
			updates["disabled_at"] = at
			disabled = true
		}
		return tx.Model(&model.Webhook{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to record webhook failure: %w", err)
	}
	if disabled {
		r.logger.Warn("Webhook disabled after repeated failures",
			zap.String("webhook_id", id.String()),
			zap.Int("threshold", threshold))
	}
	return disabled, nil
}

type webhookDeliveryRepository struct {
	db *gorm.DB
}

// NewWebhookDeliveryRepository creates a new delivery log repository
func NewWebhookDeliveryRepository(db *gorm.DB) repository.WebhookDeliveryRepository {
	return &webhookDeliveryRepository{db: db}
}

func (r *webhookDeliveryRepository) Create(ctx context.Context, delivery *model.WebhookDelivery) error {
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(delivery).Error; err != nil {
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}
	return nil
}

func (r *webhookDeliveryRepository) ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit int) ([]*model.WebhookDelivery, error) {
	var deliveries []*model.WebhookDelivery
	q := r.db.WithContext(ctx).Where("webhook_id = ?", webhookID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&deliveries).Error; err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}
	return deliveries, nil
}
