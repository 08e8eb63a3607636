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

const errorCodeExpired = "expired"

type pendingPaymentRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPendingPaymentRepository creates a new pending payment repository
func NewPendingPaymentRepository(db *gorm.DB, logger *zap.Logger) repository.PendingPaymentRepository {
	return &pendingPaymentRepository{db: db, logger: logger}
}

func (r *pendingPaymentRepository) Create(ctx context.Context, pending *model.PendingPayment) error {
	if pending.Status == "" {
		pending.Status = model.PendingStatusPending
	}
	if err := r.db.WithContext(ctx).Create(pending).Error; err != nil {
		r.logger.Error("Failed to create pending payment",
			zap.String("store_id", pending.StoreID.String()),
			zap.String("provider", pending.Provider),
			zap.Error(err))
		return fmt.Errorf("failed to create pending payment: %w", err)
	}
	return nil
}

func (r *pendingPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PendingPayment, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *pendingPaymentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.PendingPayment, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *pendingPaymentRepository) FindByProviderRequest(ctx context.Context, storeID uuid.UUID, provider, providerRequestID string) (*model.PendingPayment, error) {
	return r.first(r.db.WithContext(ctx).
		Where("store_id = ? AND provider = ? AND provider_request_id = ?", storeID, provider, providerRequestID))
}

func (r *pendingPaymentRepository) FindByProviderOrder(ctx context.Context, storeID uuid.UUID, provider, providerOrderID string) (*model.PendingPayment, error) {
	return r.first(r.db.WithContext(ctx).
		Where("store_id = ? AND provider = ? AND provider_order_id = ?", storeID, provider, providerOrderID).
		Order("created_at DESC"))
}

func (r *pendingPaymentRepository) first(q *gorm.DB) (*model.PendingPayment, error) {
	var pending model.PendingPayment
	if err := q.First(&pending).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending payment: %w", err)
	}
	return &pending, nil
}

func (r *pendingPaymentRepository) AttachProviderOrder(ctx context.Context, id uuid.UUID, providerOrderID string) error {
	err := r.db.WithContext(ctx).
		Model(&model.PendingPayment{}).
		Where("id = ?", id).
		Update("provider_order_id", providerOrderID).Error
	if err != nil {
		return fmt.Errorf("failed to attach provider order: %w", err)
	}
	return nil
}

func (r *pendingPaymentRepository) AttachOrder(ctx context.Context, id uuid.UUID, orderID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&model.PendingPayment{}).
		Where("id = ? AND order_id IS NULL", id).
		Update("order_id", orderID).Error
	if err != nil {
		return fmt.Errorf("failed to attach order: %w", err)
	}
	return nil
}

func (r *pendingPaymentRepository) Transition(ctx context.Context, id uuid.UUID, from []model.PendingPaymentStatus, to model.PendingPaymentStatus, errorCode *string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	if to.Terminal() {
		updates["completed_at"] = at
	}
	if errorCode != nil {
		updates["error_code"] = *errorCode
	}

	result := r.db.WithContext(ctx).
		Model(&model.PendingPayment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		r.logger.Error("Failed to update pending payment status",
			zap.String("pending_payment_id", id.String()),
			zap.String("to", string(to)),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to update pending payment: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *pendingPaymentRepository) ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&model.PendingPayment{}).
		Where("status = ? AND expires_at < ?", model.PendingStatusPending, now).
		Order("expires_at").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find stale pending payments: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// status re-checked so a callback that lands between select and update wins
	result := r.db.WithContext(ctx).
		Model(&model.PendingPayment{}).
		Where("id IN ? AND status = ?", ids, model.PendingStatusPending).
		Updates(map[string]interface{}{
			"status":       model.PendingStatusFailed,
			"error_code":   errorCodeExpired,
			"completed_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire pending payments: %w", result.Error)
	}
	return result.RowsAffected, nil
}
