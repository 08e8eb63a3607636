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

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

type orderRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB, logger *zap.Logger) repository.OrderRepository {
	return &orderRepository{db: db, logger: logger}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	if order.Version == 0 {
		order.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		r.logger.Error("Failed to create order", zap.String("store_id", order.StoreID.String()), zap.Error(err))
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *orderRepository) get(q *gorm.DB, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	err := q.Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (r *orderRepository) UpdateFinancialStatus(ctx context.Context, order *model.Order, status model.FinancialStatus, at time.Time) error {
	updates := map[string]interface{}{
		"financial_status": status,
		"version":          order.Version + 1,
		"updated_at":       at,
	}
	switch status {
	case model.FinancialStatusPaid:
		if order.PaidAt == nil {
			updates["paid_at"] = at
		}
	case model.FinancialStatusCancelled:
		updates["cancelled_at"] = at
	}

	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(updates)
	if result.Error != nil {
		r.logger.Error("Failed to update order financial status",
			zap.String("order_id", order.ID.String()),
			zap.String("status", string(status)),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConcurrentUpdate
	}

	order.FinancialStatus = status
	order.Version++
	if _, ok := updates["paid_at"]; ok {
		order.PaidAt = &at
	}
	if status == model.FinancialStatusCancelled {
		order.CancelledAt = &at
	}
	return nil
}
