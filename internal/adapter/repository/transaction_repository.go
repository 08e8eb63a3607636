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

type transactionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTransactionRepository creates a new ledger repository
func NewTransactionRepository(db *gorm.DB, logger *zap.Logger) repository.TransactionRepository {
	return &transactionRepository{db: db, logger: logger}
}

func (r *transactionRepository) Create(ctx context.Context, txn *model.PaymentTransaction) error {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		r.logger.Error("Failed to create payment transaction",
			zap.String("store_id", txn.StoreID.String()),
			zap.String("type", string(txn.Type)),
			zap.String("status", string(txn.Status)),
			zap.Error(err))
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) Finalize(ctx context.Context, id uuid.UUID, result model.TransactionResult) (bool, error) {
	if !result.Status.Terminal() {
		return false, fmt.Errorf("finalize requires a terminal status, got %s", result.Status)
	}

	updates := map[string]interface{}{
		"status":       result.Status,
		"processed_at": result.ProcessedAt,
		"updated_at":   result.ProcessedAt,
	}
	if result.ProviderTransactionID != nil {
		updates["provider_transaction_id"] = *result.ProviderTransactionID
	}
	if result.ErrorCode != nil {
		updates["error_code"] = *result.ErrorCode
	}
	if result.ErrorMessage != nil {
		updates["error_message"] = *result.ErrorMessage
	}

	res := r.db.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("id = ? AND status IN ?", id, []model.TransactionStatus{model.TransactionStatusPending, model.TransactionStatusProcessing}).
		Updates(updates)
	if res.Error != nil {
		r.logger.Error("Failed to finalize payment transaction",
			zap.String("transaction_id", id.String()),
			zap.Error(res.Error))
		return false, fmt.Errorf("failed to finalize payment transaction: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PaymentTransaction, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *transactionRepository) FindSuccessfulCharge(ctx context.Context, orderID uuid.UUID) (*model.PaymentTransaction, error) {
	return r.first(r.db.WithContext(ctx).
		Where("order_id = ? AND type = ? AND status = ?", orderID, model.TransactionKindCharge, model.TransactionStatusSuccess).
		Order("created_at"))
}

func (r *transactionRepository) FindSuccessfulChargeForPending(ctx context.Context, pendingPaymentID uuid.UUID) (*model.PaymentTransaction, error) {
	return r.first(r.db.WithContext(ctx).
		Where("pending_payment_id = ? AND type = ? AND status = ?", pendingPaymentID, model.TransactionKindCharge, model.TransactionStatusSuccess))
}

func (r *transactionRepository) first(q *gorm.DB) (*model.PaymentTransaction, error) {
	var txn model.PaymentTransaction
	if err := q.First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment transaction: %w", err)
	}
	return &txn, nil
}

func (r *transactionRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.PaymentTransaction, error) {
	var txns []*model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at, id").
		Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payment transactions: %w", err)
	}
	return txns, nil
}

type refundRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRefundRepository creates a new refund repository
func NewRefundRepository(db *gorm.DB, logger *zap.Logger) repository.RefundRepository {
	return &refundRepository{db: db, logger: logger}
}

func (r *refundRepository) Create(ctx context.Context, refund *model.Refund) error {
	if err := r.db.WithContext(ctx).Create(refund).Error; err != nil {
		r.logger.Error("Failed to create refund", zap.String("order_id", refund.OrderID.String()), zap.Error(err))
		return fmt.Errorf("failed to create refund: %w", err)
	}
	return nil
}

func (r *refundRepository) FindByIdempotencyKey(ctx context.Context, orderID uuid.UUID, key string) (*model.Refund, error) {
	var refund model.Refund
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND idempotency_key = ?", orderID, key).
		First(&refund).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	return &refund, nil
}

func (r *refundRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.Refund, error) {
	var refunds []*model.Refund
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at").Find(&refunds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	return refunds, nil
}
