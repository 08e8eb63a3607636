package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
)

// TransactionRepository is the append-only payment ledger
type TransactionRepository interface {
	Create(ctx context.Context, txn *model.PaymentTransaction) error

	// Finalize moves a pending or processing row to a terminal status exactly
	// once. Returns false when the row was already terminal.
	Finalize(ctx context.Context, id uuid.UUID, result model.TransactionResult) (bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*model.PaymentTransaction, error)

	// FindSuccessfulCharge returns the original successful charge of an order
	FindSuccessfulCharge(ctx context.Context, orderID uuid.UUID) (*model.PaymentTransaction, error)

	FindSuccessfulChargeForPending(ctx context.Context, pendingPaymentID uuid.UUID) (*model.PaymentTransaction, error)

	// ListByOrder returns every ledger row of an order, oldest first
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.PaymentTransaction, error)
}

// RefundRepository stores merchant-facing refund records
type RefundRepository interface {
	Create(ctx context.Context, refund *model.Refund) error

	FindByIdempotencyKey(ctx context.Context, orderID uuid.UUID, key string) (*model.Refund, error)

	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.Refund, error)
}
