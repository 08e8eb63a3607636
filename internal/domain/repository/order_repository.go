package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
)

// OrderRepository defines persistence for orders' financial state
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error

	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// GetForUpdate loads the order holding a row lock until the transaction ends
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// UpdateFinancialStatus applies a new status if the order still has the
	// version that was read. Returns ErrConcurrentUpdate otherwise.
	UpdateFinancialStatus(ctx context.Context, order *model.Order, status model.FinancialStatus, at time.Time) error
}
