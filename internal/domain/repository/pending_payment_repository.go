package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
)

// PendingPaymentRepository stores initiated but unsettled charges
type PendingPaymentRepository interface {
	Create(ctx context.Context, pending *model.PendingPayment) error

	GetByID(ctx context.Context, id uuid.UUID) (*model.PendingPayment, error)

	// GetForUpdate re-reads the row holding a lock for the re-check before write
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.PendingPayment, error)

	// FindByProviderRequest looks up by our own reference, always store-scoped
	FindByProviderRequest(ctx context.Context, storeID uuid.UUID, provider, providerRequestID string) (*model.PendingPayment, error)

	// FindByProviderOrder looks up by the gateway's order id, always store-scoped
	FindByProviderOrder(ctx context.Context, storeID uuid.UUID, provider, providerOrderID string) (*model.PendingPayment, error)

	AttachProviderOrder(ctx context.Context, id uuid.UUID, providerOrderID string) error

	// AttachOrder links the order created for the payment
	AttachOrder(ctx context.Context, id uuid.UUID, orderID uuid.UUID) error

	// Transition moves the row from one of the given statuses to a new one.
	// Returns false when another handler already moved it.
	Transition(ctx context.Context, id uuid.UUID, from []model.PendingPaymentStatus, to model.PendingPaymentStatus, errorCode *string, at time.Time) (bool, error)

	// ExpireStale fails pending rows whose TTL has passed
	ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error)
}
