package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
)

// GiftCardRepository stores issued gift cards
type GiftCardRepository interface {
	Create(ctx context.Context, card *model.GiftCard) error

	FindByPendingPayment(ctx context.Context, pendingPaymentID uuid.UUID) (*model.GiftCard, error)

	CodeExists(ctx context.Context, storeID uuid.UUID, code string) (bool, error)
}

// CreditRepository is the store-credit ledger fed by paid top-ups
type CreditRepository interface {
	// Balance returns the account balance in the store, zero when it has none
	Balance(ctx context.Context, storeID, accountID uuid.UUID) (decimal.Decimal, error)

	// Grant appends entry and moves the balance by entry.Amount. When the
	// store already holds an entry with the same reference, that entry is
	// copied into entry and applied is false.
	Grant(ctx context.Context, entry *model.CreditEntry) (applied bool, err error)

	// FindByReference returns the entry for (store, reference) or nil
	FindByReference(ctx context.Context, storeID uuid.UUID, referenceID string) (*model.CreditEntry, error)

	// ListEntries returns the newest entries of an account first
	ListEntries(ctx context.Context, storeID, accountID uuid.UUID, limit int) ([]*model.CreditEntry, error)
}

// SubscriptionRepository defines persistence for paid plans
type SubscriptionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Subscription, error)

	// FindActive returns the customer's active subscription to a plan
	FindActive(ctx context.Context, storeID uuid.UUID, customerRef, planCode string) (*model.Subscription, error)

	Create(ctx context.Context, sub *model.Subscription) error

	Update(ctx context.Context, sub *model.Subscription) error
}
