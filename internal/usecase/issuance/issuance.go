// Package issuance runs the purpose-specific side effects of a settled
// payment. Hooks execute in a savepoint of the settlement transaction: a
// failing hook rolls back its own writes but never the charge. Hooks must
// be idempotent on their own.
package issuance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

// SettledPayment is what a hook gets to work with.
type SettledPayment struct {
	Pending     *model.PendingPayment
	Purpose     model.Purpose
	Order       *model.Order
	Transaction *model.PaymentTransaction
	SettledAt   time.Time
}

// Hook issues the goods a payment purpose stands for.
type Hook interface {
	Purpose() model.PurposeType
	Issue(ctx context.Context, repos *repository.Repositories, settled SettledPayment) error
}

// Registry maps each purpose type to its hook.
type Registry struct {
	hooks  map[model.PurposeType]Hook
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger, hooks ...Hook) *Registry {
	r := &Registry{hooks: make(map[model.PurposeType]Hook, len(hooks)), logger: logger}
	for _, h := range hooks {
		if _, ok := r.hooks[h.Purpose()]; ok {
			panic(fmt.Sprintf("issuance hook %s registered twice", h.Purpose()))
		}
		r.hooks[h.Purpose()] = h
	}
	return r
}

// DefaultRegistry wires a hook for every purpose type.
func DefaultRegistry(logger *zap.Logger) *Registry {
	return NewRegistry(logger,
		NewGiftCardHook(logger),
		NewCreditTopupHook(logger),
		NewSubscriptionHook(logger),
		NewStorefrontOrderHook(),
	)
}

// Issue dispatches to the hook for the payment's purpose.
func (r *Registry) Issue(ctx context.Context, repos *repository.Repositories, settled SettledPayment) error {
	t := settled.Pending.PurposeType
	switch t {
	case model.PurposeGiftCard, model.PurposeSubscription, model.PurposeStorefrontOrder, model.PurposeCreditTopup:
	default:
		return fmt.Errorf("%w: %s", domainerrors.ErrInvalidPurpose, t)
	}

	hook, ok := r.hooks[t]
	if !ok {
		return fmt.Errorf("no issuance hook registered for %s", t)
	}
	if settled.Purpose == nil {
		p, err := settled.Pending.DecodePurpose()
		if err != nil {
			return fmt.Errorf("%w: %v", domainerrors.ErrInvalidPurpose, err)
		}
		settled.Purpose = p
	}

	if err := hook.Issue(ctx, repos, settled); err != nil {
		r.logger.Error("Issuance hook failed",
			zap.String("purpose", string(t)),
			zap.String("pending_payment_id", settled.Pending.ID.String()),
			zap.Error(err))
		return err
	}
	return nil
}
