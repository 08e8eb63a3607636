package issuance

import (
	"context"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

// StorefrontOrderHook has nothing to issue: fulfilment listens to order.paid.
type StorefrontOrderHook struct{}

func NewStorefrontOrderHook() *StorefrontOrderHook {
	return &StorefrontOrderHook{}
}

func (h *StorefrontOrderHook) Purpose() model.PurposeType { return model.PurposeStorefrontOrder }

func (h *StorefrontOrderHook) Issue(ctx context.Context, repos *repository.Repositories, settled SettledPayment) error {
	return nil
}
