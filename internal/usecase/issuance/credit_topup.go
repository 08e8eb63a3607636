package issuance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

// CreditTopupHook adds purchased credits to an account. The pending payment
// id is the ledger reference, so a second run grants nothing.
type CreditTopupHook struct {
	logger *zap.Logger
}

func NewCreditTopupHook(logger *zap.Logger) *CreditTopupHook {
	return &CreditTopupHook{logger: logger}
}

func (h *CreditTopupHook) Purpose() model.PurposeType { return model.PurposeCreditTopup }

func (h *CreditTopupHook) Issue(ctx context.Context, repos *repository.Repositories, settled SettledPayment) error {
	purpose, ok := settled.Purpose.(model.CreditTopupPurpose)
	if !ok {
		return fmt.Errorf("%w: expected credit top-up purpose", domainerrors.ErrInvalidPurpose)
	}
	if !purpose.Credits.IsPositive() {
		return fmt.Errorf("%w: credits must be positive", domainerrors.ErrInvalidPurpose)
	}

	entry := &model.CreditEntry{
		StoreID:     settled.Pending.StoreID,
		AccountID:   purpose.AccountID,
		Kind:        model.CreditEntryTopup,
		Amount:      purpose.Credits,
		Description: fmt.Sprintf("Credit top-up for order %s", settled.Order.OrderNumber),
		ReferenceID: settled.Pending.ID.String(),
	}
	applied, err := repos.Credits.Grant(ctx, entry)
	if err != nil {
		return err
	}
	if !applied {
		h.logger.Debug("Credit top-up already granted",
			zap.String("pending_payment_id", entry.ReferenceID),
			zap.Int64("entry_id", entry.ID))
		return nil
	}

	event, err := model.NewOutboxEvent(settled.Pending.StoreID, model.EventCreditsAdded, map[string]interface{}{
		"accountId":    purpose.AccountID,
		"credits":      entry.Amount.String(),
		"balanceAfter": entry.BalanceAfter.String(),
		"orderId":      settled.Order.ID,
		"entryId":      entry.ID,
	}, settled.SettledAt)
	if err != nil {
		return err
	}
	return repos.Outbox.Enqueue(ctx, event)
}
