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

// SubscriptionHook extends a subscription by one paid period. The charge
// that paid for the period is remembered so a replay does not extend twice.
type SubscriptionHook struct {
	logger *zap.Logger
}

func NewSubscriptionHook(logger *zap.Logger) *SubscriptionHook {
	return &SubscriptionHook{logger: logger}
}

func (h *SubscriptionHook) Purpose() model.PurposeType { return model.PurposeSubscription }

func (h *SubscriptionHook) Issue(ctx context.Context, repos *repository.Repositories, settled SettledPayment) error {
	purpose, ok := settled.Purpose.(model.SubscriptionPurpose)
	if !ok {
		return fmt.Errorf("%w: expected subscription purpose", domainerrors.ErrInvalidPurpose)
	}
	if purpose.PeriodDays <= 0 {
		return fmt.Errorf("%w: period must be positive", domainerrors.ErrInvalidPurpose)
	}
	period := time.Duration(purpose.PeriodDays) * 24 * time.Hour
	chargeID := settled.Transaction.ID

	var (
		sub *model.Subscription
		err error
	)
	if purpose.SubscriptionID != nil {
		sub, err = repos.Subscriptions.GetByID(ctx, *purpose.SubscriptionID)
		if err == nil && sub != nil && sub.StoreID != settled.Pending.StoreID {
			return domainerrors.ErrStoreMismatch
		}
	} else {
		sub, err = repos.Subscriptions.FindActive(ctx, settled.Pending.StoreID, settled.Pending.CustomerRef, purpose.PlanCode)
	}
	if err != nil {
		return err
	}

	if sub == nil {
		sub = &model.Subscription{
			StoreID:                 settled.Pending.StoreID,
			CustomerRef:             settled.Pending.CustomerRef,
			PlanCode:                purpose.PlanCode,
			Status:                  model.SubscriptionStatusActive,
			CurrentPeriodStart:      settled.SettledAt,
			CurrentPeriodEnd:        settled.SettledAt.Add(period),
			LastChargeTransactionID: &chargeID,
		}
		if err := repos.Subscriptions.Create(ctx, sub); err != nil {
			return err
		}
	} else {
		if sub.LastChargeTransactionID != nil && *sub.LastChargeTransactionID == chargeID {
			return nil
		}
		start := sub.CurrentPeriodEnd
		if start.Before(settled.SettledAt) {
			// lapsed: the new period starts now
			start = settled.SettledAt
		}
		sub.Status = model.SubscriptionStatusActive
		sub.CurrentPeriodStart = start
		sub.CurrentPeriodEnd = start.Add(period)
		sub.CanceledAt = nil
		sub.LastChargeTransactionID = &chargeID
		if err := repos.Subscriptions.Update(ctx, sub); err != nil {
			return err
		}
	}

	h.logger.Info("Subscription period extended",
		zap.String("subscription_id", sub.ID.String()),
		zap.Time("current_period_end", sub.CurrentPeriodEnd))

	event, err := model.NewOutboxEvent(sub.StoreID, model.EventSubscriptionRenewed, map[string]interface{}{
		"subscriptionId":     sub.ID,
		"customerRef":        sub.CustomerRef,
		"planCode":           sub.PlanCode,
		"currentPeriodStart": sub.CurrentPeriodStart,
		"currentPeriodEnd":   sub.CurrentPeriodEnd,
		"orderId":            settled.Order.ID,
	}, settled.SettledAt)
	if err != nil {
		return err
	}
	return repos.Outbox.Enqueue(ctx, event)
}
