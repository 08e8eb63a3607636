package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

// LedgerTotals sums the successful rows of an order's ledger.
type LedgerTotals struct {
	Charged  int64
	Refunded int64
	// PendingRefunds counts refunds that are in flight with the provider
	PendingRefunds int64
}

// SumLedger totals successful charges and refunds. In-flight refunds are
// reported separately so balance checks can reserve them.
func SumLedger(entries []*model.PaymentTransaction) LedgerTotals {
	var t LedgerTotals
	for _, e := range entries {
		switch {
		case e.Type == model.TransactionKindCharge && e.Status == model.TransactionStatusSuccess:
			t.Charged += e.Amount
		case e.Type == model.TransactionKindRefund && e.Status == model.TransactionStatusSuccess:
			t.Refunded += e.Amount
		case e.Type == model.TransactionKindRefund && !e.Status.Terminal():
			t.PendingRefunds += e.Amount
		}
	}
	return t
}

// settledBase is the amount refunds are measured against: what was charged,
// capped at the order total. A duplicate capture past the total is not
// refundable through the order.
func settledBase(order *model.Order, t LedgerTotals) int64 {
	if order.TotalAmount > 0 && order.TotalAmount < t.Charged {
		return order.TotalAmount
	}
	return t.Charged
}

// DeriveFinancialStatus computes the order status from its ledger. The
// result depends only on the set of successful rows, never on arrival order.
func DeriveFinancialStatus(order *model.Order, entries []*model.PaymentTransaction) model.FinancialStatus {
	t := SumLedger(entries)
	switch {
	case t.Charged == 0:
		if order.FinancialStatus == model.FinancialStatusCancelled {
			return model.FinancialStatusCancelled
		}
		return model.FinancialStatusPending
	case t.Refunded == 0:
		return model.FinancialStatusPaid
	case t.Refunded < settledBase(order, t):
		return model.FinancialStatusPartiallyRefunded
	default:
		return model.FinancialStatusRefunded
	}
}

// CanTransition guards monotonicity: once money has been taken the order
// never returns to pending or cancelled.
func CanTransition(from, to model.FinancialStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case model.FinancialStatusPending:
		return true
	case model.FinancialStatusCancelled:
		// a late approval of a cancelled order is still real money
		return to == model.FinancialStatusPaid
	case model.FinancialStatusPaid:
		return to == model.FinancialStatusPartiallyRefunded || to == model.FinancialStatusRefunded
	case model.FinancialStatusPartiallyRefunded:
		return to == model.FinancialStatusRefunded
	case model.FinancialStatusRefunded:
		return false
	}
	return false
}

// RefundableBalance is the settled base minus refunded and in-flight refunds.
func RefundableBalance(order *model.Order, entries []*model.PaymentTransaction) money.Money {
	t := SumLedger(entries)
	remaining := settledBase(order, t) - t.Refunded - t.PendingRefunds
	if remaining < 0 {
		remaining = 0
	}
	return money.Money{Amount: remaining, Currency: order.Currency}
}

// recomputeFinancialStatus reloads the order under lock, derives the status
// from the full ledger and applies it. Must run inside a transaction.
func recomputeFinancialStatus(ctx context.Context, repos *repository.Repositories, orderID uuid.UUID, now time.Time) (*model.Order, error) {
	order, err := repos.Orders.GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domainerrors.ErrOrderNotFound
	}

	entries, err := repos.Transactions.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	next := DeriveFinancialStatus(order, entries)
	if next == order.FinancialStatus {
		return order, nil
	}
	if !CanTransition(order.FinancialStatus, next) {
		return nil, fmt.Errorf("illegal financial transition %s -> %s for order %s", order.FinancialStatus, next, order.ID)
	}
	if err := repos.Orders.UpdateFinancialStatus(ctx, order, next, now); err != nil {
		return nil, err
	}
	return order, nil
}
