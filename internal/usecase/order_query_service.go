package usecase

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

// OrderView is the merchant read model of one order.
type OrderView struct {
	Order             *model.Order
	Transactions      []*model.PaymentTransaction
	Refunds           []*model.Refund
	Charged           money.Money
	Refunded          money.Money
	RefundableBalance money.Money
}

type OrderQueryService struct {
	repos  *repository.Repositories
	logger *zap.Logger
}

func NewOrderQueryService(repos *repository.Repositories, logger *zap.Logger) *OrderQueryService {
	return &OrderQueryService{
		repos:  repos,
		logger: logger,
	}
}

// GetOrder loads an order with its ledger for the staff of the owning store.
func (s *OrderQueryService) GetOrder(ctx context.Context, storeSlug string, staffStoreID, orderID uuid.UUID) (*OrderView, error) {
	store, err := resolveStore(ctx, s.repos.Stores, storeSlug)
	if err != nil {
		return nil, err
	}
	if store.ID != staffStoreID {
		return nil, domainerrors.ErrStoreMismatch
	}

	order, err := s.repos.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.StoreID != store.ID {
		return nil, domainerrors.ErrOrderNotFound
	}

	entries, err := s.repos.Transactions.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	refunds, err := s.repos.Refunds.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	totals := SumLedger(entries)
	view := &OrderView{
		Order:             order,
		Transactions:      entries,
		Refunds:           refunds,
		Charged:           money.Money{Amount: totals.Charged, Currency: order.Currency},
		Refunded:          money.Money{Amount: totals.Refunded, Currency: order.Currency},
		RefundableBalance: money.Zero(order.Currency),
	}
	if order.FinancialStatus.Refundable() {
		view.RefundableBalance = RefundableBalance(order, entries)
	}

	s.logger.Debug("Order loaded",
		zap.String("order_id", order.ID.String()),
		zap.Int("transactions", len(entries)),
		zap.Int("refunds", len(refunds)))

	return view, nil
}
