package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

// RefundInput is a staff-initiated refund request.
type RefundInput struct {
	StoreSlug string
	// StaffStoreID is the store the authenticated staff member belongs to
	StaffStoreID   uuid.UUID
	OrderID        uuid.UUID
	Amount         string
	Reason         string
	ProcessedByID  string
	IdempotencyKey string
}

type RefundOutput struct {
	RefundID           uuid.UUID
	TransactionID      uuid.UUID
	ProviderRefundID   string
	RefundedAmount     money.Money
	NewFinancialStatus model.FinancialStatus
}

type RefundService struct {
	repos     *repository.Repositories
	tx        repository.Transactor
	providers *provider.Registry
	logger    *zap.Logger
	now       func() time.Time
}

func NewRefundService(repos *repository.Repositories, tx repository.Transactor, providers *provider.Registry, logger *zap.Logger) *RefundService {
	return &RefundService{
		repos:     repos,
		tx:        tx,
		providers: providers,
		logger:    logger,
		now:       utcNow,
	}
}

// Refund returns money for a settled order. The balance is re-checked under
// the order lock with in-flight refunds reserved, so concurrent requests can
// never refund more than was charged.
func (s *RefundService) Refund(ctx context.Context, in RefundInput) (*RefundOutput, error) {
	store, err := resolveStore(ctx, s.repos.Stores, in.StoreSlug)
	if err != nil {
		return nil, err
	}
	if store.ID != in.StaffStoreID {
		return nil, domainerrors.ErrStoreMismatch
	}

	order, err := s.repos.Orders.GetByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.StoreID != store.ID {
		return nil, domainerrors.ErrOrderNotFound
	}

	amount, err := money.Parse(in.Amount, order.Currency)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: refund amount must be positive", money.ErrInvalidAmount)
	}

	if in.IdempotencyKey != "" {
		prior, err := s.repos.Refunds.FindByIdempotencyKey(ctx, order.ID, in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if prior != nil && prior.Status == model.RefundStatusCompleted {
			return nil, fmt.Errorf("%w: refund %s already completed for this key", domainerrors.ErrAlreadyProcessed, prior.ID)
		}
	}

	charge, err := s.repos.Transactions.FindSuccessfulCharge(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if charge == nil {
		if order.FinancialStatus.Refundable() {
			return nil, domainerrors.ErrChargeNotFound
		}
		return nil, domainerrors.ErrOrderNotRefundable
	}

	t, ok := provider.ParseType(charge.Provider)
	if !ok {
		return nil, domainerrors.ErrUnsupportedProvider
	}
	adapter, err := s.providers.Get(t)
	if err != nil {
		return nil, err
	}
	providerCfg, cfg, err := resolveProviderConfig(ctx, s.repos.ProviderConfigs, store.ID, t)
	if err != nil {
		return nil, err
	}

	refundKey := in.IdempotencyKey
	if refundKey == "" {
		refundKey = uuid.NewString()
	}

	ledger, err := s.reserve(ctx, store, in, amount, charge, providerCfg.ID, refundKey)
	if err != nil {
		return nil, err
	}

	req := provider.RefundRequest{
		ProviderTransactionID: deref(charge.ProviderTransactionID),
		Amount:                amount,
		Reason:                in.Reason,
		IdempotencyKey:        refundKey,
	}
	if charge.PendingPaymentID != nil {
		if pending, err := s.repos.PendingPayments.GetByID(ctx, *charge.PendingPaymentID); err == nil && pending != nil && pending.ProviderOrderID != nil {
			req.ProviderOrderID = *pending.ProviderOrderID
		}
	}

	result, providerErr := adapter.Refund(ctx, cfg, req)
	if providerErr != nil {
		s.logger.Warn("Provider refund failed",
			zap.String("order_id", order.ID.String()),
			zap.String("transaction_id", ledger.ID.String()),
			zap.String("amount", amount.Display()),
			zap.Error(providerErr))
		if err := s.fail(ctx, store, in, ledger, amount, providerErr); err != nil {
			s.logger.Error("Failed to record failed refund",
				zap.String("transaction_id", ledger.ID.String()),
				zap.Error(err))
		}
		return nil, providerErr
	}

	out, err := s.complete(ctx, store, in, ledger, amount, result)
	if err != nil {
		// the provider has refunded; the pending ledger row keeps the balance reserved
		s.logger.Error("Refund succeeded at provider but could not be recorded",
			zap.String("order_id", order.ID.String()),
			zap.String("transaction_id", ledger.ID.String()),
			zap.String("provider_refund_id", result.ProviderRefundID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Refund completed",
		zap.String("store", store.Slug),
		zap.String("order_id", order.ID.String()),
		zap.String("amount", amount.Display()),
		zap.String("financial_status", string(out.NewFinancialStatus)),
		zap.String("processed_by", in.ProcessedByID))
	return out, nil
}

// reserve validates the request under the order lock and writes the pending
// refund ledger row.
func (s *RefundService) reserve(ctx context.Context, store *model.Store, in RefundInput, amount money.Money, charge *model.PaymentTransaction, configID uuid.UUID, refundKey string) (*model.PaymentTransaction, error) {
	var ledger *model.PaymentTransaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		order, err := repos.Orders.GetForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domainerrors.ErrOrderNotFound
		}
		if order.FinancialStatus == model.FinancialStatusRefunded {
			return domainerrors.ErrNothingToRefund
		}
		if !order.FinancialStatus.Refundable() {
			return fmt.Errorf("%w: order is %s", domainerrors.ErrOrderNotRefundable, order.FinancialStatus)
		}

		entries, err := repos.Transactions.ListByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		balance := RefundableBalance(order, entries)
		if balance.IsZero() {
			return domainerrors.ErrNothingToRefund
		}
		cmp, err := amount.Cmp(balance)
		if err != nil {
			return err
		}
		if cmp > 0 {
			// a retry of a refund that already went through lands here
			if t := SumLedger(entries); t.Refunded+t.PendingRefunds > 0 {
				return fmt.Errorf("%w: requested %s, %s left after earlier refunds", domainerrors.ErrAlreadyProcessed, amount.Display(), balance.Display())
			}
			return fmt.Errorf("%w: requested %s, refundable %s", domainerrors.ErrRefundExceedsBalance, amount.Display(), balance.Display())
		}

		ledger = &model.PaymentTransaction{
			StoreID:             store.ID,
			OrderID:             &order.ID,
			Provider:            charge.Provider,
			ProviderConfigID:    &configID,
			Type:                model.TransactionKindRefund,
			Status:              model.TransactionStatusPending,
			Amount:              amount.Amount,
			Currency:            amount.Currency,
			ProviderRequestID:   &refundKey,
			ParentTransactionID: &charge.ID,
			Metadata: datatypes.NewJSONType(model.TransactionMetadata{
				Reason:        in.Reason,
				ProcessedByID: in.ProcessedByID,
			}),
		}
		return repos.Transactions.Create(ctx, ledger)
	})
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

func (s *RefundService) complete(ctx context.Context, store *model.Store, in RefundInput, ledger *model.PaymentTransaction, amount money.Money, result *provider.RefundResult) (*RefundOutput, error) {
	now := s.now()
	out := &RefundOutput{
		TransactionID:    ledger.ID,
		ProviderRefundID: result.ProviderRefundID,
		RefundedAmount:   amount,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		moved, err := repos.Transactions.Finalize(ctx, ledger.ID, model.TransactionResult{
			Status:                model.TransactionStatusSuccess,
			ProviderTransactionID: strPtr(result.ProviderRefundID),
			ProcessedAt:           now,
		})
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: refund transaction %s", domainerrors.ErrAlreadyProcessed, ledger.ID)
		}

		refund := &model.Refund{
			StoreID:        store.ID,
			OrderID:        in.OrderID,
			TransactionID:  ledger.ID,
			Amount:         amount.Amount,
			Currency:       amount.Currency,
			Reason:         in.Reason,
			Status:         model.RefundStatusCompleted,
			ProcessedByID:  in.ProcessedByID,
			IdempotencyKey: strPtr(in.IdempotencyKey),
			ProcessedAt:    now,
		}
		if err := repos.Refunds.Create(ctx, refund); err != nil {
			return err
		}

		order, err := recomputeFinancialStatus(ctx, repos, in.OrderID, now)
		if err != nil {
			return err
		}

		event, err := model.NewOutboxEvent(store.ID, model.EventOrderRefunded, map[string]interface{}{
			"orderId":         order.ID,
			"orderNumber":     order.OrderNumber,
			"refundId":        refund.ID,
			"transactionId":   ledger.ID,
			"amount":          amount.String(),
			"currency":        amount.Currency,
			"reason":          in.Reason,
			"financialStatus": order.FinancialStatus,
		}, now)
		if err != nil {
			return err
		}
		if err := repos.Outbox.Enqueue(ctx, event); err != nil {
			return err
		}

		out.RefundID = refund.ID
		out.NewFinancialStatus = order.FinancialStatus
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// fail finalises the ledger row as failed and keeps a failed Refund record
// carrying the provider's reason. The order is left untouched.
func (s *RefundService) fail(ctx context.Context, store *model.Store, in RefundInput, ledger *model.PaymentTransaction, amount money.Money, providerErr error) error {
	now := s.now()
	code, message := "provider_error", providerErr.Error()
	if pe, ok := domainerrors.AsProviderError(providerErr); ok {
		code, message = pe.Code, pe.Message
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		if _, err := repos.Transactions.Finalize(ctx, ledger.ID, model.TransactionResult{
			Status:       model.TransactionStatusFailed,
			ErrorCode:    strPtr(code),
			ErrorMessage: strPtr(message),
			ProcessedAt:  now,
		}); err != nil {
			return err
		}
		return repos.Refunds.Create(ctx, &model.Refund{
			StoreID:        store.ID,
			OrderID:        in.OrderID,
			TransactionID:  ledger.ID,
			Amount:         amount.Amount,
			Currency:       amount.Currency,
			Reason:         in.Reason,
			Status:         model.RefundStatusFailed,
			ProcessedByID:  in.ProcessedByID,
			IdempotencyKey: strPtr(in.IdempotencyKey),
			ProcessedAt:    now,
		})
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
