package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/paycore/internal/config"
	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

const defaultPendingTTL = 30 * time.Minute

// CheckoutInput starts a payment from the storefront.
type CheckoutInput struct {
	StoreSlug       string
	Provider        string
	Amount          string
	Currency        string
	CustomerRef     string
	Purpose         model.Purpose
	PaymentMethodID string
	ReturnURL       string
	CancelURL       string
	Language        string
	RemoteIP        string
}

type CheckoutOutput struct {
	PendingPaymentID  uuid.UUID
	ProviderRequestID string
	RedirectURL       string
	Status            model.PendingPaymentStatus
	OrderID           *uuid.UUID
	FinancialStatus   model.FinancialStatus
	Amount            money.Money
	ExpiresAt         time.Time
}

type CheckoutService struct {
	repos      *repository.Repositories
	providers  *provider.Registry
	reconciler *ReconcileService
	cfg        config.PaymentsConfig
	logger     *zap.Logger
	now        func() time.Time
}

func NewCheckoutService(repos *repository.Repositories, providers *provider.Registry, reconciler *ReconcileService, cfg config.PaymentsConfig, logger *zap.Logger) *CheckoutService {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = defaultPendingTTL
	}
	return &CheckoutService{
		repos:      repos,
		providers:  providers,
		reconciler: reconciler,
		cfg:        cfg,
		logger:     logger,
		now:        utcNow,
	}
}

// Initiate records the pending payment and asks the provider to start it.
// Synchronous providers settle before this returns; the others hand back a
// redirect URL and settle through callbacks or capture confirmation.
func (s *CheckoutService) Initiate(ctx context.Context, in CheckoutInput) (*CheckoutOutput, error) {
	store, err := resolveStore(ctx, s.repos.Stores, in.StoreSlug)
	if err != nil {
		return nil, err
	}

	t, ok := provider.ParseType(in.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedProvider, in.Provider)
	}
	adapter, err := s.providers.Get(t)
	if err != nil {
		return nil, err
	}
	_, cfg, err := resolveProviderConfig(ctx, s.repos.ProviderConfigs, store.ID, t)
	if err != nil {
		return nil, err
	}

	currency := in.Currency
	if currency == "" {
		currency = store.Currency
	}
	amount, err := money.Parse(in.Amount, currency)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", money.ErrInvalidAmount)
	}

	purpose := in.Purpose
	if purpose == nil {
		purpose = model.StorefrontOrderPurpose{}
	}
	orderID, err := s.checkPurpose(ctx, store, purpose, amount)
	if err != nil {
		return nil, err
	}

	now := s.now()
	pending := &model.PendingPayment{
		StoreID:           store.ID,
		Provider:          string(t),
		ProviderRequestID: uuid.NewString(),
		Amount:            amount.Amount,
		Currency:          amount.Currency,
		CustomerRef:       in.CustomerRef,
		Status:            model.PendingStatusPending,
		OrderID:           orderID,
		ExpiresAt:         now.Add(s.cfg.PendingTTL),
	}
	if err := pending.SetPurpose(purpose); err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPurpose, err)
	}
	if err := s.repos.PendingPayments.Create(ctx, pending); err != nil {
		return nil, err
	}

	req := provider.InitiateRequest{
		ProviderRequestID: pending.ProviderRequestID,
		Amount:            amount,
		Description:       describe(store, purpose),
		CustomerRef:       in.CustomerRef,
		PaymentMethodID:   in.PaymentMethodID,
		ReturnURL:         in.ReturnURL,
		CancelURL:         in.CancelURL,
		CallbackURL:       s.callbackURL(store, t, ""),
		Language:          in.Language,
		Metadata: map[string]string{
			"store":              store.Slug,
			"pending_payment_id": pending.ID.String(),
			"purpose":            string(purpose.PurposeType()),
		},
	}
	if strings.Contains(in.CustomerRef, "@") {
		req.CustomerEmail = in.CustomerRef
	}
	if adapter.Shape() == provider.ShapeWebhookSettlement {
		req.ReturnURL = s.callbackURL(store, t, "/return")
	}

	result, err := adapter.InitiatePayment(ctx, cfg, req)
	if err != nil {
		return nil, s.initiationFailed(ctx, store, pending, t, in.RemoteIP, err)
	}

	if result.ProviderOrderID != "" {
		if err := s.repos.PendingPayments.AttachProviderOrder(ctx, pending.ID, result.ProviderOrderID); err != nil {
			return nil, err
		}
		pending.ProviderOrderID = &result.ProviderOrderID
	}

	out := &CheckoutOutput{
		PendingPaymentID:  pending.ID,
		ProviderRequestID: pending.ProviderRequestID,
		RedirectURL:       result.RedirectURL,
		Status:            pending.Status,
		OrderID:           pending.OrderID,
		Amount:            amount,
		ExpiresAt:         pending.ExpiresAt,
	}

	if !result.Immediate() {
		s.logger.Info("Checkout initiated",
			zap.String("store", store.Slug),
			zap.String("provider", string(t)),
			zap.String("pending_payment_id", pending.ID.String()),
			zap.String("amount", amount.Display()))
		return out, nil
	}

	settled, err := s.reconciler.reconcilePending(ctx, store, pending, ReconcileInput{
		StoreSlug: store.Slug,
		Provider:  t,
		Source:    SourceConfirm,
		RemoteIP:  in.RemoteIP,
		Notification: &provider.Notification{
			TransactionRef:        pending.ProviderRequestID,
			ProviderOrderID:       result.ProviderOrderID,
			ProviderTransactionID: result.ProviderTransactionID,
			Outcome:               result.Outcome,
			StatusCode:            result.StatusCode,
			Amount:                result.Amount,
			Message:               result.DeclineMessage,
			RawFields:             result.Raw,
		},
	})
	if err != nil {
		return nil, err
	}
	if settled.PendingStatus == model.PendingStatusFailed {
		return nil, domainerrors.NewDeclineError(string(t), settled.ErrorCode, settled.Message)
	}

	out.Status = settled.PendingStatus
	out.OrderID = settled.OrderID
	out.FinancialStatus = settled.FinancialStatus
	return out, nil
}

// initiationFailed records a gateway decline on the pending payment. Retryable
// failures leave it pending for the sweeper.
func (s *CheckoutService) initiationFailed(ctx context.Context, store *model.Store, pending *model.PendingPayment, t provider.Type, remoteIP string, err error) error {
	pe, ok := domainerrors.AsProviderError(err)
	if !ok || pe.Kind != domainerrors.ProviderErrorDecline {
		s.logger.Warn("Checkout initiation failed",
			zap.String("store", store.Slug),
			zap.String("provider", string(t)),
			zap.String("pending_payment_id", pending.ID.String()),
			zap.Error(err))
		return err
	}

	if _, recErr := s.reconciler.reconcilePending(ctx, store, pending, ReconcileInput{
		StoreSlug: store.Slug,
		Provider:  t,
		Source:    SourceConfirm,
		RemoteIP:  remoteIP,
		Notification: &provider.Notification{
			TransactionRef: pending.ProviderRequestID,
			Outcome:        provider.OutcomeDeclined,
			StatusCode:     pe.Code,
			Message:        pe.Message,
		},
	}); recErr != nil {
		s.logger.Error("Failed to record declined initiation", zap.Error(recErr))
	}
	return err
}

// checkPurpose verifies that a referenced storefront order belongs to the
// store and is still awaiting payment of the same amount.
func (s *CheckoutService) checkPurpose(ctx context.Context, store *model.Store, purpose model.Purpose, amount money.Money) (*uuid.UUID, error) {
	sp, ok := purpose.(model.StorefrontOrderPurpose)
	if !ok || sp.OrderID == nil {
		return nil, nil
	}
	order, err := s.repos.Orders.GetByID(ctx, *sp.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.StoreID != store.ID {
		return nil, domainerrors.ErrOrderNotFound
	}
	if order.FinancialStatus != model.FinancialStatusPending {
		return nil, fmt.Errorf("%w: order is %s", domainerrors.ErrAlreadyProcessed, order.FinancialStatus)
	}
	if !order.Total().Equal(amount) {
		return nil, fmt.Errorf("%w: order total is %s", money.ErrInvalidAmount, order.Total().Display())
	}
	return &order.ID, nil
}

func (s *CheckoutService) callbackURL(store *model.Store, t provider.Type, suffix string) string {
	return strings.TrimRight(s.cfg.CallbackBaseURL, "/") + "/callbacks/" + store.Slug + "/" + string(t) + suffix
}

func describe(store *model.Store, purpose model.Purpose) string {
	switch p := purpose.(type) {
	case model.GiftCardPurpose:
		return store.Name + " gift card"
	case model.SubscriptionPurpose:
		return store.Name + " subscription " + p.PlanCode
	case model.CreditTopupPurpose:
		return store.Name + " credits"
	default:
		return store.Name + " order"
	}
}
