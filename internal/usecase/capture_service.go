package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

// CaptureInput is a client confirmation of an approved redirect-flow order.
type CaptureInput struct {
	StoreSlug       string
	ProviderOrderID string
	PayerRef        string
	RemoteIP        string
}

// CaptureOutput mirrors the capture confirm response body.
type CaptureOutput struct {
	CaptureID       string
	TransactionID   string
	OrderID         string
	Amount          money.Money
	Status          model.PendingPaymentStatus
	FinancialStatus model.FinancialStatus
	// Replayed is set when the payment had already been settled
	Replayed bool
}

type CaptureService struct {
	repos      *repository.Repositories
	providers  *provider.Registry
	reconciler *ReconcileService
	logger     *zap.Logger
	now        func() time.Time
}

func NewCaptureService(repos *repository.Repositories, providers *provider.Registry, reconciler *ReconcileService, logger *zap.Logger) *CaptureService {
	return &CaptureService{
		repos:      repos,
		providers:  providers,
		reconciler: reconciler,
		logger:     logger,
		now:        utcNow,
	}
}

// Confirm captures a provider order on behalf of the buying client. A second
// confirmation of the same order returns the first result without calling
// the provider again.
func (s *CaptureService) Confirm(ctx context.Context, in CaptureInput) (*CaptureOutput, error) {
	if in.ProviderOrderID == "" {
		return nil, fmt.Errorf("%w: providerOrderId is required", domainerrors.ErrInvalidCallback)
	}

	store, err := resolveStore(ctx, s.repos.Stores, in.StoreSlug)
	if err != nil {
		return nil, err
	}

	pending, err := s.findByProviderOrder(ctx, store, in.ProviderOrderID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, fmt.Errorf("%w: provider order %s", domainerrors.ErrPendingPaymentNotFound, in.ProviderOrderID)
	}

	switch pending.Status {
	case model.PendingStatusCompleted:
		return s.priorResult(ctx, store, pending)
	case model.PendingStatusFailed:
		return nil, fmt.Errorf("%w: payment already failed", domainerrors.ErrAlreadyProcessed)
	}
	if pending.Expired(s.now()) {
		s.logger.Info("Capture requested for expired pending payment",
			zap.String("store", store.Slug),
			zap.String("pending_payment_id", pending.ID.String()),
			zap.Time("expires_at", pending.ExpiresAt))
		return nil, fmt.Errorf("%w: checkout expired at %s", domainerrors.ErrPaymentExpired, pending.ExpiresAt.Format(time.RFC3339))
	}

	t, ok := provider.ParseType(pending.Provider)
	if !ok {
		return nil, domainerrors.ErrUnsupportedProvider
	}
	adapter, err := s.providers.Get(t)
	if err != nil {
		return nil, err
	}
	_, cfg, err := resolveProviderConfig(ctx, s.repos.ProviderConfigs, store.ID, t)
	if err != nil {
		return nil, err
	}

	capture, err := adapter.CaptureOrder(ctx, cfg, in.ProviderOrderID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotReady) {
			s.logger.Info("Capture requested before approval",
				zap.String("store", store.Slug),
				zap.String("provider_order_id", in.ProviderOrderID))
			return nil, err
		}
		if domainerrors.IsDecline(err) {
			pe, _ := domainerrors.AsProviderError(err)
			if _, recErr := s.reconciler.reconcilePending(ctx, store, pending, ReconcileInput{
				StoreSlug: store.Slug,
				Provider:  t,
				Source:    SourceConfirm,
				RemoteIP:  in.RemoteIP,
				Notification: &provider.Notification{
					TransactionRef:  pending.ProviderRequestID,
					ProviderOrderID: in.ProviderOrderID,
					Outcome:         provider.OutcomeDeclined,
					StatusCode:      pe.Code,
					Message:         pe.Message,
				},
			}); recErr != nil {
				s.logger.Error("Failed to record declined capture", zap.Error(recErr))
			}
			return nil, err
		}
		// retryable: nothing is written, the client may confirm again
		s.logger.Warn("Capture failed",
			zap.String("store", store.Slug),
			zap.String("provider_order_id", in.ProviderOrderID),
			zap.Error(err))
		return nil, err
	}

	// money has moved; the row no longer expires even if settling fails below
	if capture.Outcome == provider.OutcomeApproved && pending.Status == model.PendingStatusPending {
		moved, err := s.repos.PendingPayments.Transition(ctx, pending.ID,
			[]model.PendingPaymentStatus{model.PendingStatusPending}, model.PendingStatusCaptured, nil, s.now())
		if err != nil {
			return nil, err
		}
		if moved {
			pending.Status = model.PendingStatusCaptured
		}
	}

	raw, _ := json.Marshal(capture.Raw)
	result, err := s.reconciler.reconcilePending(ctx, store, pending, ReconcileInput{
		StoreSlug: store.Slug,
		Provider:  t,
		Source:    SourceConfirm,
		RemoteIP:  in.RemoteIP,
		Notification: &provider.Notification{
			TransactionRef:        pending.ProviderRequestID,
			ProviderOrderID:       capture.ProviderOrderID,
			ProviderTransactionID: capture.CaptureID,
			Outcome:               capture.Outcome,
			StatusCode:            capture.StatusCode,
			Amount:                capture.Amount,
			RawFields:             capture.Raw,
		},
		RawPayload: raw,
	})
	if err != nil {
		return nil, err
	}

	if result.PendingStatus == model.PendingStatusFailed {
		code := result.ErrorCode
		if code == "" {
			code = capture.StatusCode
		}
		return nil, domainerrors.NewDeclineError(string(t), code, result.Message)
	}
	if !result.Settled() {
		return nil, fmt.Errorf("%w: provider reports %s", domainerrors.ErrNotReady, capture.StatusCode)
	}

	out := toCaptureOutput(result)
	out.CaptureID = capture.CaptureID
	out.Replayed = capture.AlreadyCaptured || result.Outcome != model.CallbackOutcomeApplied
	s.logger.Info("Capture confirmed",
		zap.String("store", store.Slug),
		zap.String("provider_order_id", in.ProviderOrderID),
		zap.String("capture_id", capture.CaptureID),
		zap.Bool("replayed", out.Replayed))
	return out, nil
}

func (s *CaptureService) findByProviderOrder(ctx context.Context, store *model.Store, providerOrderID string) (*model.PendingPayment, error) {
	for _, t := range s.providers.Types() {
		adapter, err := s.providers.Get(t)
		if err != nil || adapter.Shape() != provider.ShapeRedirectCapture {
			continue
		}
		pending, err := s.repos.PendingPayments.FindByProviderOrder(ctx, store.ID, string(t), providerOrderID)
		if err != nil || pending != nil {
			return pending, err
		}
	}
	return nil, nil
}

// priorResult answers a repeated confirmation from the ledger.
func (s *CaptureService) priorResult(ctx context.Context, store *model.Store, pending *model.PendingPayment) (*CaptureOutput, error) {
	result, err := s.reconciler.terminalResult(ctx, store, pending, model.CallbackOutcomeNoop, noopDuplicate)
	if err != nil {
		return nil, err
	}
	out := toCaptureOutput(result)
	out.Replayed = true
	if result.TransactionID != nil {
		charge, err := s.repos.Transactions.GetByID(ctx, *result.TransactionID)
		if err != nil {
			return nil, err
		}
		if charge != nil && charge.ProviderTransactionID != nil {
			out.CaptureID = *charge.ProviderTransactionID
		}
	}
	return out, nil
}

func toCaptureOutput(r *ReconcileResult) *CaptureOutput {
	out := &CaptureOutput{
		Amount:          r.Amount,
		Status:          r.PendingStatus,
		FinancialStatus: r.FinancialStatus,
	}
	if r.TransactionID != nil {
		out.TransactionID = r.TransactionID.String()
	}
	if r.OrderID != nil {
		out.OrderID = r.OrderID.String()
	}
	return out
}
