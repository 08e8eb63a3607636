package usecase

import (
	"context"
	"encoding/json"
	"errors"
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
	"github.com/wekeepgrowing/paycore/internal/usecase/issuance"
)

// Reasons recorded on no-op reconciliations.
const (
	noopDuplicate       = "duplicate"
	noopLateConflicting = "late_conflicting"
	noopInFlight        = "in_flight"
	noopProviderPending = "provider_pending"
	noopConcurrent      = "concurrent_winner"
	noopOrderPaid       = "order_already_paid"

	errorCodeAmountMismatch = "amount_mismatch"
)

// errSettledConcurrently rolls back a transaction that lost the race.
var errSettledConcurrently = errors.New("pending payment settled concurrently")

// ReconcileInput is one inbound provider notification.
type ReconcileInput struct {
	StoreSlug    string
	Provider     provider.Type
	Notification *provider.Notification
	Source       CallbackSource
	RemoteIP     string
	RawPayload   []byte
}

// ReconcileResult describes what the reconciliation did.
type ReconcileResult struct {
	Outcome          model.CallbackOutcome
	Detail           string
	Store            *model.Store
	PendingPaymentID uuid.UUID
	PendingStatus    model.PendingPaymentStatus
	OrderID          *uuid.UUID
	TransactionID    *uuid.UUID
	FinancialStatus  model.FinancialStatus
	Amount           money.Money
	ErrorCode        string
	Message          string
}

// Settled reports whether the pending payment ended up paid.
func (r *ReconcileResult) Settled() bool {
	return r.PendingStatus == model.PendingStatusCompleted
}

// ReconcileService applies provider outcomes to the ledger, the order state
// machine and the outbox, exactly once per pending payment.
type ReconcileService struct {
	repos     *repository.Repositories
	tx        repository.Transactor
	providers *provider.Registry
	issuers   *issuance.Registry
	lock      InFlightLock
	logger    *zap.Logger
	now       func() time.Time
}

func NewReconcileService(
	repos *repository.Repositories,
	tx repository.Transactor,
	providers *provider.Registry,
	issuers *issuance.Registry,
	lock InFlightLock,
	logger *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		repos:     repos,
		tx:        tx,
		providers: providers,
		issuers:   issuers,
		lock:      lock,
		logger:    logger,
		now:       utcNow,
	}
}

// Reconcile handles a callback or redirect notification. The store comes
// from the route, never from the payload.
func (s *ReconcileService) Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	if in.Source == "" {
		in.Source = SourceWebhook
	}

	store, err := resolveStore(ctx, s.repos.Stores, in.StoreSlug)
	if err != nil {
		s.record(ctx, nil, in, model.CallbackOutcomeNotFound, "store not found")
		return nil, err
	}
	if in.Notification == nil {
		s.record(ctx, &store.ID, in, model.CallbackOutcomeInvalid, "empty notification")
		return nil, domainerrors.ErrInvalidCallback
	}

	pending, err := s.findPending(ctx, store.ID, in.Provider, in.Notification)
	if err != nil {
		s.record(ctx, &store.ID, in, model.CallbackOutcomeError, err.Error())
		return nil, err
	}
	if pending == nil {
		s.logger.Warn("Callback for unknown pending payment",
			zap.String("store", store.Slug),
			zap.String("provider", string(in.Provider)),
			zap.String("transaction_ref", in.Notification.TransactionRef),
			zap.String("provider_order_id", in.Notification.ProviderOrderID))
		s.record(ctx, &store.ID, in, model.CallbackOutcomeNotFound, "pending payment not found")
		return nil, domainerrors.ErrPendingPaymentNotFound
	}

	return s.reconcilePending(ctx, store, pending, in)
}

// Poll asks a webhook-settled provider for the sale status and applies it.
func (s *ReconcileService) Poll(ctx context.Context, storeSlug string, pendingID uuid.UUID, remoteIP string) (*ReconcileResult, error) {
	store, err := resolveStore(ctx, s.repos.Stores, storeSlug)
	if err != nil {
		return nil, err
	}
	pending, err := s.repos.PendingPayments.GetByID(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	if pending == nil || pending.StoreID != store.ID {
		return nil, domainerrors.ErrPendingPaymentNotFound
	}
	if pending.Status.Terminal() {
		return s.terminalResult(ctx, store, pending, model.CallbackOutcomeNoop, noopDuplicate)
	}
	if pending.ProviderOrderID == nil {
		return nil, fmt.Errorf("%w: payment was not initiated with the provider", domainerrors.ErrNotReady)
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

	status, err := adapter.GetOrderStatus(ctx, cfg, *pending.ProviderOrderID)
	if err != nil {
		s.logger.Warn("Provider status poll failed",
			zap.String("pending_payment_id", pending.ID.String()),
			zap.Error(err))
		return nil, err
	}

	raw, _ := json.Marshal(status.Raw)
	return s.reconcilePending(ctx, store, pending, ReconcileInput{
		StoreSlug: store.Slug,
		Provider:  t,
		Source:    SourcePoll,
		RemoteIP:  remoteIP,
		Notification: &provider.Notification{
			TransactionRef:        pending.ProviderRequestID,
			ProviderOrderID:       status.ProviderOrderID,
			ProviderTransactionID: status.ProviderTransactionID,
			Outcome:               status.Outcome,
			StatusCode:            status.StatusCode,
			Amount:                status.Amount,
			RawFields:             status.Raw,
		},
		RawPayload: raw,
	})
}

func (s *ReconcileService) findPending(ctx context.Context, storeID uuid.UUID, t provider.Type, n *provider.Notification) (*model.PendingPayment, error) {
	if n.TransactionRef != "" {
		pending, err := s.repos.PendingPayments.FindByProviderRequest(ctx, storeID, string(t), n.TransactionRef)
		if err != nil || pending != nil {
			return pending, err
		}
	}
	if n.ProviderOrderID != "" {
		return s.repos.PendingPayments.FindByProviderOrder(ctx, storeID, string(t), n.ProviderOrderID)
	}
	return nil, nil
}

// reconcilePending runs steps 3 to 7 of the reconciliation for a resolved
// pending payment. Shared by callbacks, capture confirmation, polling and
// synchronous checkout.
func (s *ReconcileService) reconcilePending(ctx context.Context, store *model.Store, pending *model.PendingPayment, in ReconcileInput) (*ReconcileResult, error) {
	acquired, release, err := s.lockFor(ctx, pending.ID)
	if err != nil {
		return nil, err
	}
	defer release()
	if !acquired {
		s.logger.Info("Reconciliation already in flight",
			zap.String("pending_payment_id", pending.ID.String()),
			zap.String("source", string(in.Source)))
		s.record(ctx, &store.ID, in, model.CallbackOutcomeNoop, noopInFlight)
		return s.terminalResult(ctx, store, pending, model.CallbackOutcomeNoop, noopInFlight)
	}

	n := in.Notification
	now := s.now()

	if pending.Status.Terminal() {
		detail := noopDuplicate
		if !matches(pending.Status, n.Outcome) {
			detail = noopLateConflicting
			s.logger.Warn("Conflicting notification for settled payment ignored",
				zap.String("pending_payment_id", pending.ID.String()),
				zap.String("pending_status", string(pending.Status)),
				zap.String("outcome", string(n.Outcome)),
				zap.String("source", string(in.Source)))
		}
		s.record(ctx, &store.ID, in, model.CallbackOutcomeNoop, detail)
		return s.terminalResult(ctx, store, pending, model.CallbackOutcomeNoop, detail)
	}

	if pending.Expired(now) {
		s.logger.Info("Notification for expired pending payment ignored",
			zap.String("pending_payment_id", pending.ID.String()),
			zap.Time("expires_at", pending.ExpiresAt))
		s.record(ctx, &store.ID, in, model.CallbackOutcomeExpired, "pending payment expired")
		return s.terminalResult(ctx, store, pending, model.CallbackOutcomeExpired, "expired")
	}

	var result *ReconcileResult
	switch n.Outcome {
	case provider.OutcomeApproved:
		result, err = s.applyApproved(ctx, store, pending, in, now)
	case provider.OutcomeDeclined:
		result, err = s.applyDeclined(ctx, store, pending, in, n.StatusCode, n.Message, now)
	default:
		s.record(ctx, &store.ID, in, model.CallbackOutcomeNoop, noopProviderPending)
		return s.terminalResult(ctx, store, pending, model.CallbackOutcomeNoop, noopProviderPending)
	}

	if errors.Is(err, errSettledConcurrently) {
		fresh, getErr := s.repos.PendingPayments.GetByID(ctx, pending.ID)
		if getErr != nil {
			return nil, getErr
		}
		s.record(ctx, &store.ID, in, model.CallbackOutcomeNoop, noopConcurrent)
		return s.terminalResult(ctx, store, fresh, model.CallbackOutcomeNoop, noopConcurrent)
	}
	if err != nil {
		s.logger.Error("Reconciliation failed",
			zap.String("pending_payment_id", pending.ID.String()),
			zap.String("outcome", string(n.Outcome)),
			zap.Error(err))
		s.record(ctx, &store.ID, in, model.CallbackOutcomeError, err.Error())
		return nil, err
	}

	detail := result.Detail
	if detail == "" {
		detail = string(result.PendingStatus)
	}
	s.record(ctx, &store.ID, in, result.Outcome, detail)
	return result, nil
}

func (s *ReconcileService) applyApproved(ctx context.Context, store *model.Store, pending *model.PendingPayment, in ReconcileInput, now time.Time) (*ReconcileResult, error) {
	n := in.Notification
	expected := pending.Money()
	if n.Amount != nil && !n.Amount.Equal(expected) {
		s.logger.Error("Provider reported a different amount than was initiated",
			zap.String("pending_payment_id", pending.ID.String()),
			zap.String("expected", expected.Display()),
			zap.String("received", n.Amount.Display()))
		msg := fmt.Sprintf("expected %s, provider reported %s", expected.Display(), n.Amount.Display())
		return s.applyDeclined(ctx, store, pending, in, errorCodeAmountMismatch, msg, now)
	}

	purpose, err := pending.DecodePurpose()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPurpose, err)
	}

	result := &ReconcileResult{
		Outcome:          model.CallbackOutcomeApplied,
		Store:            store,
		PendingPaymentID: pending.ID,
		PendingStatus:    model.PendingStatusCompleted,
		Amount:           expected,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		locked, err := repos.PendingPayments.GetForUpdate(ctx, pending.ID)
		if err != nil {
			return err
		}
		if locked == nil || locked.Status.Terminal() {
			return errSettledConcurrently
		}

		order, err := s.orderFor(ctx, repos, locked, purpose, now)
		if err != nil {
			return err
		}
		// a second capture for a paid order is recorded but settles nothing
		duplicate := order.FinancialStatus.Settled()

		moved, err := repos.PendingPayments.Transition(ctx, locked.ID,
			[]model.PendingPaymentStatus{model.PendingStatusPending, model.PendingStatusCaptured},
			model.PendingStatusCompleted, nil, now)
		if err != nil {
			return err
		}
		if !moved {
			return errSettledConcurrently
		}

		processedAt := now
		meta := model.TransactionMetadata{
			Source:          string(in.Source),
			ProviderStatus:  n.StatusCode,
			CaptureID:       n.ProviderTransactionID,
			ProviderDetails: n.RawFields,
		}
		if duplicate {
			meta.DuplicateOf = order.ID.String()
		}
		charge := &model.PaymentTransaction{
			StoreID:               store.ID,
			OrderID:               &order.ID,
			PendingPaymentID:      &locked.ID,
			Provider:              locked.Provider,
			Type:                  model.TransactionKindCharge,
			Status:                model.TransactionStatusSuccess,
			Amount:                locked.Amount,
			Currency:              locked.Currency,
			ProviderTransactionID: strPtr(n.ProviderTransactionID),
			ProviderRequestID:     strPtr(locked.ProviderRequestID),
			ProcessedAt:           &processedAt,
			Metadata:              datatypes.NewJSONType(meta),
		}
		if cfg, _ := repos.ProviderConfigs.GetActive(ctx, store.ID, locked.Provider); cfg != nil {
			charge.ProviderConfigID = &cfg.ID
		}
		if err := repos.Transactions.Create(ctx, charge); err != nil {
			return err
		}

		result.OrderID = &order.ID
		result.TransactionID = &charge.ID
		if duplicate {
			result.Outcome = model.CallbackOutcomeNoop
			result.Detail = noopOrderPaid
			result.FinancialStatus = order.FinancialStatus
			return s.enqueue(ctx, repos, store.ID, model.EventPaymentDuplicate, map[string]interface{}{
				"orderId":          order.ID,
				"orderNumber":      order.OrderNumber,
				"storeId":          store.ID,
				"pendingPaymentId": locked.ID,
				"transactionId":    charge.ID,
				"provider":         locked.Provider,
				"amount":           expected.String(),
				"currency":         expected.Currency,
				"financialStatus":  order.FinancialStatus,
			}, now)
		}

		order, err = recomputeFinancialStatus(ctx, repos, order.ID, now)
		if err != nil {
			return err
		}
		result.FinancialStatus = order.FinancialStatus

		locked.Status = model.PendingStatusCompleted
		locked.OrderID = &order.ID
		s.issue(ctx, repos, store, issuance.SettledPayment{
			Pending:     locked,
			Purpose:     purpose,
			Order:       order,
			Transaction: charge,
			SettledAt:   now,
		})

		return s.enqueue(ctx, repos, store.ID, model.EventOrderPaid, map[string]interface{}{
			"orderId":          order.ID,
			"orderNumber":      order.OrderNumber,
			"storeId":          store.ID,
			"storeSlug":        store.Slug,
			"pendingPaymentId": locked.ID,
			"transactionId":    charge.ID,
			"provider":         locked.Provider,
			"amount":           expected.String(),
			"currency":         expected.Currency,
			"financialStatus":  order.FinancialStatus,
			"customerRef":      locked.CustomerRef,
			"purpose":          locked.PurposeType,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	if result.Detail == noopOrderPaid {
		s.logger.Warn("Payment captured for an order that was already paid",
			zap.String("store", store.Slug),
			zap.String("pending_payment_id", pending.ID.String()),
			zap.String("order_id", result.OrderID.String()),
			zap.String("amount", expected.Display()),
			zap.String("source", string(in.Source)))
		return result, nil
	}

	s.logger.Info("Payment settled",
		zap.String("store", store.Slug),
		zap.String("pending_payment_id", pending.ID.String()),
		zap.String("order_id", result.OrderID.String()),
		zap.String("amount", expected.Display()),
		zap.String("source", string(in.Source)))
	return result, nil
}

// issue runs the purpose hook in a savepoint. A failing hook rolls back only
// its own writes; the charge stands and an issuance.failed event is queued
// for follow-up.
func (s *ReconcileService) issue(ctx context.Context, repos *repository.Repositories, store *model.Store, settled issuance.SettledPayment) {
	err := repos.Tx.WithinTx(ctx, func(ctx context.Context, hookRepos *repository.Repositories) error {
		return s.issuers.Issue(ctx, hookRepos, settled)
	})
	if err == nil {
		return
	}

	s.logger.Error("Issuance failed after settlement",
		zap.String("store", store.Slug),
		zap.String("pending_payment_id", settled.Pending.ID.String()),
		zap.String("purpose", string(settled.Pending.PurposeType)),
		zap.Error(err))
	if enqErr := s.enqueue(ctx, repos, store.ID, model.EventIssuanceFailed, map[string]interface{}{
		"orderId":          settled.Order.ID,
		"pendingPaymentId": settled.Pending.ID,
		"transactionId":    settled.Transaction.ID,
		"purpose":          settled.Pending.PurposeType,
		"error":            err.Error(),
	}, settled.SettledAt); enqErr != nil {
		s.logger.Error("Failed to queue issuance failure", zap.Error(enqErr))
	}
}

func (s *ReconcileService) enqueue(ctx context.Context, repos *repository.Repositories, storeID uuid.UUID, eventType string, payload map[string]interface{}, now time.Time) error {
	event, err := model.NewOutboxEvent(storeID, eventType, payload, now)
	if err != nil {
		return err
	}
	return repos.Outbox.Enqueue(ctx, event)
}

// orderFor returns the order a settled payment belongs to, creating one when
// the purpose does not reference an existing order.
func (s *ReconcileService) orderFor(ctx context.Context, repos *repository.Repositories, pending *model.PendingPayment, purpose model.Purpose, now time.Time) (*model.Order, error) {
	orderID := pending.OrderID
	if orderID == nil {
		if sp, ok := purpose.(model.StorefrontOrderPurpose); ok && sp.OrderID != nil {
			orderID = sp.OrderID
		}
	}

	if orderID != nil {
		order, err := repos.Orders.GetForUpdate(ctx, *orderID)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, domainerrors.ErrOrderNotFound
		}
		if order.StoreID != pending.StoreID {
			return nil, domainerrors.ErrStoreMismatch
		}
		if pending.OrderID == nil {
			if err := repos.PendingPayments.AttachOrder(ctx, pending.ID, order.ID); err != nil {
				return nil, err
			}
		}
		return order, nil
	}

	order := &model.Order{
		StoreID:         pending.StoreID,
		OrderNumber:     orderNumberFor(pending),
		CustomerRef:     pending.CustomerRef,
		TotalAmount:     pending.Amount,
		Currency:        pending.Currency,
		FinancialStatus: model.FinancialStatusPending,
	}
	if err := repos.Orders.Create(ctx, order); err != nil {
		return nil, err
	}
	if err := repos.PendingPayments.AttachOrder(ctx, pending.ID, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *ReconcileService) applyDeclined(ctx context.Context, store *model.Store, pending *model.PendingPayment, in ReconcileInput, code, message string, now time.Time) (*ReconcileResult, error) {
	n := in.Notification
	if code == "" {
		code = "declined"
	}

	result := &ReconcileResult{
		Outcome:          model.CallbackOutcomeApplied,
		Store:            store,
		PendingPaymentID: pending.ID,
		PendingStatus:    model.PendingStatusFailed,
		Amount:           pending.Money(),
		ErrorCode:        code,
		Message:          message,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		locked, err := repos.PendingPayments.GetForUpdate(ctx, pending.ID)
		if err != nil {
			return err
		}
		if locked == nil || locked.Status.Terminal() {
			return errSettledConcurrently
		}

		moved, err := repos.PendingPayments.Transition(ctx, locked.ID,
			[]model.PendingPaymentStatus{model.PendingStatusPending, model.PendingStatusCaptured},
			model.PendingStatusFailed, &code, now)
		if err != nil {
			return err
		}
		if !moved {
			return errSettledConcurrently
		}

		meta := model.TransactionMetadata{
			Source:          string(in.Source),
			ProviderStatus:  n.StatusCode,
			ProviderDetails: n.RawFields,
		}
		if code == errorCodeAmountMismatch && n.Amount != nil {
			expected, received := locked.Amount, n.Amount.Amount
			meta.ExpectedAmount = &expected
			meta.ReceivedAmount = &received
		}

		processedAt := now
		failed := &model.PaymentTransaction{
			StoreID:               store.ID,
			OrderID:               locked.OrderID,
			PendingPaymentID:      &locked.ID,
			Provider:              locked.Provider,
			Type:                  model.TransactionKindCharge,
			Status:                model.TransactionStatusFailed,
			Amount:                locked.Amount,
			Currency:              locked.Currency,
			ProviderTransactionID: strPtr(n.ProviderTransactionID),
			ProviderRequestID:     strPtr(locked.ProviderRequestID),
			ErrorCode:             &code,
			ErrorMessage:          strPtr(message),
			ProcessedAt:           &processedAt,
			Metadata:              datatypes.NewJSONType(meta),
		}
		if err := repos.Transactions.Create(ctx, failed); err != nil {
			return err
		}
		result.TransactionID = &failed.ID

		if locked.OrderID == nil {
			return nil
		}
		order, err := repos.Orders.GetForUpdate(ctx, *locked.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return nil
		}
		result.OrderID = &order.ID
		result.FinancialStatus = order.FinancialStatus

		// only an untouched order is cancelled; money already taken wins
		if order.FinancialStatus != model.FinancialStatusPending {
			return nil
		}
		if err := repos.Orders.UpdateFinancialStatus(ctx, order, model.FinancialStatusCancelled, now); err != nil {
			return err
		}
		result.FinancialStatus = order.FinancialStatus

		event, err := model.NewOutboxEvent(store.ID, model.EventOrderCancelled, map[string]interface{}{
			"orderId":          order.ID,
			"orderNumber":      order.OrderNumber,
			"pendingPaymentId": locked.ID,
			"reason":           code,
			"message":          message,
		}, now)
		if err != nil {
			return err
		}
		return repos.Outbox.Enqueue(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment declined",
		zap.String("store", store.Slug),
		zap.String("pending_payment_id", pending.ID.String()),
		zap.String("error_code", code),
		zap.String("source", string(in.Source)))
	return result, nil
}

// terminalResult describes the stored state without changing it.
func (s *ReconcileService) terminalResult(ctx context.Context, store *model.Store, pending *model.PendingPayment, outcome model.CallbackOutcome, detail string) (*ReconcileResult, error) {
	result := &ReconcileResult{
		Outcome:          outcome,
		Detail:           detail,
		Store:            store,
		PendingPaymentID: pending.ID,
		PendingStatus:    pending.Status,
		OrderID:          pending.OrderID,
		Amount:           pending.Money(),
	}
	if pending.ErrorCode != nil {
		result.ErrorCode = *pending.ErrorCode
	}

	if pending.Status == model.PendingStatusCompleted {
		charge, err := s.repos.Transactions.FindSuccessfulChargeForPending(ctx, pending.ID)
		if err != nil {
			return nil, err
		}
		if charge != nil {
			result.TransactionID = &charge.ID
			if result.OrderID == nil {
				result.OrderID = charge.OrderID
			}
		}
	}
	if result.OrderID != nil {
		order, err := s.repos.Orders.GetByID(ctx, *result.OrderID)
		if err != nil {
			return nil, err
		}
		if order != nil {
			result.FinancialStatus = order.FinancialStatus
		}
	}
	return result, nil
}

func (s *ReconcileService) lockFor(ctx context.Context, pendingID uuid.UUID) (bool, func(), error) {
	if s.lock == nil {
		return true, func() {}, nil
	}
	return s.lock.Acquire(ctx, "reconcile:"+pendingID.String())
}

// record appends the callback log row. Failing to log never fails the callback.
func (s *ReconcileService) record(ctx context.Context, storeID *uuid.UUID, in ReconcileInput, outcome model.CallbackOutcome, detail string) {
	entry := &model.ProviderCallbackLog{
		ID:         uuid.New(),
		StoreID:    storeID,
		Provider:   string(in.Provider),
		Source:     string(in.Source),
		Outcome:    outcome,
		Detail:     truncate(detail, 500),
		RawPayload: rawPayload(in),
		RemoteIP:   in.RemoteIP,
	}
	if in.Notification != nil {
		entry.TransactionRef = in.Notification.TransactionRef
		if entry.TransactionRef == "" {
			entry.TransactionRef = in.Notification.ProviderOrderID
		}
		entry.ProviderStatus = in.Notification.StatusCode
	}
	if err := s.repos.CallbackLogs.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to record provider callback", zap.Error(err))
	}
}

func rawPayload(in ReconcileInput) datatypes.JSON {
	if len(in.RawPayload) > 0 && json.Valid(in.RawPayload) {
		return datatypes.JSON(in.RawPayload)
	}
	fields := map[string]string{}
	if in.Notification != nil {
		for k, v := range in.Notification.RawFields {
			fields[k] = v
		}
	}
	if len(in.RawPayload) > 0 {
		fields["_body"] = truncate(string(in.RawPayload), 4000)
	}
	raw, _ := json.Marshal(fields)
	return datatypes.JSON(raw)
}

// matches reports whether a notification agrees with the stored terminal state.
func matches(status model.PendingPaymentStatus, outcome provider.Outcome) bool {
	switch status {
	case model.PendingStatusCompleted:
		return outcome == provider.OutcomeApproved || outcome == provider.OutcomePending
	case model.PendingStatusFailed:
		return outcome == provider.OutcomeDeclined || outcome == provider.OutcomePending
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
