package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/infrastructure/provider/gateway"
)

const (
	providerName = string(provider.TypeStripe)

	// metadataRequestID carries our providerRequestId on the PaymentIntent
	metadataRequestID = "provider_request_id"
)

type credentials struct {
	SecretKey      string `json:"secret_key"`
	PublishableKey string `json:"publishable_key"`
}

// StripeProvider charges synchronously: the PaymentIntent is confirmed on
// creation with the payment method collected by the storefront.
type StripeProvider struct {
	baseURL string
	gateway *gateway.Client
	logger  *zap.Logger
}

// NewStripeProvider creates a Stripe adapter. baseURL overrides the API
// endpoint and is empty in production.
func NewStripeProvider(baseURL string, gw *gateway.Client, logger *zap.Logger) *StripeProvider {
	return &StripeProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		gateway: gw,
		logger:  logger,
	}
}

func (s *StripeProvider) Type() provider.Type { return provider.TypeStripe }

func (s *StripeProvider) Shape() provider.Shape { return provider.ShapeSyncCharge }

// api builds a client bound to the store's secret key.
func (s *StripeProvider) api(cfg provider.Config) (*client.API, error) {
	var creds credentials
	if len(cfg.Credentials) > 0 {
		if err := json.Unmarshal(cfg.Credentials, &creds); err != nil {
			return nil, domainerrors.NewConfigError(providerName, "invalid credentials")
		}
	}
	if creds.SecretKey == "" {
		return nil, domainerrors.NewConfigError(providerName, "secret key is not configured")
	}
	if cfg.TestMode && strings.HasPrefix(creds.SecretKey, "sk_live_") {
		return nil, domainerrors.NewConfigError(providerName, "live key configured for test mode")
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        s.gateway.HTTPClient(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		EnableTelemetry:   stripe.Bool(false),
	}
	if s.baseURL != "" {
		backendCfg.URL = stripe.String(s.baseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return client.New(creds.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	}), nil
}

// InitiatePayment creates and confirms a PaymentIntent.
func (s *StripeProvider) InitiatePayment(ctx context.Context, cfg provider.Config, req provider.InitiateRequest) (*provider.InitiateResult, error) {
	sc, err := s.api(cfg)
	if err != nil {
		return nil, err
	}
	if req.PaymentMethodID == "" {
		return nil, domainerrors.NewDeclineError(providerName, "payment_method_missing", "payment method is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount.Amount),
		Currency:      stripe.String(strings.ToLower(req.Amount.Currency)),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Confirm:       stripe.Bool(true),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	if req.ReturnURL != "" {
		params.ReturnURL = stripe.String(req.ReturnURL)
	}
	params.AddMetadata(metadataRequestID, req.ProviderRequestID)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey("pi-" + req.ProviderRequestID)
	params.Context = ctx

	var pi *stripe.PaymentIntent
	err = s.gateway.Execute(func() error {
		var callErr error
		pi, callErr = sc.PaymentIntents.New(params)
		return s.classify(callErr)
	})
	if err != nil {
		// card declines come back as 402 with the intent attached
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.PaymentIntent != nil {
			pi = stripeErr.PaymentIntent
		} else {
			return nil, err
		}
		if pe, ok := domainerrors.AsProviderError(err); ok && pe.Kind == domainerrors.ProviderErrorDecline {
			result := s.initiateResult(pi)
			result.Outcome = provider.OutcomeDeclined
			result.StatusCode = pe.Code
			result.DeclineMessage = pe.Message
			return result, nil
		}
		return nil, err
	}

	s.logger.Info("Stripe payment intent created",
		zap.String("payment_intent_id", pi.ID),
		zap.String("status", string(pi.Status)),
		zap.String("provider_request_id", req.ProviderRequestID))

	return s.initiateResult(pi), nil
}

func (s *StripeProvider) initiateResult(pi *stripe.PaymentIntent) *provider.InitiateResult {
	result := &provider.InitiateResult{
		ProviderOrderID:       pi.ID,
		ProviderTransactionID: chargeID(pi),
		Outcome:               outcomeOf(pi.Status),
		StatusCode:            string(pi.Status),
		Amount:                intentAmount(pi),
		Raw:                   rawFields(pi),
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		result.RedirectURL = pi.NextAction.RedirectToURL.URL
	}
	if pi.LastPaymentError != nil {
		result.DeclineMessage = pi.LastPaymentError.Msg
	}
	return result
}

// CaptureOrder is not part of the synchronous flow: intents are confirmed
// with automatic capture.
func (s *StripeProvider) CaptureOrder(ctx context.Context, cfg provider.Config, providerOrderID string) (*provider.CaptureResult, error) {
	return nil, fmt.Errorf("stripe capture: %w", domainerrors.ErrOperationNotSupported)
}

// GetOrderStatus retrieves the PaymentIntent.
func (s *StripeProvider) GetOrderStatus(ctx context.Context, cfg provider.Config, providerOrderID string) (*provider.OrderStatus, error) {
	sc, err := s.api(cfg)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	var pi *stripe.PaymentIntent
	err = s.gateway.Execute(func() error {
		var callErr error
		pi, callErr = sc.PaymentIntents.Get(providerOrderID, params)
		return s.classify(callErr)
	})
	if err != nil {
		return nil, err
	}

	return &provider.OrderStatus{
		ProviderOrderID:       pi.ID,
		ProviderTransactionID: chargeID(pi),
		StatusCode:            string(pi.Status),
		Outcome:               outcomeOf(pi.Status),
		Amount:                intentAmount(pi),
		Raw:                   rawFields(pi),
	}, nil
}

// Refund refunds a PaymentIntent, fully or partially.
func (s *StripeProvider) Refund(ctx context.Context, cfg provider.Config, req provider.RefundRequest) (*provider.RefundResult, error) {
	sc, err := s.api(cfg)
	if err != nil {
		return nil, err
	}

	params := &stripe.RefundParams{
		Amount: stripe.Int64(req.Amount.Amount),
	}
	if req.ProviderOrderID != "" {
		params.PaymentIntent = stripe.String(req.ProviderOrderID)
	} else {
		params.Charge = stripe.String(req.ProviderTransactionID)
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey("re-" + req.IdempotencyKey)
	}
	params.Context = ctx

	var refund *stripe.Refund
	err = s.gateway.Execute(func() error {
		var callErr error
		refund, callErr = sc.Refunds.New(params)
		return s.classify(callErr)
	})
	if err != nil {
		return nil, err
	}

	switch refund.Status {
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		reason := string(refund.FailureReason)
		if reason == "" {
			reason = string(refund.Status)
		}
		return nil, domainerrors.NewDeclineError(providerName, "refund_"+string(refund.Status), reason)
	}

	amount, err := money.New(refund.Amount, strings.ToUpper(string(refund.Currency)))
	if err != nil {
		amount = req.Amount
	}

	s.logger.Info("Stripe refund created",
		zap.String("refund_id", refund.ID),
		zap.String("status", string(refund.Status)),
		zap.Int64("amount", refund.Amount))

	return &provider.RefundResult{
		ProviderRefundID: refund.ID,
		Status:           string(refund.Status),
		Amount:           amount,
		ProcessedAt:      time.Unix(refund.Created, 0).UTC(),
	}, nil
}

// ParseCallback reads a payment_intent.* event body.
func (s *StripeProvider) ParseCallback(contentType string, body []byte, query url.Values) (*provider.Notification, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidCallback, err)
	}
	if event.Data == nil || !strings.HasPrefix(string(event.Type), "payment_intent.") {
		return nil, fmt.Errorf("%w: unsupported event type %q", domainerrors.ErrInvalidCallback, event.Type)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidCallback, err)
	}
	if pi.ID == "" {
		return nil, fmt.Errorf("%w: payment intent id missing", domainerrors.ErrInvalidCallback)
	}

	n := &provider.Notification{
		TransactionRef:        pi.Metadata[metadataRequestID],
		ProviderOrderID:       pi.ID,
		ProviderTransactionID: chargeID(&pi),
		Outcome:               outcomeOf(pi.Status),
		StatusCode:            string(pi.Status),
		Amount:                intentAmount(&pi),
		RawFields:             rawFields(&pi),
	}
	n.RawFields["event_type"] = string(event.Type)
	if pi.LastPaymentError != nil {
		n.Message = pi.LastPaymentError.Msg
	}
	return n, nil
}

// classify maps stripe-go errors onto provider error kinds.
func (s *StripeProvider) classify(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return domainerrors.NewRetryableError(providerName, "NETWORK_ERROR", "stripe request failed", err)
	}

	code := string(stripeErr.Code)
	if stripeErr.DeclineCode != "" {
		code = string(stripeErr.DeclineCode)
	}

	var pe *domainerrors.ProviderError
	switch {
	case stripeErr.HTTPStatusCode == 401 || stripeErr.HTTPStatusCode == 403:
		pe = domainerrors.NewConfigError(providerName, stripeErr.Msg)
	case stripeErr.HTTPStatusCode == 429 || stripeErr.HTTPStatusCode >= 500 || stripeErr.Type == stripe.ErrorTypeAPI:
		pe = domainerrors.NewRetryableError(providerName, code, stripeErr.Msg, nil)
	default:
		pe = domainerrors.NewDeclineError(providerName, code, stripeErr.Msg)
	}
	pe.StatusCode = stripeErr.HTTPStatusCode
	pe.Err = stripeErr

	s.logger.Warn("Stripe API error",
		zap.String("type", string(stripeErr.Type)),
		zap.String("code", code),
		zap.Int("status_code", stripeErr.HTTPStatusCode),
		zap.String("request_id", stripeErr.RequestID),
		zap.String("kind", string(pe.Kind)))

	return pe
}

func outcomeOf(status stripe.PaymentIntentStatus) provider.Outcome {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return provider.OutcomeApproved
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		return provider.OutcomeDeclined
	default:
		return provider.OutcomePending
	}
}

func chargeID(pi *stripe.PaymentIntent) string {
	if pi.LatestCharge != nil {
		return pi.LatestCharge.ID
	}
	return ""
}

func intentAmount(pi *stripe.PaymentIntent) *money.Money {
	if pi.Currency == "" {
		return nil
	}
	received := pi.Amount
	if pi.AmountReceived > 0 {
		received = pi.AmountReceived
	}
	m, err := money.New(received, strings.ToUpper(string(pi.Currency)))
	if err != nil {
		return nil
	}
	return &m
}

func rawFields(pi *stripe.PaymentIntent) map[string]string {
	raw := map[string]string{
		"payment_intent_id": pi.ID,
		"status":            string(pi.Status),
	}
	if pi.LatestCharge != nil {
		raw["charge_id"] = pi.LatestCharge.ID
	}
	if pi.LastPaymentError != nil {
		raw["error_code"] = string(pi.LastPaymentError.Code)
		raw["decline_code"] = string(pi.LastPaymentError.DeclineCode)
	}
	return raw
}
