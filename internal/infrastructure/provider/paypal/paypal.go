package paypal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/infrastructure/provider/gateway"
)

const (
	providerName = string(provider.TypePayPal)

	// refresh tokens slightly before PayPal expires them
	tokenSkew = 60 * time.Second
)

// PayPal order statuses
const (
	statusApproved  = "APPROVED"
	statusVoided    = "VOIDED"
	statusCompleted = "COMPLETED"
)

type credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	BaseURL      string `json:"base_url"`
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// PayPalProvider implements the redirect-then-capture flow on the Orders v2 API.
type PayPalProvider struct {
	baseURL string
	gateway *gateway.Client
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	tokens map[string]cachedToken
}

// NewPayPalProvider creates a PayPal adapter against baseURL
// (sandbox or live API root).
func NewPayPalProvider(baseURL string, gw *gateway.Client, logger *zap.Logger) *PayPalProvider {
	return &PayPalProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		gateway: gw,
		logger:  logger,
		now:     time.Now,
		tokens:  make(map[string]cachedToken),
	}
}

func (p *PayPalProvider) Type() provider.Type { return provider.TypePayPal }

func (p *PayPalProvider) Shape() provider.Shape { return provider.ShapeRedirectCapture }

func (p *PayPalProvider) credentials(cfg provider.Config) (credentials, error) {
	var creds credentials
	if len(cfg.Credentials) > 0 {
		if err := json.Unmarshal(cfg.Credentials, &creds); err != nil {
			return creds, domainerrors.NewConfigError(providerName, "invalid credentials")
		}
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return creds, domainerrors.NewConfigError(providerName, "client id and secret are required")
	}
	if creds.BaseURL == "" {
		creds.BaseURL = p.baseURL
	}
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	return creds, nil
}

// accessToken returns a cached client-credentials token, fetching a new one
// when missing or about to expire.
func (p *PayPalProvider) accessToken(ctx context.Context, creds credentials) (string, error) {
	key := creds.BaseURL + "|" + creds.ClientID

	p.mu.Lock()
	tok, ok := p.tokens[key]
	p.mu.Unlock()
	if ok && p.now().Before(tok.expiresAt) {
		return tok.value, nil
	}

	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds.ClientID+":"+creds.ClientSecret)))

	resp, err := p.gateway.PostForm(ctx, creds.BaseURL+"/v1/oauth2/token", header, url.Values{"grant_type": {"client_credentials"}})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		p.logger.Error("PayPal token request rejected", zap.Int("status_code", resp.StatusCode))
		return "", &domainerrors.ProviderError{
			Provider:   providerName,
			Kind:       domainerrors.ProviderErrorConfig,
			Code:       "AUTHENTICATION_FAILURE",
			Message:    "PayPal rejected the client credentials",
			StatusCode: resp.StatusCode,
			Err:        domainerrors.ErrProviderNotConfigured,
		}
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := resp.Decode(&body); err != nil || body.AccessToken == "" {
		return "", domainerrors.NewRetryableError(providerName, "INVALID_TOKEN_RESPONSE", "unexpected token response", err)
	}

	expiresAt := p.now().Add(time.Duration(body.ExpiresIn)*time.Second - tokenSkew)
	p.mu.Lock()
	p.tokens[key] = cachedToken{value: body.AccessToken, expiresAt: expiresAt}
	p.mu.Unlock()

	return body.AccessToken, nil
}

func (p *PayPalProvider) call(ctx context.Context, creds credentials, method, path, requestID string, in interface{}) (*gateway.Response, error) {
	token, err := p.accessToken(ctx, creds)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	if requestID != "" {
		header.Set("PayPal-Request-Id", requestID)
	}
	if method == http.MethodPost {
		header.Set("Prefer", "return=representation")
	}
	return p.gateway.DoJSON(ctx, method, creds.BaseURL+path, header, in)
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

func (a *amount) money() *money.Money {
	if a == nil || a.CurrencyCode == "" {
		return nil
	}
	m, err := money.Parse(a.Value, a.CurrencyCode)
	if err != nil {
		return nil
	}
	return &m
}

func toAmount(m money.Money) amount {
	return amount{CurrencyCode: m.Currency, Value: m.String()}
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type capture struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	CustomID string  `json:"custom_id"`
	Amount   *amount `json:"amount"`
}

type order struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []link `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string  `json:"reference_id"`
		CustomID    string  `json:"custom_id"`
		Amount      *amount `json:"amount"`
		Payments    struct {
			Captures []capture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (o *order) capture() *capture {
	for _, pu := range o.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			return &pu.Payments.Captures[0]
		}
	}
	return nil
}

func (o *order) amount() *money.Money {
	if c := o.capture(); c != nil && c.Amount != nil {
		return c.Amount.money()
	}
	if len(o.PurchaseUnits) > 0 {
		return o.PurchaseUnits[0].Amount.money()
	}
	return nil
}

func (o *order) approveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func (o *order) raw() map[string]string {
	raw := map[string]string{"order_id": o.ID, "status": o.Status}
	if c := o.capture(); c != nil {
		raw["capture_id"] = c.ID
		raw["capture_status"] = c.Status
	}
	return raw
}

// outcome maps an order (and its capture, if any) to a settlement outcome.
func (o *order) outcome() provider.Outcome {
	c := o.capture()
	switch o.Status {
	case statusCompleted:
		if c == nil {
			return provider.OutcomeApproved
		}
		return captureOutcome(c.Status)
	case statusVoided:
		return provider.OutcomeDeclined
	default:
		return provider.OutcomePending
	}
}

func captureOutcome(status string) provider.Outcome {
	switch status {
	case "COMPLETED":
		return provider.OutcomeApproved
	case "DECLINED", "FAILED":
		return provider.OutcomeDeclined
	default:
		return provider.OutcomePending
	}
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e *apiError) issue() string {
	if len(e.Details) > 0 {
		return e.Details[0].Issue
	}
	return e.Name
}

func (p *PayPalProvider) apiError(resp *gateway.Response) *domainerrors.ProviderError {
	var body apiError
	_ = json.Unmarshal(resp.Body, &body)

	kind := domainerrors.ProviderErrorDecline
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		kind = domainerrors.ProviderErrorConfig
	}
	pe := &domainerrors.ProviderError{
		Provider:   providerName,
		Kind:       kind,
		Code:       body.issue(),
		Message:    body.Message,
		StatusCode: resp.StatusCode,
	}
	if kind == domainerrors.ProviderErrorConfig {
		pe.Err = domainerrors.ErrProviderNotConfigured
	}
	if len(body.Details) > 0 {
		pe.Details = body.Details[0].Description
	}

	p.logger.Warn("PayPal API error",
		zap.Int("status_code", resp.StatusCode),
		zap.String("name", body.Name),
		zap.String("issue", pe.Code),
		zap.String("debug_id", body.DebugID))
	return pe
}

// InitiatePayment creates a CAPTURE-intent order and returns the approve URL.
func (p *PayPalProvider) InitiatePayment(ctx context.Context, cfg provider.Config, req provider.InitiateRequest) (*provider.InitiateResult, error) {
	creds, err := p.credentials(cfg)
	if err != nil {
		return nil, err
	}

	unit := map[string]interface{}{
		"reference_id": req.ProviderRequestID,
		"custom_id":    req.ProviderRequestID,
		"invoice_id":   req.ProviderRequestID,
		"amount":       toAmount(req.Amount),
	}
	if req.Description != "" {
		unit["description"] = req.Description
	}
	body := map[string]interface{}{
		"intent":         "CAPTURE",
		"purchase_units": []interface{}{unit},
		"application_context": map[string]string{
			"return_url":  req.ReturnURL,
			"cancel_url":  req.CancelURL,
			"user_action": "PAY_NOW",
		},
	}

	resp, err := p.call(ctx, creds, http.MethodPost, "/v2/checkout/orders", req.ProviderRequestID, body)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, p.apiError(resp)
	}

	var o order
	if err := resp.Decode(&o); err != nil {
		return nil, domainerrors.NewRetryableError(providerName, "INVALID_RESPONSE", "unexpected order response", err)
	}
	redirect := o.approveURL()
	if redirect == "" {
		return nil, domainerrors.NewRetryableError(providerName, "MISSING_APPROVE_LINK", "order has no approve link", nil)
	}

	p.logger.Info("PayPal order created",
		zap.String("order_id", o.ID),
		zap.String("status", o.Status),
		zap.String("provider_request_id", req.ProviderRequestID))

	return &provider.InitiateResult{
		ProviderOrderID: o.ID,
		RedirectURL:     redirect,
		Outcome:         provider.OutcomePending,
		StatusCode:      o.Status,
		Raw:             o.raw(),
	}, nil
}

func (p *PayPalProvider) getOrder(ctx context.Context, creds credentials, orderID string) (*order, error) {
	resp, err := p.call(ctx, creds, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), "", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, p.apiError(resp)
	}
	var o order
	if err := resp.Decode(&o); err != nil {
		return nil, domainerrors.NewRetryableError(providerName, "INVALID_RESPONSE", "unexpected order response", err)
	}
	return &o, nil
}

// GetOrderStatus fetches the order.
func (p *PayPalProvider) GetOrderStatus(ctx context.Context, cfg provider.Config, providerOrderID string) (*provider.OrderStatus, error) {
	creds, err := p.credentials(cfg)
	if err != nil {
		return nil, err
	}
	o, err := p.getOrder(ctx, creds, providerOrderID)
	if err != nil {
		return nil, err
	}

	status := &provider.OrderStatus{
		ProviderOrderID: o.ID,
		StatusCode:      o.Status,
		Outcome:         o.outcome(),
		Approved:        o.Status == statusApproved,
		Amount:          o.amount(),
		Raw:             o.raw(),
	}
	if c := o.capture(); c != nil {
		status.ProviderTransactionID = c.ID
	}
	return status, nil
}

// CaptureOrder captures an approved order. An order that is not yet approved
// yields ErrNotReady; an already completed order returns its existing capture.
func (p *PayPalProvider) CaptureOrder(ctx context.Context, cfg provider.Config, providerOrderID string) (*provider.CaptureResult, error) {
	creds, err := p.credentials(cfg)
	if err != nil {
		return nil, err
	}

	o, err := p.getOrder(ctx, creds, providerOrderID)
	if err != nil {
		return nil, err
	}

	switch o.Status {
	case statusCompleted:
		return captureResult(o, true), nil
	case statusApproved:
	case statusVoided:
		return &provider.CaptureResult{
			ProviderOrderID: o.ID,
			Outcome:         provider.OutcomeDeclined,
			StatusCode:      o.Status,
			Raw:             o.raw(),
		}, nil
	default:
		return nil, fmt.Errorf("paypal order %s is %s: %w", o.ID, o.Status, domainerrors.ErrNotReady)
	}

	resp, err := p.call(ctx, creds, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(o.ID)+"/capture", "capture-"+o.ID, struct{}{})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		pe := p.apiError(resp)
		switch pe.Code {
		case "ORDER_ALREADY_CAPTURED":
			prior, err := p.getOrder(ctx, creds, o.ID)
			if err != nil {
				return nil, err
			}
			return captureResult(prior, true), nil
		case "ORDER_NOT_APPROVED", "PAYER_ACTION_REQUIRED":
			return nil, fmt.Errorf("paypal order %s: %s: %w", o.ID, pe.Code, domainerrors.ErrNotReady)
		case "INSTRUMENT_DECLINED", "TRANSACTION_REFUSED", "PAYER_CANNOT_PAY":
			return &provider.CaptureResult{
				ProviderOrderID: o.ID,
				Outcome:         provider.OutcomeDeclined,
				StatusCode:      pe.Code,
				Raw:             map[string]string{"order_id": o.ID, "issue": pe.Code, "message": pe.Message},
			}, nil
		}
		return nil, pe
	}

	var captured order
	if err := resp.Decode(&captured); err != nil {
		return nil, domainerrors.NewRetryableError(providerName, "INVALID_RESPONSE", "unexpected capture response", err)
	}

	result := captureResult(&captured, false)
	p.logger.Info("PayPal order captured",
		zap.String("order_id", captured.ID),
		zap.String("capture_id", result.CaptureID),
		zap.String("outcome", string(result.Outcome)))
	return result, nil
}

func captureResult(o *order, already bool) *provider.CaptureResult {
	result := &provider.CaptureResult{
		ProviderOrderID: o.ID,
		Outcome:         o.outcome(),
		StatusCode:      o.Status,
		Amount:          o.amount(),
		AlreadyCaptured: already,
		Raw:             o.raw(),
	}
	if c := o.capture(); c != nil {
		result.CaptureID = c.ID
	}
	return result
}

// Refund refunds a capture.
func (p *PayPalProvider) Refund(ctx context.Context, cfg provider.Config, req provider.RefundRequest) (*provider.RefundResult, error) {
	creds, err := p.credentials(cfg)
	if err != nil {
		return nil, err
	}
	if req.ProviderTransactionID == "" {
		return nil, domainerrors.NewDeclineError(providerName, "MISSING_CAPTURE_ID", "charge has no capture id")
	}

	body := map[string]interface{}{"amount": toAmount(req.Amount)}
	if req.Reason != "" {
		body["note_to_payer"] = req.Reason
	}

	resp, err := p.call(ctx, creds, http.MethodPost, "/v2/payments/captures/"+url.PathEscape(req.ProviderTransactionID)+"/refund", req.IdempotencyKey, body)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, p.apiError(resp)
	}

	var refund struct {
		ID         string  `json:"id"`
		Status     string  `json:"status"`
		Amount     *amount `json:"amount"`
		CreateTime string  `json:"create_time"`
	}
	if err := resp.Decode(&refund); err != nil {
		return nil, domainerrors.NewRetryableError(providerName, "INVALID_RESPONSE", "unexpected refund response", err)
	}
	if refund.Status == "FAILED" || refund.Status == "CANCELLED" {
		return nil, domainerrors.NewDeclineError(providerName, "REFUND_"+refund.Status, "refund was not completed")
	}

	result := &provider.RefundResult{
		ProviderRefundID: refund.ID,
		Status:           refund.Status,
		Amount:           req.Amount,
		ProcessedAt:      p.now().UTC(),
	}
	if m := refund.Amount.money(); m != nil {
		result.Amount = *m
	}
	if t, err := time.Parse(time.RFC3339, refund.CreateTime); err == nil {
		result.ProcessedAt = t.UTC()
	}
	return result, nil
}

// ParseCallback reads CHECKOUT.ORDER.* and PAYMENT.CAPTURE.* webhook events.
func (p *PayPalProvider) ParseCallback(contentType string, body []byte, query url.Values) (*provider.Notification, error) {
	var event struct {
		ID        string          `json:"id"`
		EventType string          `json:"event_type"`
		Resource  json.RawMessage `json:"resource"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidCallback, err)
	}

	raw := map[string]string{"event_id": event.ID, "event_type": event.EventType}

	switch {
	case strings.HasPrefix(event.EventType, "CHECKOUT.ORDER."):
		var o order
		if err := json.Unmarshal(event.Resource, &o); err != nil || o.ID == "" {
			return nil, fmt.Errorf("%w: order resource missing", domainerrors.ErrInvalidCallback)
		}
		n := &provider.Notification{
			ProviderOrderID: o.ID,
			Outcome:         o.outcome(),
			StatusCode:      o.Status,
			Amount:          o.amount(),
			RawFields:       raw,
		}
		if len(o.PurchaseUnits) > 0 {
			n.TransactionRef = o.PurchaseUnits[0].CustomID
		}
		if c := o.capture(); c != nil {
			n.ProviderTransactionID = c.ID
		}
		for k, v := range o.raw() {
			raw[k] = v
		}
		return n, nil

	case strings.HasPrefix(event.EventType, "PAYMENT.CAPTURE."):
		var c struct {
			capture
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		}
		if err := json.Unmarshal(event.Resource, &c); err != nil || c.ID == "" {
			return nil, fmt.Errorf("%w: capture resource missing", domainerrors.ErrInvalidCallback)
		}
		raw["capture_id"] = c.ID
		raw["capture_status"] = c.Status
		return &provider.Notification{
			TransactionRef:        c.CustomID,
			ProviderOrderID:       c.SupplementaryData.RelatedIDs.OrderID,
			ProviderTransactionID: c.ID,
			Outcome:               captureOutcome(c.Status),
			StatusCode:            c.Status,
			Amount:                c.Amount.money(),
			RawFields:             raw,
		}, nil
	}

	return nil, fmt.Errorf("%w: unsupported event type %q", domainerrors.ErrInvalidCallback, event.EventType)
}
