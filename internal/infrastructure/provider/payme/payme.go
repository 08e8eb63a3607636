package payme

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/infrastructure/provider/gateway"
)

const providerName = string(provider.TypePayMe)

// callback fields copied into Notification.RawFields
var callbackFields = []string{
	"status_code", "sale_status", "transaction_id", "payme_sale_id",
	"payme_transaction_id", "price", "currency", "status_error_code",
	"status_error_details", "notify_type", "payme_signature",
}

type credentials struct {
	SellerPaymeID string `json:"seller_payme_id"`
	BaseURL       string `json:"base_url"`
}

// PayMeProvider implements webhook-driven settlement: the sale is generated
// here and its outcome arrives on the callback endpoint.
type PayMeProvider struct {
	baseURL string
	gateway *gateway.Client
	logger  *zap.Logger
	now     func() time.Time
}

// NewPayMeProvider creates a PayMe adapter against baseURL (the API root,
// e.g. https://sandbox.payme.io/api).
func NewPayMeProvider(baseURL string, gw *gateway.Client, logger *zap.Logger) *PayMeProvider {
	return &PayMeProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		gateway: gw,
		logger:  logger,
		now:     time.Now,
	}
}

func (p *PayMeProvider) Type() provider.Type { return provider.TypePayMe }

func (p *PayMeProvider) Shape() provider.Shape { return provider.ShapeWebhookSettlement }

func (p *PayMeProvider) credentials(cfg provider.Config) (credentials, error) {
	var creds credentials
	if len(cfg.Credentials) > 0 {
		if err := json.Unmarshal(cfg.Credentials, &creds); err != nil {
			return creds, domainerrors.NewConfigError(providerName, "invalid credentials")
		}
	}
	if creds.SellerPaymeID == "" {
		return creds, domainerrors.NewConfigError(providerName, "seller id is not configured")
	}
	if creds.BaseURL == "" {
		creds.BaseURL = p.baseURL
	}
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	return creds, nil
}

// response envelope shared by every PayMe endpoint
type envelope struct {
	StatusCode         int    `json:"status_code"`
	StatusErrorCode    int    `json:"status_error_code"`
	StatusErrorDetails string `json:"status_error_details"`
}

func (p *PayMeProvider) post(ctx context.Context, creds credentials, path string, in interface{}, out interface{}) error {
	resp, err := p.gateway.DoJSON(ctx, http.MethodPost, creds.BaseURL+path, nil, in)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		if !resp.OK() {
			return &domainerrors.ProviderError{
				Provider:   providerName,
				Kind:       domainerrors.ProviderErrorDecline,
				Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
				Message:    "PayMe rejected the request",
				StatusCode: resp.StatusCode,
			}
		}
		return domainerrors.NewRetryableError(providerName, "INVALID_RESPONSE", "unexpected PayMe response", err)
	}

	if !resp.OK() || env.StatusCode != 0 {
		kind := domainerrors.ProviderErrorDecline
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = domainerrors.ProviderErrorConfig
		}
		p.logger.Warn("PayMe API error",
			zap.String("path", path),
			zap.Int("http_status", resp.StatusCode),
			zap.Int("status_code", env.StatusCode),
			zap.Int("status_error_code", env.StatusErrorCode),
			zap.String("details", env.StatusErrorDetails))

		pe := &domainerrors.ProviderError{
			Provider:   providerName,
			Kind:       kind,
			Code:       strconv.Itoa(env.StatusErrorCode),
			Message:    env.StatusErrorDetails,
			StatusCode: resp.StatusCode,
		}
		if kind == domainerrors.ProviderErrorConfig {
			pe.Err = domainerrors.ErrProviderNotConfigured
		}
		return pe
	}

	if out != nil {
		return resp.Decode(out)
	}
	return nil
}

// InitiatePayment calls generate-sale and returns the hosted sale URL.
func (p *PayMeProvider) InitiatePayment(ctx context.Context, cfg provider.Config, req provider.InitiateRequest) (*provider.InitiateResult, error) {
	creds, err := p.credentials(cfg)
	if err != nil {
		return nil, err
	}

	productName := req.Description
	if productName == "" {
		productName = "Order " + req.ProviderRequestID
	}
	body := map[string]interface{}{
		"seller_payme_id":   creds.SellerPaymeID,
		"sale_price":        req.Amount.Amount,
		"currency":          req.Amount.Currency,
		"product_name":      productName,
		"transaction_id":    req.ProviderRequestID,
		"installments":      "1",
		"sale_callback_url": req.CallbackURL,
		"sale_return_url":   req.ReturnURL,
		"capture_buyer":     0,
	}
	if req.Language != "" {
		body["language"] = req.Language
	}
	if req.CustomerEmail != "" {
		body["sale_email"] = req.CustomerEmail
	}

	var sale struct {
		PaymeSaleID   string `json:"payme_sale_id"`
		PaymeSaleCode int64  `json:"payme_sale_code"`
		SaleURL       string `json:"sale_url"`
		TransactionID string `json:"transaction_id"`
	}
	if err := p.post(ctx, creds, "/generate-sale", body, &sale); err != nil {
		return nil, err
	}
	if sale.SaleURL == "" || sale.PaymeSaleID == "" {
		return nil, domainerrors.NewRetryableError(providerName, "INVALID_RESPONSE", "sale url missing", nil)
	}

	p.logger.Info("PayMe sale generated",
		zap.String("payme_sale_id", sale.PaymeSaleID),
		zap.String("provider_request_id", req.ProviderRequestID))

	return &provider.InitiateResult{
		ProviderOrderID: sale.PaymeSaleID,
		RedirectURL:     sale.SaleURL,
		Outcome:         provider.OutcomePending,
		StatusCode:      "initial",
		Raw: map[string]string{
			"payme_sale_id":   sale.PaymeSaleID,
			"payme_sale_code": strconv.FormatInt(sale.PaymeSaleCode, 10),
		},
	}, nil
}

// CaptureOrder is not supported: PayMe settles through callbacks.
func (p *PayMeProvider) CaptureOrder(ctx context.Context, cfg provider.Config, providerOrderID string) (*provider.CaptureResult, error) {
	return nil, fmt.Errorf("payme capture: %w", domainerrors.ErrOperationNotSupported)
}

// GetOrderStatus queries get-sales for a single sale.
func (p *PayMeProvider) GetOrderStatus(ctx context.Context, cfg provider.Config, providerOrderID string) (*provider.OrderStatus, error) {
	creds, err := p.credentials(cfg)
	if err != nil {
		return nil, err
	}

	var result struct {
		Items []struct {
			SalePaymeID        string      `json:"sale_payme_id"`
			SaleStatus         string      `json:"sale_status"`
			TransactionID      string      `json:"transaction_id"`
			PaymeTransactionID string      `json:"payme_transaction_id"`
			SalePrice          json.Number `json:"sale_price"`
			Currency           string      `json:"currency"`
		} `json:"items"`
	}
	body := map[string]string{
		"seller_payme_id": creds.SellerPaymeID,
		"sale_payme_id":   providerOrderID,
	}
	if err := p.post(ctx, creds, "/get-sales", body, &result); err != nil {
		return nil, err
	}
	if len(result.Items) == 0 {
		return nil, domainerrors.NewDeclineError(providerName, "SALE_NOT_FOUND", "sale not found")
	}

	item := result.Items[0]
	status := &provider.OrderStatus{
		ProviderOrderID:       item.SalePaymeID,
		ProviderTransactionID: item.PaymeTransactionID,
		StatusCode:            item.SaleStatus,
		Outcome:               saleOutcome("0", item.SaleStatus),
		Raw: map[string]string{
			"sale_status":          item.SaleStatus,
			"transaction_id":       item.TransactionID,
			"payme_sale_id":        item.SalePaymeID,
			"payme_transaction_id": item.PaymeTransactionID,
		},
	}
	if m := minorAmount(item.SalePrice.String(), item.Currency); m != nil {
		status.Amount = m
	}
	return status, nil
}

// Refund calls refund-sale.
func (p *PayMeProvider) Refund(ctx context.Context, cfg provider.Config, req provider.RefundRequest) (*provider.RefundResult, error) {
	creds, err := p.credentials(cfg)
	if err != nil {
		return nil, err
	}
	if req.ProviderOrderID == "" {
		return nil, domainerrors.NewDeclineError(providerName, "MISSING_SALE_ID", "charge has no PayMe sale id")
	}

	body := map[string]interface{}{
		"seller_payme_id":    creds.SellerPaymeID,
		"payme_sale_id":      req.ProviderOrderID,
		"sale_refund_amount": req.Amount.Amount,
	}
	var result struct {
		PaymeTransactionID string `json:"payme_transaction_id"`
		SaleStatus         string `json:"sale_status"`
		PaymeStatus        string `json:"payme_status"`
	}
	if err := p.post(ctx, creds, "/refund-sale", body, &result); err != nil {
		return nil, err
	}
	if result.PaymeStatus != "" && result.PaymeStatus != "success" {
		return nil, domainerrors.NewDeclineError(providerName, "REFUND_"+strings.ToUpper(result.PaymeStatus), "refund was not completed")
	}

	p.logger.Info("PayMe sale refunded",
		zap.String("payme_sale_id", req.ProviderOrderID),
		zap.String("sale_status", result.SaleStatus),
		zap.Int64("amount", req.Amount.Amount))

	return &provider.RefundResult{
		ProviderRefundID: result.PaymeTransactionID,
		Status:           result.SaleStatus,
		Amount:           req.Amount,
		ProcessedAt:      p.now().UTC(),
	}, nil
}

// ParseCallback accepts the form-encoded IPN, a JSON body, or the 3-D Secure
// GET return whose fields arrive on the query string.
func (p *PayMeProvider) ParseCallback(contentType string, body []byte, query url.Values) (*provider.Notification, error) {
	fields, err := callbackValues(contentType, body, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidCallback, err)
	}

	ref := fields.Get("transaction_id")
	saleID := fields.Get("payme_sale_id")
	if ref == "" && saleID == "" {
		return nil, fmt.Errorf("%w: transaction_id missing", domainerrors.ErrInvalidCallback)
	}
	statusCode := fields.Get("status_code")
	if statusCode == "" {
		return nil, fmt.Errorf("%w: status_code missing", domainerrors.ErrInvalidCallback)
	}

	raw := make(map[string]string)
	for _, k := range callbackFields {
		if v := fields.Get(k); v != "" {
			raw[k] = v
		}
	}

	n := &provider.Notification{
		TransactionRef:        ref,
		ProviderOrderID:       saleID,
		ProviderTransactionID: fields.Get("payme_transaction_id"),
		Outcome:               saleOutcome(statusCode, fields.Get("sale_status")),
		StatusCode:            fields.Get("sale_status"),
		Message:               fields.Get("status_error_details"),
		RawFields:             raw,
	}
	if n.StatusCode == "" {
		n.StatusCode = "status_code=" + statusCode
	}
	if price := fields.Get("price"); price != "" {
		n.Amount = minorAmount(price, fields.Get("currency"))
		if n.Amount == nil {
			return nil, fmt.Errorf("%w: invalid price %q", domainerrors.ErrInvalidCallback, price)
		}
	}
	return n, nil
}

func callbackValues(contentType string, body []byte, query url.Values) (url.Values, error) {
	if len(body) == 0 {
		return query, nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/json" {
		var m map[string]interface{}
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, err
		}
		values := url.Values{}
		for k, v := range m {
			switch tv := v.(type) {
			case string:
				values.Set(k, tv)
			case float64:
				values.Set(k, strconv.FormatFloat(tv, 'f', -1, 64))
			case nil:
			default:
				values.Set(k, fmt.Sprint(tv))
			}
		}
		return values, nil
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	for k, vs := range query {
		if values.Get(k) == "" && len(vs) > 0 {
			values.Set(k, vs[0])
		}
	}
	return values, nil
}

// saleOutcome classifies a PayMe numeric status_code and sale_status pair.
func saleOutcome(statusCode, saleStatus string) provider.Outcome {
	if statusCode != "0" {
		return provider.OutcomeDeclined
	}
	switch strings.ToLower(saleStatus) {
	case "completed", "success", "refunded", "partial-refund":
		return provider.OutcomeApproved
	case "failed", "cancelled", "canceled", "voided", "chargeback":
		return provider.OutcomeDeclined
	default:
		return provider.OutcomePending
	}
}

// minorAmount reads PayMe prices, which are integers in minor units.
func minorAmount(price, currency string) *money.Money {
	if currency == "" {
		return nil
	}
	v, err := strconv.ParseInt(price, 10, 64)
	if err != nil {
		return nil
	}
	m, err := money.New(v, currency)
	if err != nil {
		return nil
	}
	return &m
}
