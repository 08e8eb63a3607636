package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/paycore/internal/domain/money"
)

// Adapter is the provider-agnostic gateway contract. Every operation receives
// the store's resolved provider configuration.
type Adapter interface {
	// Type returns the registry key of the provider
	Type() Type

	// Shape describes how the provider settles a charge
	Shape() Shape

	// InitiatePayment starts a charge. Synchronous providers return the final
	// outcome; redirect and webhook providers return a URL for the buyer.
	InitiatePayment(ctx context.Context, cfg Config, req InitiateRequest) (*InitiateResult, error)

	// CaptureOrder captures an approved redirect-flow order
	CaptureOrder(ctx context.Context, cfg Config, providerOrderID string) (*CaptureResult, error)

	// GetOrderStatus fetches the provider-side status of an order or sale
	GetOrderStatus(ctx context.Context, cfg Config, providerOrderID string) (*OrderStatus, error)

	// Refund refunds a settled charge, fully or partially
	Refund(ctx context.Context, cfg Config, req RefundRequest) (*RefundResult, error)
}

// CallbackParser is implemented by adapters that receive inbound callbacks.
type CallbackParser interface {
	ParseCallback(contentType string, body []byte, query url.Values) (*Notification, error)
}

// Type is the closed set of supported providers.
type Type string

const (
	TypeStripe Type = "stripe"
	TypePayPal Type = "paypal"
	TypePayMe  Type = "payme"
)

// ParseType validates a provider name from a route or request body.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeStripe, TypePayPal, TypePayMe:
		return Type(s), true
	}
	return "", false
}

// Shape is the settlement model of a provider.
type Shape string

const (
	ShapeSyncCharge        Shape = "sync_charge"
	ShapeRedirectCapture   Shape = "redirect_capture"
	ShapeWebhookSettlement Shape = "webhook_settlement"
)

// Outcome is the normalised result of a provider status.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeDeclined Outcome = "declined"
	OutcomePending  Outcome = "pending"
)

// Config is a store's resolved credentials for one provider.
type Config struct {
	ID          uuid.UUID
	StoreID     uuid.UUID
	Type        Type
	Credentials json.RawMessage
	TestMode    bool
}

// InitiateRequest represents a provider-agnostic charge initiation
type InitiateRequest struct {
	ProviderRequestID string
	Amount            money.Money
	Description       string
	CustomerRef       string
	CustomerEmail     string
	PaymentMethodID   string // stripe only
	ReturnURL         string
	CancelURL         string
	CallbackURL       string
	Language          string
	Metadata          map[string]string
}

// InitiateResult is either a redirect for the buyer or an immediate outcome.
type InitiateResult struct {
	ProviderOrderID       string
	ProviderTransactionID string
	RedirectURL           string
	Outcome               Outcome
	StatusCode            string
	Amount                *money.Money
	DeclineMessage        string
	Raw                   map[string]string
}

// Immediate reports whether the outcome is already final.
func (r *InitiateResult) Immediate() bool {
	return r.Outcome == OutcomeApproved || r.Outcome == OutcomeDeclined
}

// CaptureResult represents the response from a capture
type CaptureResult struct {
	ProviderOrderID string
	CaptureID       string
	Outcome         Outcome
	StatusCode      string
	Amount          *money.Money
	// AlreadyCaptured is set when the order was completed before this call
	AlreadyCaptured bool
	Raw             map[string]string
}

// OrderStatus represents the provider-side state of an order
type OrderStatus struct {
	ProviderOrderID       string
	ProviderTransactionID string
	StatusCode            string
	Outcome               Outcome
	// Approved is true when a redirect-flow order is approved and ready to capture
	Approved bool
	Amount   *money.Money
	Raw      map[string]string
}

// RefundRequest represents a refund against a settled charge
type RefundRequest struct {
	ProviderTransactionID string
	ProviderOrderID       string
	Amount                money.Money
	Reason                string
	IdempotencyKey        string
}

// RefundResult represents the response from a refund
type RefundResult struct {
	ProviderRefundID string
	Status           string
	Amount           money.Money
	ProcessedAt      time.Time
}

// Notification is an inbound callback normalised across providers.
type Notification struct {
	// TransactionRef is our providerRequestId echoed back by the provider
	TransactionRef        string
	ProviderOrderID       string
	ProviderTransactionID string
	Outcome               Outcome
	StatusCode            string
	Amount                *money.Money
	Message               string
	RawFields             map[string]string
}
