package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/infrastructure/provider/gateway"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *StripeProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gw := gateway.New(providerName, gateway.Options{Timeout: 2 * time.Second}, zap.NewNop())
	return NewStripeProvider(server.URL, gw, zap.NewNop())
}

func testConfig() provider.Config {
	return provider.Config{
		Type:        provider.TypeStripe,
		Credentials: json.RawMessage(`{"secret_key":"sk_test_123"}`),
		TestMode:    true,
	}
}

func TestStripeProvider_InitiatePayment(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantOutcome provider.Outcome
		wantRedir   string
		wantCode    string
	}{
		{
			name:        "succeeded",
			status:      http.StatusOK,
			body:        `{"id":"pi_1","object":"payment_intent","status":"succeeded","amount":19999,"amount_received":19999,"currency":"usd","latest_charge":"ch_1","metadata":{"provider_request_id":"req-1"}}`,
			wantOutcome: provider.OutcomeApproved,
			wantCode:    "succeeded",
		},
		{
			name:        "requires action",
			status:      http.StatusOK,
			body:        `{"id":"pi_2","object":"payment_intent","status":"requires_action","amount":19999,"currency":"usd","next_action":{"type":"redirect_to_url","redirect_to_url":{"url":"https://hooks.stripe.test/3ds","return_url":"https://shop.test/return"}}}`,
			wantOutcome: provider.OutcomePending,
			wantRedir:   "https://hooks.stripe.test/3ds",
			wantCode:    "requires_action",
		},
		{
			name:        "card declined",
			status:      http.StatusPaymentRequired,
			body:        `{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds.","payment_intent":{"id":"pi_3","object":"payment_intent","status":"requires_payment_method","amount":19999,"currency":"usd"}}}`,
			wantOutcome: provider.OutcomeDeclined,
			wantCode:    "insufficient_funds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/payment_intents", r.URL.Path)
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "19999", r.PostForm.Get("amount"))
				assert.Equal(t, "usd", r.PostForm.Get("currency"))
				assert.Equal(t, "true", r.PostForm.Get("confirm"))
				assert.Equal(t, "req-1", r.PostForm.Get("metadata[provider_request_id]"))
				assert.Equal(t, "pi-req-1", r.Header.Get("Idempotency-Key"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			result, err := p.InitiatePayment(context.Background(), testConfig(), provider.InitiateRequest{
				ProviderRequestID: "req-1",
				Amount:            money.Must(19999, "USD"),
				PaymentMethodID:   "pm_card_visa",
				ReturnURL:         "https://shop.test/return",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, result.Outcome)
			assert.Equal(t, tt.wantRedir, result.RedirectURL)
			assert.Equal(t, tt.wantCode, result.StatusCode)
			require.NotNil(t, result.Amount)
			assert.Equal(t, money.Must(19999, "USD"), *result.Amount)
		})
	}
}

func TestStripeProvider_InitiatePayment_ServerErrorIsRetryable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
	})

	_, err := p.InitiatePayment(context.Background(), testConfig(), provider.InitiateRequest{
		ProviderRequestID: "req-1",
		Amount:            money.Must(1000, "USD"),
		PaymentMethodID:   "pm_card_visa",
	})
	pe, ok := domainerrors.AsProviderError(err)
	require.True(t, ok)
	assert.True(t, pe.Retryable())
}

func TestStripeProvider_MissingSecretKey(t *testing.T) {
	p := NewStripeProvider("", gateway.New(providerName, gateway.Options{}, zap.NewNop()), zap.NewNop())

	_, err := p.GetOrderStatus(context.Background(), provider.Config{Credentials: json.RawMessage(`{}`)}, "pi_1")
	assert.ErrorIs(t, err, domainerrors.ErrProviderNotConfigured)
}

func TestStripeProvider_Refund(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_1", r.PostForm.Get("payment_intent"))
		assert.Equal(t, "5000", r.PostForm.Get("amount"))
		assert.Equal(t, "re-key-1", r.Header.Get("Idempotency-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re_1","object":"refund","status":"succeeded","amount":5000,"currency":"usd","created":1700000000}`))
	})

	result, err := p.Refund(context.Background(), testConfig(), provider.RefundRequest{
		ProviderOrderID: "pi_1",
		Amount:          money.Must(5000, "USD"),
		IdempotencyKey:  "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_1", result.ProviderRefundID)
	assert.Equal(t, money.Must(5000, "USD"), result.Amount)
}

func TestStripeProvider_RefundFailed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re_2","object":"refund","status":"failed","failure_reason":"charge_for_pending_refund_disputed","amount":5000,"currency":"usd"}`))
	})

	_, err := p.Refund(context.Background(), testConfig(), provider.RefundRequest{
		ProviderOrderID: "pi_1",
		Amount:          money.Must(5000, "USD"),
	})
	assert.True(t, domainerrors.IsDecline(err))
}

func TestStripeProvider_ParseCallback(t *testing.T) {
	p := NewStripeProvider("", nil, zap.NewNop())

	body := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id":"pi_1","object":"payment_intent","status":"succeeded","amount":12000,"amount_received":12000,"currency":"ils","latest_charge":"ch_9","metadata":{"provider_request_id":"req-77"}}}
	}`)

	n, err := p.ParseCallback("application/json", body, nil)
	require.NoError(t, err)
	assert.Equal(t, "req-77", n.TransactionRef)
	assert.Equal(t, "pi_1", n.ProviderOrderID)
	assert.Equal(t, "ch_9", n.ProviderTransactionID)
	assert.Equal(t, provider.OutcomeApproved, n.Outcome)
	assert.Equal(t, money.Must(12000, "ILS"), *n.Amount)

	_, err = p.ParseCallback("application/json", []byte(`{"type":"charge.refunded","data":{"object":{}}}`), nil)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCallback)
}
