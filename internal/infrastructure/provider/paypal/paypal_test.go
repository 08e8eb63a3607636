package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
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

type fakePayPal struct {
	orderStatus  string
	captureCalls int32
	tokenCalls   int32
	captureReply int
	captureBody  string
}

func (f *fakePayPal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":32400}`))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "req-1", r.Header.Get("PayPal-Request-Id"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body["intent"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"CREATED","links":[{"href":"https://paypal.test/checkoutnow?token=ORDER-1","rel":"approve"}]}`))
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER-1", func(w http.ResponseWriter, r *http.Request) {
		body := `{"id":"ORDER-1","status":"` + f.orderStatus + `","purchase_units":[{"custom_id":"req-1","amount":{"currency_code":"USD","value":"199.99"}`
		if f.orderStatus == statusCompleted {
			body += `,"payments":{"captures":[{"id":"CAP-1","status":"COMPLETED","amount":{"currency_code":"USD","value":"199.99"}}]}`
		}
		body += `}]}`
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.captureCalls, 1)
		assert.Equal(t, "capture-ORDER-1", r.Header.Get("PayPal-Request-Id"))
		if f.captureReply != 0 {
			w.WriteHeader(f.captureReply)
			_, _ = w.Write([]byte(f.captureBody))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP-2","status":"COMPLETED","amount":{"currency_code":"USD","value":"199.99"}}]}}]}`))
	})
	mux.HandleFunc("/v2/payments/captures/CAP-1/refund", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refund-key", r.Header.Get("PayPal-Request-Id"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"REF-1","status":"COMPLETED","amount":{"currency_code":"USD","value":"50.00"},"create_time":"2024-05-01T10:00:00Z"}`))
	})
	return mux
}

func setup(t *testing.T, f *fakePayPal) (*PayPalProvider, provider.Config) {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)

	gw := gateway.New(providerName, gateway.Options{Timeout: 2 * time.Second}, zap.NewNop())
	p := NewPayPalProvider(server.URL, gw, zap.NewNop())
	cfg := provider.Config{
		Type:        provider.TypePayPal,
		Credentials: json.RawMessage(`{"client_id":"client","client_secret":"secret"}`),
	}
	return p, cfg
}

func TestPayPalProvider_InitiatePayment(t *testing.T) {
	f := &fakePayPal{}
	p, cfg := setup(t, f)

	result, err := p.InitiatePayment(context.Background(), cfg, provider.InitiateRequest{
		ProviderRequestID: "req-1",
		Amount:            money.Must(19999, "USD"),
		ReturnURL:         "https://shop.test/return",
		CancelURL:         "https://shop.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", result.ProviderOrderID)
	assert.Equal(t, "https://paypal.test/checkoutnow?token=ORDER-1", result.RedirectURL)
	assert.Equal(t, provider.OutcomePending, result.Outcome)
	assert.False(t, result.Immediate())
}

func TestPayPalProvider_TokenIsCached(t *testing.T) {
	f := &fakePayPal{orderStatus: statusApproved}
	p, cfg := setup(t, f)

	for i := 0; i < 3; i++ {
		_, err := p.GetOrderStatus(context.Background(), cfg, "ORDER-1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tokenCalls))

	p.now = func() time.Time { return time.Now().Add(10 * time.Hour) }
	_, err := p.GetOrderStatus(context.Background(), cfg, "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.tokenCalls), "expired token must be refreshed")
}

func TestPayPalProvider_CaptureOrder(t *testing.T) {
	t.Run("not approved", func(t *testing.T) {
		f := &fakePayPal{orderStatus: "CREATED"}
		p, cfg := setup(t, f)

		_, err := p.CaptureOrder(context.Background(), cfg, "ORDER-1")
		assert.ErrorIs(t, err, domainerrors.ErrNotReady)
		assert.Equal(t, int32(0), atomic.LoadInt32(&f.captureCalls))
	})

	t.Run("already completed returns prior capture", func(t *testing.T) {
		f := &fakePayPal{orderStatus: statusCompleted}
		p, cfg := setup(t, f)

		result, err := p.CaptureOrder(context.Background(), cfg, "ORDER-1")
		require.NoError(t, err)
		assert.True(t, result.AlreadyCaptured)
		assert.Equal(t, "CAP-1", result.CaptureID)
		assert.Equal(t, provider.OutcomeApproved, result.Outcome)
		assert.Equal(t, int32(0), atomic.LoadInt32(&f.captureCalls))
	})

	t.Run("approved is captured", func(t *testing.T) {
		f := &fakePayPal{orderStatus: statusApproved}
		p, cfg := setup(t, f)

		result, err := p.CaptureOrder(context.Background(), cfg, "ORDER-1")
		require.NoError(t, err)
		assert.False(t, result.AlreadyCaptured)
		assert.Equal(t, "CAP-2", result.CaptureID)
		assert.Equal(t, provider.OutcomeApproved, result.Outcome)
		require.NotNil(t, result.Amount)
		assert.Equal(t, money.Must(19999, "USD"), *result.Amount)
		assert.Equal(t, int32(1), atomic.LoadInt32(&f.captureCalls))
	})

	t.Run("instrument declined", func(t *testing.T) {
		f := &fakePayPal{
			orderStatus:  statusApproved,
			captureReply: http.StatusUnprocessableEntity,
			captureBody:  `{"name":"UNPROCESSABLE_ENTITY","message":"declined","details":[{"issue":"INSTRUMENT_DECLINED","description":"The instrument presented was declined."}]}`,
		}
		p, cfg := setup(t, f)

		result, err := p.CaptureOrder(context.Background(), cfg, "ORDER-1")
		require.NoError(t, err)
		assert.Equal(t, provider.OutcomeDeclined, result.Outcome)
		assert.Equal(t, "INSTRUMENT_DECLINED", result.StatusCode)
	})
}

func TestPayPalProvider_Refund(t *testing.T) {
	p, cfg := setup(t, &fakePayPal{})

	result, err := p.Refund(context.Background(), cfg, provider.RefundRequest{
		ProviderTransactionID: "CAP-1",
		Amount:                money.Must(5000, "USD"),
		IdempotencyKey:        "refund-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "REF-1", result.ProviderRefundID)
	assert.Equal(t, money.Must(5000, "USD"), result.Amount)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), result.ProcessedAt)
}

func TestPayPalProvider_MissingCredentials(t *testing.T) {
	p := NewPayPalProvider("http://unused", gateway.New(providerName, gateway.Options{}, zap.NewNop()), zap.NewNop())

	_, err := p.GetOrderStatus(context.Background(), provider.Config{Credentials: json.RawMessage(`{"client_id":"only"}`)}, "ORDER-1")
	assert.ErrorIs(t, err, domainerrors.ErrProviderNotConfigured)
}

func TestPayPalProvider_ParseCallback(t *testing.T) {
	p := NewPayPalProvider("", nil, zap.NewNop())

	tests := []struct {
		name        string
		body        string
		wantRef     string
		wantOrder   string
		wantOutcome provider.Outcome
		wantErr     bool
	}{
		{
			name:        "capture completed",
			body:        `{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1","status":"COMPLETED","custom_id":"req-1","amount":{"currency_code":"USD","value":"10.00"},"supplementary_data":{"related_ids":{"order_id":"ORDER-1"}}}}`,
			wantRef:     "req-1",
			wantOrder:   "ORDER-1",
			wantOutcome: provider.OutcomeApproved,
		},
		{
			name:        "capture denied",
			body:        `{"id":"WH-2","event_type":"PAYMENT.CAPTURE.DENIED","resource":{"id":"CAP-1","status":"DECLINED","custom_id":"req-1"}}`,
			wantRef:     "req-1",
			wantOutcome: provider.OutcomeDeclined,
		},
		{
			name:        "order approved is not yet settled",
			body:        `{"id":"WH-3","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORDER-1","status":"APPROVED","purchase_units":[{"custom_id":"req-1"}]}}`,
			wantRef:     "req-1",
			wantOrder:   "ORDER-1",
			wantOutcome: provider.OutcomePending,
		},
		{
			name:    "unknown event",
			body:    `{"id":"WH-4","event_type":"BILLING.PLAN.CREATED","resource":{}}`,
			wantErr: true,
		},
		{
			name:    "malformed",
			body:    `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := p.ParseCallback("application/json", []byte(tt.body), nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, domainerrors.ErrInvalidCallback)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRef, n.TransactionRef)
			assert.Equal(t, tt.wantOrder, n.ProviderOrderID)
			assert.Equal(t, tt.wantOutcome, n.Outcome)
		})
	}
}
