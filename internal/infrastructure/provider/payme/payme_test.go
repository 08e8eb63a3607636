package payme

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
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

func setup(t *testing.T, handler http.HandlerFunc) (*PayMeProvider, provider.Config) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gw := gateway.New(providerName, gateway.Options{Timeout: 2 * time.Second}, zap.NewNop())
	return NewPayMeProvider(server.URL, gw, zap.NewNop()), provider.Config{
		Type:        provider.TypePayMe,
		Credentials: json.RawMessage(`{"seller_payme_id":"MPL-SELLER"}`),
	}
}

func TestPayMeProvider_InitiatePayment(t *testing.T) {
	p, cfg := setup(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-sale", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "MPL-SELLER", body["seller_payme_id"])
		assert.Equal(t, float64(12000), body["sale_price"])
		assert.Equal(t, "ILS", body["currency"])
		assert.Equal(t, "req-1", body["transaction_id"])
		assert.Equal(t, "https://pay.test/callbacks/shop/payme", body["sale_callback_url"])

		_, _ = w.Write([]byte(`{"status_code":0,"payme_sale_id":"SALE-1","payme_sale_code":1234,"sale_url":"https://sandbox.payme.test/sale/SALE-1","transaction_id":"req-1"}`))
	})

	result, err := p.InitiatePayment(context.Background(), cfg, provider.InitiateRequest{
		ProviderRequestID: "req-1",
		Amount:            money.Must(12000, "ILS"),
		CallbackURL:       "https://pay.test/callbacks/shop/payme",
		ReturnURL:         "https://pay.test/callbacks/shop/payme/return",
	})
	require.NoError(t, err)
	assert.Equal(t, "SALE-1", result.ProviderOrderID)
	assert.Equal(t, "https://sandbox.payme.test/sale/SALE-1", result.RedirectURL)
	assert.Equal(t, provider.OutcomePending, result.Outcome)
}

func TestPayMeProvider_InitiatePayment_Rejected(t *testing.T) {
	p, cfg := setup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":1,"status_error_code":350,"status_error_details":"Invalid currency"}`))
	})

	_, err := p.InitiatePayment(context.Background(), cfg, provider.InitiateRequest{
		ProviderRequestID: "req-1",
		Amount:            money.Must(12000, "ILS"),
	})
	require.True(t, domainerrors.IsDecline(err))
	pe, _ := domainerrors.AsProviderError(err)
	assert.Equal(t, "350", pe.Code)
	assert.Equal(t, "Invalid currency", pe.Message)
}

func TestPayMeProvider_CaptureUnsupported(t *testing.T) {
	p := NewPayMeProvider("", nil, zap.NewNop())
	_, err := p.CaptureOrder(context.Background(), provider.Config{}, "SALE-1")
	assert.ErrorIs(t, err, domainerrors.ErrOperationNotSupported)
}

func TestPayMeProvider_GetOrderStatus(t *testing.T) {
	p, cfg := setup(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get-sales", r.URL.Path)
		_, _ = w.Write([]byte(`{"status_code":0,"items":[{"sale_payme_id":"SALE-1","sale_status":"completed","transaction_id":"req-1","payme_transaction_id":"TRX-1","sale_price":12000,"currency":"ILS"}]}`))
	})

	status, err := p.GetOrderStatus(context.Background(), cfg, "SALE-1")
	require.NoError(t, err)
	assert.Equal(t, provider.OutcomeApproved, status.Outcome)
	assert.Equal(t, "TRX-1", status.ProviderTransactionID)
	assert.Equal(t, money.Must(12000, "ILS"), *status.Amount)
}

func TestPayMeProvider_Refund(t *testing.T) {
	p, cfg := setup(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refund-sale", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SALE-1", body["payme_sale_id"])
		assert.Equal(t, float64(5000), body["sale_refund_amount"])
		_, _ = w.Write([]byte(`{"status_code":0,"payme_status":"success","sale_status":"partial-refund","payme_transaction_id":"TRX-R1"}`))
	})

	result, err := p.Refund(context.Background(), cfg, provider.RefundRequest{
		ProviderOrderID: "SALE-1",
		Amount:          money.Must(5000, "ILS"),
	})
	require.NoError(t, err)
	assert.Equal(t, "TRX-R1", result.ProviderRefundID)
	assert.Equal(t, "partial-refund", result.Status)
}

func TestPayMeProvider_ParseCallback(t *testing.T) {
	p := NewPayMeProvider("", nil, zap.NewNop())

	form := url.Values{
		"status_code":          {"0"},
		"sale_status":          {"completed"},
		"transaction_id":       {"req-1"},
		"payme_sale_id":        {"SALE-1"},
		"payme_transaction_id": {"TRX-1"},
		"price":                {"12000"},
		"currency":             {"ILS"},
	}

	tests := []struct {
		name        string
		contentType string
		body        []byte
		query       url.Values
		wantOutcome provider.Outcome
		wantErr     bool
	}{
		{
			name:        "form post completed",
			contentType: "application/x-www-form-urlencoded",
			body:        []byte(form.Encode()),
			wantOutcome: provider.OutcomeApproved,
		},
		{
			name:        "json body completed",
			contentType: "application/json; charset=utf-8",
			body:        []byte(`{"status_code":0,"sale_status":"completed","transaction_id":"req-1","payme_sale_id":"SALE-1","payme_transaction_id":"TRX-1","price":12000,"currency":"ILS"}`),
			wantOutcome: provider.OutcomeApproved,
		},
		{
			name:        "3ds return query",
			query:       form,
			wantOutcome: provider.OutcomeApproved,
		},
		{
			name:        "non zero status code is a decline",
			contentType: "application/x-www-form-urlencoded",
			body:        []byte("status_code=1&sale_status=failed&transaction_id=req-1&payme_sale_id=SALE-1&status_error_details=Card+declined"),
			wantOutcome: provider.OutcomeDeclined,
		},
		{
			name:        "initial sale is pending",
			contentType: "application/x-www-form-urlencoded",
			body:        []byte("status_code=0&sale_status=initial&transaction_id=req-1"),
			wantOutcome: provider.OutcomePending,
		},
		{
			name:        "missing status code",
			contentType: "application/x-www-form-urlencoded",
			body:        []byte("transaction_id=req-1"),
			wantErr:     true,
		},
		{
			name:        "missing reference",
			contentType: "application/x-www-form-urlencoded",
			body:        []byte("status_code=0"),
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := p.ParseCallback(tt.contentType, tt.body, tt.query)
			if tt.wantErr {
				assert.ErrorIs(t, err, domainerrors.ErrInvalidCallback)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "req-1", n.TransactionRef)
			assert.Equal(t, tt.wantOutcome, n.Outcome)
			if tt.wantOutcome == provider.OutcomeApproved {
				require.NotNil(t, n.Amount)
				assert.Equal(t, money.Must(12000, "ILS"), *n.Amount)
				assert.Equal(t, "SALE-1", n.ProviderOrderID)
				assert.Equal(t, "TRX-1", n.ProviderTransactionID)
			}
		})
	}
}
