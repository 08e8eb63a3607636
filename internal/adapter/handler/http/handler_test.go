package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/paycore/internal/config"
	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
	"github.com/wekeepgrowing/paycore/internal/infrastructure/database"
	"github.com/wekeepgrowing/paycore/internal/infrastructure/provider/payme"
	"github.com/wekeepgrowing/paycore/internal/middleware/auth"
	"github.com/wekeepgrowing/paycore/internal/testutil"
	"github.com/wekeepgrowing/paycore/internal/usecase"
	"github.com/wekeepgrowing/paycore/internal/usecase/issuance"
	apperrors "github.com/wekeepgrowing/paycore/pkg/errors"
)

const jwtSecret = "handler-test-secret"

// MockAdapter is a mock implementation of provider.Adapter
type MockAdapter struct {
	mock.Mock
	typ   provider.Type
	shape provider.Shape
}

func (m *MockAdapter) Type() provider.Type   { return m.typ }
func (m *MockAdapter) Shape() provider.Shape { return m.shape }

func (m *MockAdapter) InitiatePayment(ctx context.Context, cfg provider.Config, req provider.InitiateRequest) (*provider.InitiateResult, error) {
	args := m.Called(ctx, cfg, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.InitiateResult), args.Error(1)
}

func (m *MockAdapter) CaptureOrder(ctx context.Context, cfg provider.Config, providerOrderID string) (*provider.CaptureResult, error) {
	args := m.Called(ctx, cfg, providerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CaptureResult), args.Error(1)
}

func (m *MockAdapter) GetOrderStatus(ctx context.Context, cfg provider.Config, providerOrderID string) (*provider.OrderStatus, error) {
	args := m.Called(ctx, cfg, providerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.OrderStatus), args.Error(1)
}

func (m *MockAdapter) Refund(ctx context.Context, cfg provider.Config, req provider.RefundRequest) (*provider.RefundResult, error) {
	args := m.Called(ctx, cfg, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.RefundResult), args.Error(1)
}

type testServer struct {
	e      *echo.Echo
	db     *gorm.DB
	repos  *repository.Repositories
	stripe *MockAdapter
	paypal *MockAdapter
	store  *model.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	db := testutil.NewTestDB(t)
	repos := database.NewRepositories(db, logger)
	tx := database.NewTransactor(db, logger)

	stripeAdapter := &MockAdapter{typ: provider.TypeStripe, shape: provider.ShapeSyncCharge}
	paypalAdapter := &MockAdapter{typ: provider.TypePayPal, shape: provider.ShapeRedirectCapture}
	providers := provider.NewRegistry(stripeAdapter, paypalAdapter, payme.NewPayMeProvider("", nil, logger))

	reconciler := usecase.NewReconcileService(repos, tx, providers, issuance.DefaultRegistry(logger), nil, logger)
	checkout := usecase.NewCheckoutService(repos, providers, reconciler, config.PaymentsConfig{CallbackBaseURL: "https://pay.example.com"}, logger)
	capture := usecase.NewCaptureService(repos, providers, reconciler, logger)
	refunds := usecase.NewRefundService(repos, tx, providers, logger)
	orders := usecase.NewOrderQueryService(repos, logger)

	e := echo.New()
	e.Validator = NewRequestValidator()

	checkoutHandler := NewCheckoutHandler(logger, checkout, reconciler, capture)
	webhookHandler := NewWebhookHandler(logger, providers, reconciler, repos.Stores)
	refundHandler := NewRefundHandler(logger, refunds, orders)

	e.POST("/api/v1/checkout/:storeSlug/payments", checkoutHandler.CreatePayment)
	e.POST("/api/v1/checkout/:storeSlug/payments/:pendingId/poll", checkoutHandler.PollPayment)
	e.POST("/api/v1/checkout/capture", checkoutHandler.Capture)
	e.POST("/callbacks/:storeSlug/:provider", webhookHandler.HandleCallback)
	e.GET("/callbacks/:storeSlug/:provider/return", webhookHandler.HandleReturn)

	staff := e.Group("/api/v1", auth.JWTMiddleware(auth.JWTConfig{Secret: jwtSecret, Logger: logger}))
	staff.POST("/refunds", refundHandler.CreateRefund)
	staff.GET("/stores/:storeSlug/orders/:orderId", refundHandler.GetOrder)

	store := testutil.StoreFixture(t, db, "tel-aviv", "ILS")
	testutil.ProviderConfigFixture(t, db, store.ID, "stripe", map[string]string{"secret_key": "sk_test_1"})
	testutil.ProviderConfigFixture(t, db, store.ID, "paypal", map[string]string{"client_id": "id", "client_secret": "secret"})
	testutil.ProviderConfigFixture(t, db, store.ID, "payme", map[string]string{"seller_payme_id": "MPL-1"})

	return &testServer{e: e, db: db, repos: repos, stripe: stripeAdapter, paypal: paypalAdapter, store: store}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, strings.NewReader(string(raw)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func staffToken(t *testing.T, store *model.Store) string {
	t.Helper()
	token, err := auth.SignStaffToken(jwtSecret, auth.StaffClaims{
		StoreID:   store.ID.String(),
		StoreSlug: store.Slug,
		Role:      auth.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func paymeForm(ref, statusCode, saleStatus string) url.Values {
	return url.Values{
		"status_code":          {statusCode},
		"sale_status":          {saleStatus},
		"transaction_id":       {ref},
		"payme_sale_id":        {"SALE-" + ref},
		"payme_transaction_id": {"TRX-" + ref},
		"price":                {"12000"},
		"currency":             {"ILS"},
	}
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

// chargeStripe settles a 120.00 ILS order through the synchronous checkout.
func (s *testServer) chargeStripe(t *testing.T) string {
	t.Helper()
	amount := money.Must(12000, "ILS")
	s.stripe.On("InitiatePayment", mock.Anything, mock.Anything, mock.Anything).Return(&provider.InitiateResult{
		ProviderOrderID:       "pi_1",
		ProviderTransactionID: "ch_1",
		Outcome:               provider.OutcomeApproved,
		StatusCode:            "succeeded",
		Amount:                &amount,
	}, nil).Once()

	rec := s.do(jsonRequest(http.MethodPost, "/api/v1/checkout/tel-aviv/payments", echo.Map{
		"provider":        "stripe",
		"amount":          "120.00",
		"customerRef":     "buyer@example.com",
		"paymentMethodId": "pm_card_visa",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	return body["orderId"].(string)
}

func TestCallback_PayMeFormSettlesOrder(t *testing.T) {
	s := newTestServer(t)
	pending := testutil.PendingPaymentFixture(t, s.db, s.store.ID, "payme", 12000, "ILS", nil)

	rec := s.do(postForm("/callbacks/tel-aviv/payme", paymeForm(pending.ProviderRequestID, "0", "completed")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, string(model.CallbackOutcomeApplied), body["outcome"])

	// the provider retries; the answer stays 200 and nothing changes
	rec = s.do(postForm("/callbacks/tel-aviv/payme", paymeForm(pending.ProviderRequestID, "0", "completed")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(model.CallbackOutcomeNoop), decode(t, rec)["outcome"])

	assert.EqualValues(t, 1, testutil.Count(t, s.db, &model.PaymentTransaction{},
		"pending_payment_id = ? AND status = ?", pending.ID, model.TransactionStatusSuccess))
	assert.EqualValues(t, 1, testutil.Count(t, s.db, &model.OutboxEvent{}, "event_type = ?", model.EventOrderPaid))
}

func TestCallback_Rejections(t *testing.T) {
	s := newTestServer(t)
	pending := testutil.PendingPaymentFixture(t, s.db, s.store.ID, "payme", 12000, "ILS", nil)

	tests := []struct {
		name   string
		target string
		form   url.Values
		status int
		code   string
	}{
		{"unknown store", "/callbacks/nowhere/payme", paymeForm(pending.ProviderRequestID, "0", "completed"), http.StatusNotFound, apperrors.ErrNotFound},
		{"unknown provider", "/callbacks/tel-aviv/square", paymeForm(pending.ProviderRequestID, "0", "completed"), http.StatusNotFound, apperrors.ErrNotFound},
		{"unknown pending payment", "/callbacks/tel-aviv/payme", paymeForm("no-such-ref", "0", "completed"), http.StatusNotFound, apperrors.ErrNotFound},
		{"malformed payload", "/callbacks/tel-aviv/payme", url.Values{"foo": {"bar"}}, http.StatusBadRequest, apperrors.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(postForm(tt.target, tt.form))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["errorCode"])
		})
	}

	reloaded, err := s.repos.PendingPayments.GetByID(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusPending, reloaded.Status)
}

func TestReturn_RedirectsToStorePages(t *testing.T) {
	s := newTestServer(t)

	t.Run("approved", func(t *testing.T) {
		pending := testutil.PendingPaymentFixture(t, s.db, s.store.ID, "payme", 12000, "ILS", nil)
		q := paymeForm(pending.ProviderRequestID, "0", "completed")

		rec := s.do(httptest.NewRequest(http.MethodGet, "/callbacks/tel-aviv/payme/return?"+q.Encode(), nil))
		require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

		loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
		require.NoError(t, err)
		assert.Equal(t, "tel-aviv.example.com", loc.Host)
		assert.Equal(t, "/order-confirmation", loc.Path)
		assert.NotEmpty(t, loc.Query().Get("order"))
	})

	t.Run("declined", func(t *testing.T) {
		pending := testutil.PendingPaymentFixture(t, s.db, s.store.ID, "payme", 12000, "ILS", nil)
		q := paymeForm(pending.ProviderRequestID, "1", "failed")

		rec := s.do(httptest.NewRequest(http.MethodGet, "/callbacks/tel-aviv/payme/return?"+q.Encode(), nil))
		require.Equal(t, http.StatusFound, rec.Code)

		loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
		require.NoError(t, err)
		assert.Equal(t, "/checkout", loc.Path)
		assert.NotEmpty(t, loc.Query().Get("error"))
	})

	t.Run("unknown payment", func(t *testing.T) {
		q := paymeForm("no-such-ref", "0", "completed")
		rec := s.do(httptest.NewRequest(http.MethodGet, "/callbacks/tel-aviv/payme/return?"+q.Encode(), nil))
		require.Equal(t, http.StatusFound, rec.Code)

		loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
		require.NoError(t, err)
		assert.Equal(t, apperrors.ErrNotFound, loc.Query().Get("error"))
	})
}

func TestCreatePayment_SyncChargeReturnsOrder(t *testing.T) {
	s := newTestServer(t)
	orderID := s.chargeStripe(t)
	assert.NotEmpty(t, orderID)

	var order model.Order
	require.NoError(t, s.db.First(&order, "id = ?", orderID).Error)
	assert.Equal(t, model.FinancialStatusPaid, order.FinancialStatus)
	assert.Equal(t, int64(12000), order.TotalAmount)
}

func TestCreatePayment_DeclineIsLocalized(t *testing.T) {
	s := newTestServer(t)
	s.stripe.On("InitiatePayment", mock.Anything, mock.Anything, mock.Anything).Return(nil,
		domainerrors.NewDeclineError("stripe", "card_declined", "Your card was declined.")).Once()

	req := jsonRequest(http.MethodPost, "/api/v1/checkout/tel-aviv/payments", echo.Map{
		"provider":        "stripe",
		"amount":          "120.00",
		"paymentMethodId": "pm_card_chargeDeclined",
	})
	req.Header.Set("Accept-Language", "he-IL,he;q=0.9,en;q=0.8")

	rec := s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, apperrors.ErrProviderDeclined, body["errorCode"])
	assert.Equal(t, checkoutMessages[apperrors.ErrProviderDeclined].he, body["error"])
}

func TestCreatePayment_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body echo.Map
	}{
		{"missing provider", echo.Map{"amount": "10.00"}},
		{"unknown provider", echo.Map{"provider": "square", "amount": "10.00"}},
		{"missing amount", echo.Map{"provider": "stripe"}},
		{"bad amount", echo.Map{"provider": "stripe", "amount": "ten"}},
		{"unknown purpose", echo.Map{"provider": "stripe", "amount": "10.00", "purpose": echo.Map{"type": "raffle"}}},
		{"gift card without recipient", echo.Map{"provider": "stripe", "amount": "10.00", "purpose": echo.Map{"type": "gift_card", "data": echo.Map{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(jsonRequest(http.MethodPost, "/api/v1/checkout/tel-aviv/payments", tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, apperrors.ErrInvalidArgument, body["errorCode"])
			assert.Equal(t, checkoutMessages[apperrors.ErrInvalidArgument].en, body["error"])
		})
	}
	s.stripe.AssertNotCalled(t, "InitiatePayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestCapture_NotReady(t *testing.T) {
	s := newTestServer(t)
	pending := testutil.PendingPaymentFixture(t, s.db, s.store.ID, "paypal", 12000, "ILS", nil)
	require.NoError(t, s.repos.PendingPayments.AttachProviderOrder(context.Background(), pending.ID, "PP-ORDER-1"))

	s.paypal.On("CaptureOrder", mock.Anything, mock.Anything, "PP-ORDER-1").Return(nil,
		domainerrors.ErrNotReady).Once()

	rec := s.do(jsonRequest(http.MethodPost, "/api/v1/checkout/capture", echo.Map{
		"storeSlug":       "tel-aviv",
		"providerOrderId": "PP-ORDER-1",
	}))
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, apperrors.ErrNotReady, decode(t, rec)["errorCode"])
}

func TestRefund_RequiresStaffOfStore(t *testing.T) {
	s := newTestServer(t)
	orderID := s.chargeStripe(t)
	payload := echo.Map{"storeSlug": "tel-aviv", "orderId": orderID, "amount": "10.00"}

	rec := s.do(jsonRequest(http.MethodPost, "/api/v1/refunds", payload))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := testutil.StoreFixture(t, s.db, "haifa", "ILS")
	req := jsonRequest(http.MethodPost, "/api/v1/refunds", payload)
	req.Header.Set(echo.HeaderAuthorization, staffToken(t, other))
	rec = s.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Equal(t, apperrors.ErrUnauthorized, decode(t, rec)["errorCode"])

	s.stripe.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefund_PartialRefundThenOrderRead(t *testing.T) {
	s := newTestServer(t)
	orderID := s.chargeStripe(t)
	token := staffToken(t, s.store)

	s.stripe.On("Refund", mock.Anything, mock.Anything, mock.MatchedBy(func(req provider.RefundRequest) bool {
		return req.Amount.Amount == 5000 && req.IdempotencyKey != ""
	})).Return(&provider.RefundResult{
		ProviderRefundID: "re_1",
		Status:           "succeeded",
		Amount:           money.Must(5000, "ILS"),
	}, nil).Once()

	req := jsonRequest(http.MethodPost, "/api/v1/refunds", echo.Map{
		"storeSlug": "tel-aviv", "orderId": orderID, "amount": "50.00", "reason": "damaged",
	})
	req.Header.Set(echo.HeaderAuthorization, token)
	req.Header.Set("Idempotency-Key", "refund-key-1")
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, string(model.FinancialStatusPartiallyRefunded), body["newFinancialStatus"])
	assert.Equal(t, "50.00", body["refundedAmount"].(map[string]interface{})["amount"])

	// same key again is rejected without a second provider call
	req = jsonRequest(http.MethodPost, "/api/v1/refunds", echo.Map{
		"storeSlug": "tel-aviv", "orderId": orderID, "amount": "50.00",
	})
	req.Header.Set(echo.HeaderAuthorization, token)
	req.Header.Set("Idempotency-Key", "refund-key-1")
	rec = s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.ErrAlreadyProcessed, decode(t, rec)["errorCode"])

	// more than what is left after the first refund reads as a retry
	req = jsonRequest(http.MethodPost, "/api/v1/refunds", echo.Map{
		"storeSlug": "tel-aviv", "orderId": orderID, "amount": "70.01",
	})
	req.Header.Set(echo.HeaderAuthorization, token)
	rec = s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.ErrAlreadyProcessed, decode(t, rec)["errorCode"])

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stores/tel-aviv/orders/"+orderID, nil)
	req.Header.Set(echo.HeaderAuthorization, token)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var order OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, string(model.FinancialStatusPartiallyRefunded), order.FinancialStatus)
	assert.Equal(t, "120.00", order.Charged)
	assert.Equal(t, "50.00", order.Refunded)
	assert.Equal(t, "70.00", order.RefundableBalance)
	assert.Len(t, order.Transactions, 2)
	require.Len(t, order.Refunds, 1)
	assert.Equal(t, "damaged", order.Refunds[0].Reason)

	s.stripe.AssertNumberOfCalls(t, "Refund", 1)
}

func TestRefund_ProviderDeclineCarriesProviderMessage(t *testing.T) {
	s := newTestServer(t)
	orderID := s.chargeStripe(t)

	s.stripe.On("Refund", mock.Anything, mock.Anything, mock.Anything).Return(nil,
		domainerrors.NewDeclineError("stripe", "charge_disputed", "Charge ch_1 has been charged back")).Once()

	req := jsonRequest(http.MethodPost, "/api/v1/refunds", echo.Map{
		"storeSlug": "tel-aviv", "orderId": orderID, "amount": "10.00",
	})
	req.Header.Set(echo.HeaderAuthorization, staffToken(t, s.store))
	rec := s.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, apperrors.ErrProviderDeclined, body["errorCode"])
	assert.Equal(t, "Charge ch_1 has been charged back", body["providerMessage"])
}

func TestPrefersHebrew(t *testing.T) {
	assert.True(t, prefersHebrew("he"))
	assert.True(t, prefersHebrew("he-IL,en;q=0.5"))
	assert.True(t, prefersHebrew("iw"))
	assert.False(t, prefersHebrew(""))
	assert.False(t, prefersHebrew("en-US,he;q=0.9"))
	assert.Equal(t, checkoutMessages[apperrors.ErrInternal].en, localizedCheckoutMessage("SOMETHING_ELSE", "en"))
}
