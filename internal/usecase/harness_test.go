package usecase_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
	"github.com/wekeepgrowing/paycore/internal/infrastructure/database"
	"github.com/wekeepgrowing/paycore/internal/testutil"
	"github.com/wekeepgrowing/paycore/internal/usecase"
	"github.com/wekeepgrowing/paycore/internal/usecase/issuance"
)

// MockAdapter is a mock implementation of provider.Adapter
type MockAdapter struct {
	mock.Mock
	typ   provider.Type
	shape provider.Shape
}

func NewMockAdapter(t provider.Type, shape provider.Shape) *MockAdapter {
	return &MockAdapter{typ: t, shape: shape}
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

func (m *MockAdapter) ParseCallback(contentType string, body []byte, query url.Values) (*provider.Notification, error) {
	args := m.Called(contentType, body, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Notification), args.Error(1)
}

type harness struct {
	db         *gorm.DB
	repos      *repository.Repositories
	tx         repository.Transactor
	providers  *provider.Registry
	reconciler *usecase.ReconcileService
	store      *model.Store
}

func newHarness(t *testing.T, adapters ...provider.Adapter) *harness {
	t.Helper()
	db := testutil.NewTestDB(t)
	logger := zap.NewNop()
	repos := database.NewRepositories(db, logger)
	tx := database.NewTransactor(db, logger)
	providers := provider.NewRegistry(adapters...)

	return &harness{
		db:         db,
		repos:      repos,
		tx:         tx,
		providers:  providers,
		reconciler: usecase.NewReconcileService(repos, tx, providers, issuance.DefaultRegistry(logger), nil, logger),
		store:      testutil.StoreFixture(t, db, "shop", "USD"),
	}
}

func (h *harness) successfulCharges(t *testing.T, pendingID interface{}) int64 {
	t.Helper()
	return testutil.Count(t, h.db, &model.PaymentTransaction{},
		"pending_payment_id = ? AND type = ? AND status = ?", pendingID, model.TransactionKindCharge, model.TransactionStatusSuccess)
}

func (h *harness) events(t *testing.T, eventType string) int64 {
	t.Helper()
	return testutil.Count(t, h.db, &model.OutboxEvent{}, "store_id = ? AND event_type = ?", h.store.ID, eventType)
}

// settle drives a pending payment to paid through the reconciler.
func (h *harness) settle(t *testing.T, providerName string, amount int64, currency string) (*model.Order, *model.PendingPayment) {
	t.Helper()
	pending := testutil.PendingPaymentFixture(t, h.db, h.store.ID, providerName, amount, currency, nil)
	m := money.Must(amount, currency)
	result, err := h.reconciler.Reconcile(context.Background(), usecase.ReconcileInput{
		StoreSlug: h.store.Slug,
		Provider:  provider.Type(providerName),
		Notification: &provider.Notification{
			TransactionRef:        pending.ProviderRequestID,
			ProviderTransactionID: "pi_" + pending.ID.String()[:8],
			Outcome:               provider.OutcomeApproved,
			Amount:                &m,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result.OrderID)

	order, err := h.repos.Orders.GetByID(context.Background(), *result.OrderID)
	require.NoError(t, err)
	require.Equal(t, model.FinancialStatusPaid, order.FinancialStatus)
	return order, pending
}
