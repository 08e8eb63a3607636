package usecase_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/testutil"
	"github.com/wekeepgrowing/paycore/internal/usecase"
)

type captureFixture struct {
	*harness
	adapter *MockAdapter
	service *usecase.CaptureService
	pending *model.PendingPayment
}

func newCaptureFixture(t *testing.T) *captureFixture {
	adapter := NewMockAdapter(provider.TypePayPal, provider.ShapeRedirectCapture)
	h := newHarness(t, adapter)
	testutil.ProviderConfigFixture(t, h.db, h.store.ID, "paypal", map[string]string{"client_id": "id", "client_secret": "secret"})
	pending := testutil.PendingPaymentFixture(t, h.db, h.store.ID, "paypal", 4500, "USD", nil)
	require.NoError(t, h.repos.PendingPayments.AttachProviderOrder(context.Background(), pending.ID, "5O190127TN364715T"))

	return &captureFixture{
		harness: h,
		adapter: adapter,
		service: usecase.NewCaptureService(h.repos, h.providers, h.reconciler, zap.NewNop()),
		pending: pending,
	}
}

func (f *captureFixture) confirm() (*usecase.CaptureOutput, error) {
	return f.service.Confirm(context.Background(), usecase.CaptureInput{
		StoreSlug:       f.store.Slug,
		ProviderOrderID: "5O190127TN364715T",
	})
}

func completedCapture(already bool) *provider.CaptureResult {
	amount := money.Must(4500, "USD")
	return &provider.CaptureResult{
		ProviderOrderID: "5O190127TN364715T",
		CaptureID:       "3C679366HH908993F",
		Outcome:         provider.OutcomeApproved,
		StatusCode:      "COMPLETED",
		Amount:          &amount,
		AlreadyCaptured: already,
	}
}

func TestCaptureService_NotReady(t *testing.T) {
	f := newCaptureFixture(t)
	f.adapter.On("CaptureOrder", mock.Anything, mock.Anything, "5O190127TN364715T").
		Return(nil, fmt.Errorf("%w: order status is PAYER_ACTION_REQUIRED", domainerrors.ErrNotReady)).Once()

	_, err := f.confirm()
	assert.ErrorIs(t, err, domainerrors.ErrNotReady)

	stored, err := f.repos.PendingPayments.GetByID(context.Background(), f.pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusPending, stored.Status)
	assert.EqualValues(t, 0, testutil.Count(t, f.db, &model.PaymentTransaction{}, ""))
}

func TestCaptureService_SecondConfirmReturnsPriorResult(t *testing.T) {
	f := newCaptureFixture(t)
	f.adapter.On("CaptureOrder", mock.Anything, mock.Anything, "5O190127TN364715T").
		Return(completedCapture(false), nil).Once()

	first, err := f.confirm()
	require.NoError(t, err)
	assert.Equal(t, "3C679366HH908993F", first.CaptureID)
	assert.Equal(t, model.PendingStatusCompleted, first.Status)
	assert.Equal(t, model.FinancialStatusPaid, first.FinancialStatus)
	assert.False(t, first.Replayed)

	second, err := f.confirm()
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, first.CaptureID, second.CaptureID)
	assert.Equal(t, "45.00", second.Amount.String())

	f.adapter.AssertNumberOfCalls(t, "CaptureOrder", 1)
	assert.EqualValues(t, 1, f.successfulCharges(t, f.pending.ID))
	assert.EqualValues(t, 1, f.events(t, model.EventOrderPaid))
}

func TestCaptureService_ProviderAlreadyCaptured(t *testing.T) {
	f := newCaptureFixture(t)
	f.adapter.On("CaptureOrder", mock.Anything, mock.Anything, "5O190127TN364715T").
		Return(completedCapture(true), nil).Once()

	out, err := f.confirm()
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, model.PendingStatusCompleted, out.Status)
	assert.EqualValues(t, 1, f.successfulCharges(t, f.pending.ID))
}

func TestCaptureService_Declined(t *testing.T) {
	f := newCaptureFixture(t)
	f.adapter.On("CaptureOrder", mock.Anything, mock.Anything, "5O190127TN364715T").
		Return(nil, domainerrors.NewDeclineError("paypal", "INSTRUMENT_DECLINED", "The instrument presented was declined")).Once()

	_, err := f.confirm()
	require.Error(t, err)
	assert.True(t, domainerrors.IsDecline(err))

	stored, err := f.repos.PendingPayments.GetByID(context.Background(), f.pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusFailed, stored.Status)

	_, err = f.confirm()
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyProcessed)
	f.adapter.AssertNumberOfCalls(t, "CaptureOrder", 1)
}

func TestCaptureService_RetryableWritesNothing(t *testing.T) {
	f := newCaptureFixture(t)
	f.adapter.On("CaptureOrder", mock.Anything, mock.Anything, "5O190127TN364715T").
		Return(nil, domainerrors.NewRetryableError("paypal", "TIMEOUT", "request timed out", nil)).Once()
	f.adapter.On("CaptureOrder", mock.Anything, mock.Anything, "5O190127TN364715T").
		Return(completedCapture(false), nil).Once()

	_, err := f.confirm()
	require.Error(t, err)
	pe, ok := domainerrors.AsProviderError(err)
	require.True(t, ok)
	assert.True(t, pe.Retryable())
	assert.EqualValues(t, 0, testutil.Count(t, f.db, &model.PaymentTransaction{}, ""))

	out, err := f.confirm()
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusCompleted, out.Status)
}

func TestCaptureService_ExpiredPendingIsNotCaptured(t *testing.T) {
	f := newCaptureFixture(t)
	require.NoError(t, f.db.Model(&model.PendingPayment{}).
		Where("id = ?", f.pending.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error)

	_, err := f.confirm()
	assert.ErrorIs(t, err, domainerrors.ErrPaymentExpired)

	f.adapter.AssertNotCalled(t, "CaptureOrder", mock.Anything, mock.Anything, mock.Anything)
	assert.EqualValues(t, 0, f.successfulCharges(t, f.pending.ID))
	assert.EqualValues(t, 0, f.events(t, model.EventOrderPaid))
}

func TestCaptureService_CapturedPaymentSettlesAfterTTL(t *testing.T) {
	f := newCaptureFixture(t)
	require.NoError(t, f.db.Model(&model.PendingPayment{}).
		Where("id = ?", f.pending.ID).
		Updates(map[string]interface{}{
			"status":     model.PendingStatusCaptured,
			"expires_at": time.Now().UTC().Add(-time.Minute),
		}).Error)
	f.adapter.On("CaptureOrder", mock.Anything, mock.Anything, "5O190127TN364715T").
		Return(completedCapture(true), nil).Once()

	out, err := f.confirm()
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusCompleted, out.Status)
	assert.EqualValues(t, 1, f.successfulCharges(t, f.pending.ID))
}

func TestCaptureService_UnknownOrder(t *testing.T) {
	f := newCaptureFixture(t)

	_, err := f.service.Confirm(context.Background(), usecase.CaptureInput{StoreSlug: f.store.Slug, ProviderOrderID: "missing"})
	assert.ErrorIs(t, err, domainerrors.ErrPendingPaymentNotFound)

	other := testutil.StoreFixture(t, f.db, "other", "USD")
	_, err = f.service.Confirm(context.Background(), usecase.CaptureInput{StoreSlug: other.Slug, ProviderOrderID: "5O190127TN364715T"})
	assert.ErrorIs(t, err, domainerrors.ErrPendingPaymentNotFound)
}
