package usecase_test

import (
	"context"
	"sync"
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
	apperrors "github.com/wekeepgrowing/paycore/pkg/errors"
)

type refundFixture struct {
	*harness
	adapter *MockAdapter
	service *usecase.RefundService
	order   *model.Order
}

func newRefundFixture(t *testing.T, amount int64) *refundFixture {
	adapter := NewMockAdapter(provider.TypeStripe, provider.ShapeSyncCharge)
	h := newHarness(t, adapter)
	testutil.ProviderConfigFixture(t, h.db, h.store.ID, "stripe", map[string]string{"secret_key": "sk_test_1"})
	order, _ := h.settle(t, "stripe", amount, "USD")
	return &refundFixture{
		harness: h,
		adapter: adapter,
		service: usecase.NewRefundService(h.repos, h.tx, h.providers, zap.NewNop()),
		order:   order,
	}
}

func (f *refundFixture) input(amount string) usecase.RefundInput {
	return usecase.RefundInput{
		StoreSlug:     f.store.Slug,
		StaffStoreID:  f.store.ID,
		OrderID:       f.order.ID,
		Amount:        amount,
		Reason:        "customer request",
		ProcessedByID: "staff-1",
	}
}

func (f *refundFixture) expectRefund(amount int64) {
	f.adapter.On("Refund", mock.Anything, mock.Anything, mock.MatchedBy(func(req provider.RefundRequest) bool {
		return req.Amount.Amount == amount
	})).Return(&provider.RefundResult{
		ProviderRefundID: "re_" + time.Now().Format("150405.000000"),
		Status:           "succeeded",
		Amount:           money.Must(amount, "USD"),
	}, nil)
}

func TestRefundService_PartialThenFullIsExact(t *testing.T) {
	f := newRefundFixture(t, 19999)
	ctx := context.Background()
	f.expectRefund(5000)
	f.expectRefund(14999)

	first, err := f.service.Refund(ctx, f.input("50.00"))
	require.NoError(t, err)
	assert.Equal(t, model.FinancialStatusPartiallyRefunded, first.NewFinancialStatus)
	assert.Equal(t, "50.00", first.RefundedAmount.String())

	second, err := f.service.Refund(ctx, f.input("149.99"))
	require.NoError(t, err)
	assert.Equal(t, model.FinancialStatusRefunded, second.NewFinancialStatus)

	order, err := f.repos.Orders.GetByID(ctx, f.order.ID)
	require.NoError(t, err)
	entries, err := f.repos.Transactions.ListByOrder(ctx, f.order.ID)
	require.NoError(t, err)
	balance := usecase.RefundableBalance(order, entries)
	assert.True(t, balance.IsZero())
	assert.Equal(t, "0.00", balance.String())

	_, err = f.service.Refund(ctx, f.input("0.01"))
	assert.ErrorIs(t, err, domainerrors.ErrNothingToRefund)

	refunds, err := f.repos.Refunds.ListByOrder(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Len(t, refunds, 2)
	assert.EqualValues(t, 2, testutil.Count(t, f.db, &model.OutboxEvent{}, "event_type = ?", model.EventOrderRefunded))
	f.adapter.AssertNumberOfCalls(t, "Refund", 2)
}

func TestRefundService_RejectsOverRefundBeforeProviderCall(t *testing.T) {
	f := newRefundFixture(t, 19999)

	_, err := f.service.Refund(context.Background(), f.input("200.00"))
	assert.ErrorIs(t, err, domainerrors.ErrRefundExceedsBalance)
	f.adapter.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
	assert.EqualValues(t, 0, testutil.Count(t, f.db, &model.PaymentTransaction{}, "type = ?", model.TransactionKindRefund))
}

func TestRefundService_RetryAfterSuccessIsAlreadyProcessed(t *testing.T) {
	f := newRefundFixture(t, 10000)
	f.expectRefund(6000)

	_, err := f.service.Refund(context.Background(), f.input("60.00"))
	require.NoError(t, err)

	_, err = f.service.Refund(context.Background(), f.input("60.00"))
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyProcessed)
	assert.Equal(t, apperrors.ErrAlreadyProcessed, domainerrors.Classify(err).Code())
	f.adapter.AssertNumberOfCalls(t, "Refund", 1)

	// the remainder is still refundable
	f.expectRefund(4000)
	out, err := f.service.Refund(context.Background(), f.input("40.00"))
	require.NoError(t, err)
	assert.Equal(t, model.FinancialStatusRefunded, out.NewFinancialStatus)
}

func TestRefundService_ConcurrentRequestsNeverExceedCharge(t *testing.T) {
	f := newRefundFixture(t, 19999)
	f.expectRefund(10000)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Refund(context.Background(), f.input("100.00"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domainerrors.ErrAlreadyProcessed)
	}
	assert.Equal(t, 1, succeeded)

	entries, err := f.repos.Transactions.ListByOrder(context.Background(), f.order.ID)
	require.NoError(t, err)
	totals := usecase.SumLedger(entries)
	assert.LessOrEqual(t, totals.Refunded, totals.Charged)
	assert.Equal(t, int64(10000), totals.Refunded)
}

func TestRefundService_ProviderDeclineLeavesOrderUntouched(t *testing.T) {
	f := newRefundFixture(t, 19999)
	ctx := context.Background()
	f.adapter.On("Refund", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domainerrors.NewDeclineError("stripe", "charge_disputed", "The charge has been disputed")).Once()

	_, err := f.service.Refund(ctx, f.input("50.00"))
	require.Error(t, err)
	assert.True(t, domainerrors.IsDecline(err))

	order, err := f.repos.Orders.GetByID(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FinancialStatusPaid, order.FinancialStatus)

	var ledger model.PaymentTransaction
	require.NoError(t, f.db.Where("order_id = ? AND type = ?", f.order.ID, model.TransactionKindRefund).First(&ledger).Error)
	assert.Equal(t, model.TransactionStatusFailed, ledger.Status)
	require.NotNil(t, ledger.ErrorCode)
	assert.Equal(t, "charge_disputed", *ledger.ErrorCode)
	require.NotNil(t, ledger.ParentTransactionID)

	refunds, err := f.repos.Refunds.ListByOrder(ctx, f.order.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, model.RefundStatusFailed, refunds[0].Status)

	// the failed attempt no longer reserves balance
	f.expectRefund(19999)
	out, err := f.service.Refund(ctx, f.input("199.99"))
	require.NoError(t, err)
	assert.Equal(t, model.FinancialStatusRefunded, out.NewFinancialStatus)
}

func TestRefundService_IdempotencyKeyReplay(t *testing.T) {
	f := newRefundFixture(t, 19999)
	f.expectRefund(5000)

	in := f.input("50.00")
	in.IdempotencyKey = "refund-abc"
	_, err := f.service.Refund(context.Background(), in)
	require.NoError(t, err)

	_, err = f.service.Refund(context.Background(), in)
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyProcessed)
	f.adapter.AssertNumberOfCalls(t, "Refund", 1)
}

func TestRefundService_Authorization(t *testing.T) {
	f := newRefundFixture(t, 19999)
	other := testutil.StoreFixture(t, f.db, "other", "USD")

	in := f.input("10.00")
	in.StaffStoreID = other.ID
	_, err := f.service.Refund(context.Background(), in)
	assert.ErrorIs(t, err, domainerrors.ErrStoreMismatch)

	in = f.input("10.00")
	in.StoreSlug = "other"
	in.StaffStoreID = other.ID
	_, err = f.service.Refund(context.Background(), in)
	assert.ErrorIs(t, err, domainerrors.ErrOrderNotFound)
}

func TestRefundService_RejectsInvalidAmounts(t *testing.T) {
	f := newRefundFixture(t, 19999)

	for _, amount := range []string{"0", "-5.00", "1.001", "abc"} {
		_, err := f.service.Refund(context.Background(), f.input(amount))
		assert.ErrorIs(t, err, money.ErrInvalidAmount, amount)
	}
}
