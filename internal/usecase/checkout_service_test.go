package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/paycore/internal/config"
	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/testutil"
	"github.com/wekeepgrowing/paycore/internal/usecase"
)

type checkoutFixture struct {
	*harness
	stripe  *MockAdapter
	payme   *MockAdapter
	service *usecase.CheckoutService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	stripe := NewMockAdapter(provider.TypeStripe, provider.ShapeSyncCharge)
	payme := NewMockAdapter(provider.TypePayMe, provider.ShapeWebhookSettlement)
	h := newHarness(t, stripe, payme)
	testutil.ProviderConfigFixture(t, h.db, h.store.ID, "stripe", map[string]string{"secret_key": "sk_test_1"})
	testutil.ProviderConfigFixture(t, h.db, h.store.ID, "payme", map[string]string{"seller_payme_id": "MPL-1"})

	return &checkoutFixture{
		harness: h,
		stripe:  stripe,
		payme:   payme,
		service: usecase.NewCheckoutService(h.repos, h.providers, h.reconciler, config.PaymentsConfig{
			CallbackBaseURL: "https://pay.example.com/",
		}, zap.NewNop()),
	}
}

func TestCheckoutService_SyncChargeSettlesImmediately(t *testing.T) {
	f := newCheckoutFixture(t)
	amount := money.Must(2599, "USD")
	f.stripe.On("InitiatePayment", mock.Anything, mock.Anything, mock.MatchedBy(func(req provider.InitiateRequest) bool {
		return req.Amount == amount && req.PaymentMethodID == "pm_card_visa" && req.CustomerEmail == "buyer@example.com"
	})).Return(&provider.InitiateResult{
		ProviderOrderID:       "pi_123",
		ProviderTransactionID: "pi_123",
		Outcome:               provider.OutcomeApproved,
		StatusCode:            "succeeded",
		Amount:                &amount,
	}, nil).Once()

	out, err := f.service.Initiate(context.Background(), usecase.CheckoutInput{
		StoreSlug:       "shop",
		Provider:        "stripe",
		Amount:          "25.99",
		CustomerRef:     "buyer@example.com",
		PaymentMethodID: "pm_card_visa",
		Purpose:         model.GiftCardPurpose{RecipientEmail: "friend@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusCompleted, out.Status)
	assert.Equal(t, model.FinancialStatusPaid, out.FinancialStatus)
	require.NotNil(t, out.OrderID)

	assert.EqualValues(t, 1, f.successfulCharges(t, out.PendingPaymentID))
	assert.EqualValues(t, 1, testutil.Count(t, f.db, &model.GiftCard{}, "pending_payment_id = ?", out.PendingPaymentID))

	stored, err := f.repos.PendingPayments.GetByID(context.Background(), out.PendingPaymentID)
	require.NoError(t, err)
	require.NotNil(t, stored.ProviderOrderID)
	assert.Equal(t, "pi_123", *stored.ProviderOrderID)
}

func TestCheckoutService_SyncDecline(t *testing.T) {
	f := newCheckoutFixture(t)
	f.stripe.On("InitiatePayment", mock.Anything, mock.Anything, mock.Anything).Return(&provider.InitiateResult{
		ProviderOrderID: "pi_456",
		Outcome:         provider.OutcomeDeclined,
		StatusCode:      "card_declined",
		DeclineMessage:  "Your card was declined.",
	}, nil).Once()

	_, err := f.service.Initiate(context.Background(), usecase.CheckoutInput{
		StoreSlug: "shop", Provider: "stripe", Amount: "10.00", PaymentMethodID: "pm_card_chargeDeclined",
	})
	require.Error(t, err)
	pe, ok := domainerrors.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "card_declined", pe.Code)
	assert.Equal(t, "Your card was declined.", pe.Message)

	assert.EqualValues(t, 1, testutil.Count(t, f.db, &model.PendingPayment{}, "status = ?", model.PendingStatusFailed))
	assert.EqualValues(t, 0, testutil.Count(t, f.db, &model.Order{}, ""))
}

func TestCheckoutService_WebhookProviderReturnsRedirect(t *testing.T) {
	f := newCheckoutFixture(t)
	f.payme.On("InitiatePayment", mock.Anything, mock.Anything, mock.MatchedBy(func(req provider.InitiateRequest) bool {
		return req.CallbackURL == "https://pay.example.com/callbacks/shop/payme" &&
			req.ReturnURL == "https://pay.example.com/callbacks/shop/payme/return" &&
			req.Language == "he"
	})).Return(&provider.InitiateResult{
		ProviderOrderID: "SALE-1",
		RedirectURL:     "https://sandbox.payme.io/sale/SALE-1",
		Outcome:         provider.OutcomePending,
	}, nil).Once()

	out, err := f.service.Initiate(context.Background(), usecase.CheckoutInput{
		StoreSlug: "shop", Provider: "payme", Amount: "120.00", Currency: "ils", Language: "he",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusPending, out.Status)
	assert.Equal(t, "https://sandbox.payme.io/sale/SALE-1", out.RedirectURL)
	assert.Equal(t, money.Must(12000, "ILS"), out.Amount)

	stored, err := f.repos.PendingPayments.FindByProviderOrder(context.Background(), f.store.ID, "payme", "SALE-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, out.PendingPaymentID, stored.ID)
	assert.InDelta(t, 30*60, stored.ExpiresAt.Sub(stored.CreatedAt).Seconds(), 5)
}

func TestCheckoutService_RetryableFailureLeavesPending(t *testing.T) {
	f := newCheckoutFixture(t)
	f.payme.On("InitiatePayment", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domainerrors.NewRetryableError("payme", "HTTP_503", "service unavailable", nil)).Once()

	_, err := f.service.Initiate(context.Background(), usecase.CheckoutInput{StoreSlug: "shop", Provider: "payme", Amount: "5.00"})
	require.Error(t, err)
	assert.EqualValues(t, 1, testutil.Count(t, f.db, &model.PendingPayment{}, "status = ?", model.PendingStatusPending))
}

func TestCheckoutService_Validation(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.service.Initiate(ctx, usecase.CheckoutInput{StoreSlug: "shop", Provider: "paypal", Amount: "5.00"})
	assert.ErrorIs(t, err, domainerrors.ErrUnsupportedProvider)

	_, err = f.service.Initiate(ctx, usecase.CheckoutInput{StoreSlug: "shop", Provider: "bitcoin", Amount: "5.00"})
	assert.ErrorIs(t, err, domainerrors.ErrUnsupportedProvider)

	_, err = f.service.Initiate(ctx, usecase.CheckoutInput{StoreSlug: "shop", Provider: "stripe", Amount: "5.001"})
	assert.ErrorIs(t, err, money.ErrInvalidAmount)

	_, err = f.service.Initiate(ctx, usecase.CheckoutInput{StoreSlug: "missing", Provider: "stripe", Amount: "5.00"})
	assert.ErrorIs(t, err, domainerrors.ErrStoreNotFound)

	other := testutil.StoreFixture(t, f.db, "unconfigured", "USD")
	_, err = f.service.Initiate(ctx, usecase.CheckoutInput{StoreSlug: other.Slug, Provider: "stripe", Amount: "5.00"})
	assert.ErrorIs(t, err, domainerrors.ErrProviderNotConfigured)

	assert.EqualValues(t, 0, testutil.Count(t, f.db, &model.PendingPayment{}, ""))
	f.stripe.AssertNotCalled(t, "InitiatePayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutService_StorefrontOrderMustMatch(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	order := &model.Order{
		StoreID:         f.store.ID,
		OrderNumber:     "SF-9",
		TotalAmount:     1000,
		Currency:        "USD",
		FinancialStatus: model.FinancialStatusPending,
	}
	require.NoError(t, f.repos.Orders.Create(ctx, order))

	_, err := f.service.Initiate(ctx, usecase.CheckoutInput{
		StoreSlug: "shop", Provider: "stripe", Amount: "9.99",
		Purpose: model.StorefrontOrderPurpose{OrderID: &order.ID},
	})
	assert.ErrorIs(t, err, money.ErrInvalidAmount)
}
