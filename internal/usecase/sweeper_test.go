package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/paycore/internal/config"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/testutil"
	"github.com/wekeepgrowing/paycore/internal/usecase"
)

func TestPendingPaymentSweeper_SweepOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stale := testutil.PendingPaymentFixture(t, h.db, h.store.ID, "payme", 1000, "USD", nil)
	fresh := testutil.PendingPaymentFixture(t, h.db, h.store.ID, "payme", 1000, "USD", nil)
	require.NoError(t, h.db.Model(&model.PendingPayment{}).Where("id = ?", stale.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Hour)).Error)

	sweeper := usecase.NewPendingPaymentSweeper(h.repos.PendingPayments, config.PaymentsConfig{}, zap.NewNop())
	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := h.repos.PendingPayments.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusFailed, got.Status)
	require.NotNil(t, got.ErrorCode)
	assert.Equal(t, "expired", *got.ErrorCode)

	got, err = h.repos.PendingPayments.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusPending, got.Status)

	n, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}
