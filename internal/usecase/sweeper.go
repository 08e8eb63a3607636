package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/paycore/internal/config"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

const sweepBatchSize = 500

// PendingPaymentSweeper marks abandoned pending payments as failed. It is
// storage hygiene only; the reconciler already ignores expired rows.
type PendingPaymentSweeper struct {
	pending  repository.PendingPaymentRepository
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewPendingPaymentSweeper(pending repository.PendingPaymentRepository, cfg config.PaymentsConfig, logger *zap.Logger) *PendingPaymentSweeper {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PendingPaymentSweeper{
		pending:  pending,
		interval: interval,
		logger:   logger,
		now:      utcNow,
	}
}

func (s *PendingPaymentSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Pending payment sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce expires every stale pending payment and returns how many it touched.
func (s *PendingPaymentSweeper) SweepOnce(ctx context.Context) (int64, error) {
	var total int64
	for {
		n, err := s.pending.ExpireStale(ctx, s.now(), sweepBatchSize)
		if err != nil {
			return total, err
		}
		total += n
		if n < sweepBatchSize {
			break
		}
	}
	if total > 0 {
		s.logger.Info("Expired stale pending payments", zap.Int64("count", total))
	}
	return total, nil
}
