package worker

import (
	"context"
	"time"

	"jam3a/internal/metrics"

	"go.uber.org/zap"
)

// Expirer transitions overdue active deals and reports how many changed
type Expirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically expires active deals past their expiry date so they
// do not stay active until somebody happens to read them
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewSweeper creates a sweeper running every interval
func NewSweeper(expirer Expirer, interval time.Duration, logger *zap.Logger, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		expirer:  expirer,
		interval: interval,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// A non-positive interval disables the sweeper.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Expiry sweeper disabled")
		return
	}

	s.logger.Info("Expiry sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single expiry pass
func (s *Sweeper) Sweep(ctx context.Context) {
	expired, err := s.expirer.ExpireOverdue(ctx, s.now())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Expiry sweep failed", zap.Error(err))
		}
		return
	}

	if expired > 0 {
		s.metrics.DealsExpired.WithLabelValues("sweep").Add(float64(expired))
		s.logger.Info("Expired overdue deals", zap.Int64("count", expired))
	}
}
