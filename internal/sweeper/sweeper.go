// Package sweeper periodically expires transactions that waited too long for
// a decision, returning their tickets to inventory.
package sweeper

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/metrics"
)

// Expirer expires up to limit transactions older than olderThan and reports
// how many it moved.
type Expirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// Sweeper runs Expirer on a fixed interval.
type Sweeper struct {
	expirer   Expirer
	olderThan time.Duration
	interval  time.Duration
	batch     int
}

// New constructs a Sweeper.
func New(expirer Expirer, olderThan, interval time.Duration, batch int) *Sweeper {
	return &Sweeper{expirer: expirer, olderThan: olderThan, interval: interval, batch: batch}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log.WithFields(log.Fields{
		"expire_after": s.olderThan.String(),
		"interval":     s.interval.String(),
	}).Info("Transaction sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Transaction sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep drains stale transactions in batches until a batch comes back short.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if s.batch <= 0 {
		return 0
	}
	total := 0
	for {
		n, err := s.expirer.ExpireStale(ctx, s.olderThan, s.batch)
		total += n
		metrics.ExpiredTransactions.Add(float64(n))
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Error("Transaction sweep failed")
			}
			break
		}
		if n == 0 || n < s.batch {
			break
		}
	}
	if total > 0 {
		log.WithField("expired", total).Info("Expired stale transactions")
	}
	return total
}
