// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package publishworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cardinalhq/publishrunner/internal/logctx"
	"github.com/cardinalhq/publishrunner/internal/publishqueue"
)

const (
	DefaultStuckAfter           = 15 * time.Minute
	DefaultDeliveryLogRetention = 30 * 24 * time.Hour
	DefaultSweepInterval        = time.Minute
)

type deliveryLogPruner interface {
	WebhookDeliveryDeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SweeperConfig struct {
	StuckAfter           time.Duration
	DeliveryLogRetention time.Duration
	Interval             time.Duration
}

// Sweeper returns stale claims to pending and prunes old delivery logs.
type Sweeper struct {
	queue  *publishqueue.Service
	pruner deliveryLogPruner
	cfg    SweeperConfig
	now    func() time.Time
}

func NewSweeper(queue *publishqueue.Service, pruner deliveryLogPruner, cfg SweeperConfig) *Sweeper {
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = DefaultStuckAfter
	}
	if cfg.DeliveryLogRetention <= 0 {
		cfg.DeliveryLogRetention = DefaultDeliveryLogRetention
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	return &Sweeper{queue: queue, pruner: pruner, cfg: cfg, now: time.Now}
}

// Reclaim returns items stuck in processing longer than StuckAfter to
// pending and reports how many there were.
func (s *Sweeper) Reclaim(ctx context.Context) (int, error) {
	rows, err := s.queue.ReclaimStale(ctx, s.cfg.StuckAfter)
	if err != nil {
		return 0, err
	}
	if len(rows) > 0 {
		reclaimedCounter.Add(ctx, int64(len(rows)))
		logctx.FromContext(ctx).Info("Reclaimed stale claims", slog.Int("count", len(rows)))
	}
	return len(rows), nil
}

// PruneDeliveryLogs deletes delivery log entries older than the retention.
func (s *Sweeper) PruneDeliveryLogs(ctx context.Context) (int64, error) {
	n, err := s.pruner.WebhookDeliveryDeleteBefore(ctx, s.now().Add(-s.cfg.DeliveryLogRetention))
	if err != nil {
		return 0, fmt.Errorf("pruning delivery logs: %w", err)
	}
	if n > 0 {
		prunedCounter.Add(ctx, n)
		logctx.FromContext(ctx).Info("Pruned webhook delivery logs", slog.Int64("count", n))
	}
	return n, nil
}

// Run runs both sweeps on their own loops until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logctx.FromContext(ctx).Info("Starting sweeper",
		slog.Duration("stuck_after", s.cfg.StuckAfter),
		slog.Duration("delivery_log_retention", s.cfg.DeliveryLogRetention),
		slog.Duration("interval", s.cfg.Interval))

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := periodicLoop(ctx, s.cfg.Interval, func(c context.Context) error {
			_, err := s.Reclaim(c)
			return err
		}); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	// Retention does not need minute granularity.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := periodicLoop(ctx, time.Hour, func(c context.Context) error {
			_, err := s.PruneDeliveryLogs(c)
			return err
		}); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancel()
		wg.Wait()
		return err
	}
	wg.Wait()
	return ctx.Err()
}
