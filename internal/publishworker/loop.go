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
	"log/slog"
	"time"

	"github.com/cardinalhq/publishrunner/internal/logctx"
)

const DefaultInterval = 30 * time.Second

// Run ticks every interval until ctx is done. When reclaimer is set, stale
// claims are returned to pending before each tick.
func (w *Worker) Run(ctx context.Context, interval time.Duration, reclaimer *Sweeper) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := logctx.FromContext(ctx)
	logger.Info("Starting publish worker",
		slog.Int64("worker_id", w.workerID),
		slog.Int("batch_size", int(w.batchSize)),
		slog.Duration("interval", interval))

	return periodicLoop(ctx, interval, func(ctx context.Context) error {
		if reclaimer != nil {
			if _, err := reclaimer.Reclaim(ctx); err != nil {
				logger.Error("Stale claim reclaim failed", slog.Any("error", err))
			}
		}
		_, err := w.Tick(ctx)
		return err
	})
}

// periodicLoop runs f now and then every period. Errors are logged and the
// loop keeps going.
func periodicLoop(ctx context.Context, period time.Duration, f func(context.Context) error) error {
	if err := f(ctx); err != nil {
		logctx.FromContext(ctx).Error("Periodic task error", slog.Any("error", err))
	}

	t := time.NewTicker(period)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := f(ctx); err != nil {
				logctx.FromContext(ctx).Error("Periodic task error", slog.Any("error", err))
			}
		}
	}
}
