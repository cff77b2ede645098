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
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tickDuration     metric.Float64Histogram
	reclaimedCounter metric.Int64Counter
	prunedCounter    metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/publishrunner/internal/publishworker")

	var err error
	tickDuration, err = meter.Float64Histogram(
		"publishrunner.worker.tick.duration",
		metric.WithDescription("Duration of worker ticks that processed at least one item"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create worker.tick.duration histogram: %w", err))
	}

	reclaimedCounter, err = meter.Int64Counter(
		"publishrunner.sweeper.reclaimed",
		metric.WithDescription("Queue items returned to pending after their claim went stale"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create sweeper.reclaimed counter: %w", err))
	}

	prunedCounter, err = meter.Int64Counter(
		"publishrunner.sweeper.delivery_logs_pruned",
		metric.WithDescription("Webhook delivery log entries deleted by retention"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create sweeper.delivery_logs_pruned counter: %w", err))
	}
}

func recordTick(ctx context.Context, res TickResult, elapsed time.Duration) {
	if res.Processed == 0 {
		return
	}
	tickDuration.Record(ctx, elapsed.Seconds())
}
