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

package publishqueue

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	enqueuedCounter  metric.Int64Counter
	claimedCounter   metric.Int64Counter
	publishedCounter metric.Int64Counter
	failedCounter    metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/publishrunner/internal/publishqueue")

	var err error
	enqueuedCounter, err = meter.Int64Counter(
		"publishrunner.queue.enqueued",
		metric.WithDescription("Queue items created"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		panic(err)
	}

	claimedCounter, err = meter.Int64Counter(
		"publishrunner.queue.claimed",
		metric.WithDescription("Queue items claimed by a worker"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		panic(err)
	}

	publishedCounter, err = meter.Int64Counter(
		"publishrunner.queue.published",
		metric.WithDescription("Queue items published"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		panic(err)
	}

	failedCounter, err = meter.Int64Counter(
		"publishrunner.queue.failed",
		metric.WithDescription("Failed publish attempts, terminal or retried"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		panic(err)
	}
}

func platformAttr(platform string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("platform", platform))
}

func failedAttrs(platform, errorType string, terminal bool) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("error_type", errorType),
		attribute.Bool("terminal", terminal),
	)
}

func recordClaimed(ctx context.Context, platform string) {
	claimedCounter.Add(ctx, 1, platformAttr(platform))
}
