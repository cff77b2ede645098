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

package delivery

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var deliveryDuration metric.Float64Histogram

func init() {
	meter := otel.Meter("github.com/cardinalhq/publishrunner/internal/delivery")

	var err error
	deliveryDuration, err = meter.Float64Histogram(
		"publishrunner.delivery.duration",
		metric.WithDescription("Duration of CMS publish attempts"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(err)
	}
}

func recordDelivery(ctx context.Context, platform string, out Outcome) {
	attrs := []attribute.KeyValue{
		attribute.String("platform", platform),
		attribute.Bool("success", out.Success),
	}
	if !out.Success {
		attrs = append(attrs, attribute.String("error_type", string(out.ErrorType)))
	}
	deliveryDuration.Record(ctx, out.Duration.Seconds(), metric.WithAttributes(attrs...))
}
