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

package webhooks

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var webhookDeliveries metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/publishrunner/internal/webhooks")

	var err error
	webhookDeliveries, err = meter.Int64Counter(
		"publishrunner.webhook.deliveries",
		metric.WithDescription("Webhook delivery attempts"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		panic(err)
	}
}

func recordDelivery(ctx context.Context, eventType string, success bool) {
	webhookDeliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.Bool("success", success),
	))
}
