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
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cardinalhq/publishrunner/internal/logctx"
	"github.com/cardinalhq/publishrunner/pubdb"
)

type subscriberLister interface {
	WebhookListActiveForEvent(ctx context.Context, arg pubdb.WebhookListActiveForEventParams) ([]pubdb.Webhook, error)
}

// DispatchResult is the outcome for one subscribed webhook.
type DispatchResult struct {
	WebhookID uuid.UUID `json:"webhook_id"`
	DeliveryResult
}

// Dispatcher fans an event out to an organization's subscribed webhooks.
type Dispatcher struct {
	store     subscriberLister
	deliverer *Deliverer
}

func NewDispatcher(store subscriberLister, deliverer *Deliverer) *Dispatcher {
	return &Dispatcher{store: store, deliverer: deliverer}
}

// Dispatch delivers the event to every active webhook of orgID subscribed
// to eventType, one at a time. Delivery failures are in the results; the
// error is only for failing to list subscribers.
func (d *Dispatcher) Dispatch(ctx context.Context, orgID uuid.UUID, eventType string, payload any) ([]DispatchResult, error) {
	hooks, err := d.store.WebhookListActiveForEvent(ctx, pubdb.WebhookListActiveForEventParams{
		OrganizationID: orgID,
		EventType:      eventType,
	})
	if err != nil {
		return nil, fmt.Errorf("listing webhooks for %s: %w", eventType, err)
	}

	results := make([]DispatchResult, 0, len(hooks))
	failed := 0
	for _, hook := range hooks {
		if ctx.Err() != nil {
			break
		}
		res := d.deliverer.Deliver(ctx, hook, eventType, payload)
		if !res.Success {
			failed++
		}
		results = append(results, DispatchResult{WebhookID: hook.ID, DeliveryResult: res})
	}

	if len(hooks) > 0 {
		logctx.FromContext(ctx).Info("Dispatched webhook event",
			slog.String("organization_id", orgID.String()),
			slog.String("event_type", eventType),
			slog.Int("webhooks", len(hooks)),
			slog.Int("failed", failed))
	}
	return results, ctx.Err()
}
