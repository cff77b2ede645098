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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cardinalhq/publishrunner/internal/apperr"
	"github.com/cardinalhq/publishrunner/internal/idgen"
	"github.com/cardinalhq/publishrunner/internal/logctx"
	"github.com/cardinalhq/publishrunner/pubdb"
)

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 100
)

func init() {
	apperr.RegisterValidation("webhook_event", func(fl validator.FieldLevel) bool {
		return IsKnownEvent(fl.Field().String())
	})
}

// Store is the persistence the management service needs.
type Store interface {
	DeliveryLogger
	WebhookInsert(ctx context.Context, arg pubdb.WebhookInsertParams) (pubdb.Webhook, error)
	WebhookGet(ctx context.Context, arg pubdb.WebhookGetParams) (pubdb.Webhook, error)
	WebhookList(ctx context.Context, organizationID uuid.UUID) ([]pubdb.Webhook, error)
	WebhookUpdate(ctx context.Context, arg pubdb.WebhookUpdateParams) (pubdb.Webhook, error)
	WebhookSoftDelete(ctx context.Context, arg pubdb.WebhookSoftDeleteParams) (int64, error)
	WebhookUpdateSecret(ctx context.Context, arg pubdb.WebhookUpdateSecretParams) (int64, error)
	WebhookDeliveryLogPage(ctx context.Context, arg pubdb.WebhookDeliveryListParams) ([]pubdb.WebhookDelivery, int64, error)
}

// View is a webhook as callers see it. It never carries the secret.
type View struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	URL            string    `json:"url"`
	EventTypes     []string  `json:"event_types"`
	Status         string    `json:"status"`
	Description    *string   `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func viewOf(h pubdb.Webhook) View {
	events := h.EventTypes
	if events == nil {
		events = []string{}
	}
	return View{
		ID:             h.ID,
		OrganizationID: h.OrganizationID,
		URL:            h.Url,
		EventTypes:     events,
		Status:         h.Status,
		Description:    h.Description,
		CreatedAt:      h.CreatedAt,
		UpdatedAt:      h.UpdatedAt,
	}
}

// Created is returned once, at creation, with the signing secret.
type Created struct {
	View
	Secret string `json:"secret"`
}

type CreateParams struct {
	URL         string   `json:"url" validate:"required,http_url"`
	EventTypes  []string `json:"event_types" validate:"required,min=1,dive,webhook_event"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
}

// UpdateParams changes only the fields that are set.
type UpdateParams struct {
	URL         *string  `json:"url" validate:"omitempty,http_url"`
	EventTypes  []string `json:"event_types" validate:"omitempty,dive,webhook_event"`
	Status      *string  `json:"status" validate:"omitempty,oneof=active disabled"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
}

type LogPage struct {
	Entries []pubdb.WebhookDelivery `json:"entries"`
	Total   int64                   `json:"total"`
	Limit   int32                   `json:"limit"`
	Offset  int32                   `json:"offset"`
}

// Service manages an organization's webhooks.
type Service struct {
	store     Store
	deliverer *Deliverer
	newSecret func() (string, error)
}

func NewService(store Store, deliverer *Deliverer) *Service {
	return &Service{store: store, deliverer: deliverer, newSecret: idgen.NewWebhookSecret}
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]View, error) {
	hooks, err := s.store.WebhookList(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	out := make([]View, 0, len(hooks))
	for _, h := range hooks {
		out = append(out, viewOf(h))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (View, error) {
	h, err := s.get(ctx, orgID, id)
	if err != nil {
		return View{}, err
	}
	return viewOf(h), nil
}

func (s *Service) get(ctx context.Context, orgID, id uuid.UUID) (pubdb.Webhook, error) {
	h, err := s.store.WebhookGet(ctx, pubdb.WebhookGetParams{OrganizationID: orgID, ID: id})
	if err != nil {
		return pubdb.Webhook{}, apperr.FromDB(err, "webhook")
	}
	return h, nil
}

func (s *Service) Create(ctx context.Context, orgID uuid.UUID, p CreateParams) (Created, error) {
	if err := apperr.Validate(p); err != nil {
		return Created{}, err
	}
	secret, err := s.newSecret()
	if err != nil {
		return Created{}, fmt.Errorf("generating webhook secret: %w", err)
	}
	h, err := s.store.WebhookInsert(ctx, pubdb.WebhookInsertParams{
		OrganizationID: orgID,
		Url:            p.URL,
		Secret:         secret,
		EventTypes:     dedupe(p.EventTypes),
		Description:    p.Description,
	})
	if err != nil {
		return Created{}, apperr.FromDB(err, "webhook")
	}

	logctx.FromContext(ctx).Info("Created webhook",
		slog.String("organization_id", orgID.String()),
		slog.String("webhook_id", h.ID.String()))
	return Created{View: viewOf(h), Secret: secret}, nil
}

func (s *Service) Update(ctx context.Context, orgID, id uuid.UUID, p UpdateParams) (View, error) {
	if p.EventTypes != nil && len(p.EventTypes) == 0 {
		return View{}, apperr.Validationf("event_types must not be empty")
	}
	if err := apperr.Validate(p); err != nil {
		return View{}, err
	}
	h, err := s.store.WebhookUpdate(ctx, pubdb.WebhookUpdateParams{
		OrganizationID: orgID,
		ID:             id,
		Url:            p.URL,
		EventTypes:     dedupe(p.EventTypes),
		Status:         p.Status,
		Description:    p.Description,
	})
	if err != nil {
		return View{}, apperr.FromDB(err, "webhook")
	}
	return viewOf(h), nil
}

// Delete soft-deletes the webhook. Later reads return ErrNotFound.
func (s *Service) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	n, err := s.store.WebhookSoftDelete(ctx, pubdb.WebhookSoftDeleteParams{OrganizationID: orgID, ID: id})
	if err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}
	if n == 0 {
		return apperr.NotFoundf("webhook")
	}
	return nil
}

// RegenerateSecret replaces the signing secret and returns the new one.
func (s *Service) RegenerateSecret(ctx context.Context, orgID, id uuid.UUID) (string, error) {
	secret, err := s.newSecret()
	if err != nil {
		return "", fmt.Errorf("generating webhook secret: %w", err)
	}
	n, err := s.store.WebhookUpdateSecret(ctx, pubdb.WebhookUpdateSecretParams{
		OrganizationID: orgID,
		ID:             id,
		Secret:         secret,
	})
	if err != nil {
		return "", fmt.Errorf("updating webhook secret: %w", err)
	}
	if n == 0 {
		return "", apperr.NotFoundf("webhook")
	}
	return secret, nil
}

// Test sends one delivery to the webhook. eventType defaults to "test" and
// payload to a fixed sample.
func (s *Service) Test(ctx context.Context, orgID, id uuid.UUID, eventType string, payload json.RawMessage) (DeliveryResult, error) {
	if eventType == "" {
		eventType = EventTest
	}
	if !IsKnownEvent(eventType) {
		return DeliveryResult{}, apperr.Validationf("unknown event type %q", eventType)
	}
	var data any = payload
	if len(payload) == 0 {
		data = map[string]any{
			"message":    "This is a test webhook delivery",
			"webhook_id": id.String(),
		}
	} else if !json.Valid(payload) {
		return DeliveryResult{}, apperr.Validationf("test payload must be valid JSON")
	}

	h, err := s.get(ctx, orgID, id)
	if err != nil {
		return DeliveryResult{}, err
	}
	return s.deliverer.Deliver(ctx, h, eventType, data), nil
}

// Logs returns a page of delivery log entries, newest first.
func (s *Service) Logs(ctx context.Context, orgID, id uuid.UUID, limit, offset int32) (LogPage, error) {
	if _, err := s.get(ctx, orgID, id); err != nil {
		return LogPage{}, err
	}
	limit, offset = normalizePage(limit, offset)
	entries, total, err := s.store.WebhookDeliveryLogPage(ctx, pubdb.WebhookDeliveryListParams{
		WebhookID: id,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return LogPage{}, fmt.Errorf("reading delivery logs: %w", err)
	}
	if entries == nil {
		entries = []pubdb.WebhookDelivery{}
	}
	return LogPage{Entries: entries, Total: total, Limit: limit, Offset: offset}, nil
}

func normalizePage(limit, offset int32) (int32, int32) {
	switch {
	case limit <= 0:
		limit = DefaultLogLimit
	case limit > MaxLogLimit:
		limit = MaxLogLimit
	}
	return limit, max(offset, 0)
}

func dedupe(events []string) []string {
	if events == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
