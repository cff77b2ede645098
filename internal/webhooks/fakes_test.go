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
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cardinalhq/publishrunner/pubdb"
)

// fakeStore keeps webhooks and delivery logs in memory.
type fakeStore struct {
	mu         sync.Mutex
	hooks      map[uuid.UUID]pubdb.Webhook
	deliveries []pubdb.WebhookDeliveryInsertParams
	insertErr  error
}

var _ Store = (*fakeStore)(nil)

func newFakeStore(hooks ...pubdb.Webhook) *fakeStore {
	s := &fakeStore{hooks: map[uuid.UUID]pubdb.Webhook{}}
	for _, h := range hooks {
		s.hooks[h.ID] = h
	}
	return s
}

func (s *fakeStore) WebhookDeliveryInsert(_ context.Context, arg pubdb.WebhookDeliveryInsertParams) (pubdb.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return pubdb.WebhookDelivery{}, s.insertErr
	}
	s.deliveries = append(s.deliveries, arg)
	return pubdb.WebhookDelivery{ID: uuid.New(), WebhookID: arg.WebhookID, EventType: arg.EventType}, nil
}

func (s *fakeStore) WebhookInsert(_ context.Context, arg pubdb.WebhookInsertParams) (pubdb.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	h := pubdb.Webhook{
		ID:             uuid.New(),
		OrganizationID: arg.OrganizationID,
		Url:            arg.Url,
		Secret:         arg.Secret,
		EventTypes:     arg.EventTypes,
		Status:         "active",
		Description:    arg.Description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.hooks[h.ID] = h
	return h, nil
}

func (s *fakeStore) lookup(orgID, id uuid.UUID) (pubdb.Webhook, bool) {
	h, ok := s.hooks[id]
	if !ok || h.OrganizationID != orgID || h.DeletedAt != nil {
		return pubdb.Webhook{}, false
	}
	return h, true
}

func (s *fakeStore) WebhookGet(_ context.Context, arg pubdb.WebhookGetParams) (pubdb.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.lookup(arg.OrganizationID, arg.ID)
	if !ok {
		return pubdb.Webhook{}, pgx.ErrNoRows
	}
	return h, nil
}

func (s *fakeStore) WebhookList(_ context.Context, orgID uuid.UUID) ([]pubdb.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []pubdb.Webhook
	for _, h := range s.hooks {
		if h.OrganizationID == orgID && h.DeletedAt == nil {
			out = append(out, h)
		}
	}
	slices.SortFunc(out, func(a, b pubdb.Webhook) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *fakeStore) WebhookListActiveForEvent(_ context.Context, arg pubdb.WebhookListActiveForEventParams) ([]pubdb.Webhook, error) {
	hooks, _ := s.WebhookList(context.Background(), arg.OrganizationID)
	var out []pubdb.Webhook
	for _, h := range hooks {
		if h.Status == "active" && slices.Contains(h.EventTypes, arg.EventType) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *fakeStore) WebhookUpdate(_ context.Context, arg pubdb.WebhookUpdateParams) (pubdb.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.lookup(arg.OrganizationID, arg.ID)
	if !ok {
		return pubdb.Webhook{}, pgx.ErrNoRows
	}
	if arg.Url != nil {
		h.Url = *arg.Url
	}
	if arg.EventTypes != nil {
		h.EventTypes = arg.EventTypes
	}
	if arg.Status != nil {
		h.Status = *arg.Status
	}
	if arg.Description != nil {
		h.Description = arg.Description
	}
	h.UpdatedAt = time.Now()
	s.hooks[h.ID] = h
	return h, nil
}

func (s *fakeStore) WebhookSoftDelete(_ context.Context, arg pubdb.WebhookSoftDeleteParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.lookup(arg.OrganizationID, arg.ID)
	if !ok {
		return 0, nil
	}
	now := time.Now()
	h.DeletedAt = &now
	h.Status = "disabled"
	s.hooks[h.ID] = h
	return 1, nil
}

func (s *fakeStore) WebhookUpdateSecret(_ context.Context, arg pubdb.WebhookUpdateSecretParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.lookup(arg.OrganizationID, arg.ID)
	if !ok {
		return 0, nil
	}
	h.Secret = arg.Secret
	s.hooks[h.ID] = h
	return 1, nil
}

func (s *fakeStore) WebhookDeliveryLogPage(_ context.Context, arg pubdb.WebhookDeliveryListParams) ([]pubdb.WebhookDelivery, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []pubdb.WebhookDelivery
	for i := len(s.deliveries) - 1; i >= 0; i-- {
		d := s.deliveries[i]
		if d.WebhookID == arg.WebhookID {
			all = append(all, pubdb.WebhookDelivery{WebhookID: d.WebhookID, EventType: d.EventType, Success: d.Success})
		}
	}
	total := int64(len(all))
	lo := min(int(arg.Offset), len(all))
	hi := min(lo+int(arg.Limit), len(all))
	return all[lo:hi], total, nil
}

func (s *fakeStore) logged() []pubdb.WebhookDeliveryInsertParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deliveries)
}
