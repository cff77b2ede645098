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

package testhelpers

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cardinalhq/publishrunner/pubdb"
)

// MemStore is an in-memory pubdb.StoreFull for unit tests. Each method
// applies the same conditions as its SQL counterpart under one lock, so
// conditional updates stay atomic.
type MemStore struct {
	mu sync.Mutex

	// Now is the clock used for due checks and timestamps.
	Now func() time.Time

	Articles     map[uuid.UUID]pubdb.Article
	Integrations map[uuid.UUID]pubdb.Integration
	Members      map[uuid.UUID]map[string]string
	APIKeys      map[string]pubdb.ApiKey
	Items        map[uuid.UUID]pubdb.PublishQueue
	Webhooks     map[uuid.UUID]pubdb.Webhook
	Deliveries   []pubdb.WebhookDelivery

	seq int64
}

var _ pubdb.StoreFull = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		Now:          time.Now,
		Articles:     map[uuid.UUID]pubdb.Article{},
		Integrations: map[uuid.UUID]pubdb.Integration{},
		Members:      map[uuid.UUID]map[string]string{},
		APIKeys:      map[string]pubdb.ApiKey{},
		Items:        map[uuid.UUID]pubdb.PublishQueue{},
		Webhooks:     map[uuid.UUID]pubdb.Webhook{},
	}
}

// tick returns a strictly increasing timestamp so created_at orders inserts.
func (m *MemStore) tick() time.Time {
	m.seq++
	return m.Now().Add(time.Duration(m.seq) * time.Microsecond)
}

func (m *MemStore) AddArticle(orgID uuid.UUID, title, slug string) pubdb.Article {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	a := pubdb.Article{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Title:          title,
		Slug:           slug,
		Content:        "<p>" + title + "</p>",
		Status:         "ready",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.Articles[a.ID] = a
	return a
}

func (m *MemStore) AddIntegration(orgID uuid.UUID, platform string, config []byte) pubdb.Integration {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	in := pubdb.Integration{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Platform:       platform,
		Name:           platform,
		Config:         config,
		Status:         "active",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.Integrations[in.ID] = in
	return in
}

func (m *MemStore) AddMember(orgID uuid.UUID, userID, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Members[orgID] == nil {
		m.Members[orgID] = map[string]string{}
	}
	m.Members[orgID][userID] = role
}

func (m *MemStore) AddAPIKey(userID, keyHash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.APIKeys[keyHash] = pubdb.ApiKey{ID: uuid.New(), UserID: userID, Name: "test", KeyHash: keyHash, CreatedAt: m.tick()}
}

func (m *MemStore) AddWebhook(orgID uuid.UUID, url, secret string, events ...string) pubdb.Webhook {
	h, _ := m.WebhookInsert(context.Background(), pubdb.WebhookInsertParams{
		OrganizationID: orgID,
		Url:            url,
		Secret:         secret,
		EventTypes:     events,
	})
	return h
}

// Item returns the current state of a queue item.
func (m *MemStore) Item(id uuid.UUID) pubdb.PublishQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Items[id]
}

// SetItem overwrites a queue item, for arranging odd states in tests.
func (m *MemStore) SetItem(item pubdb.PublishQueue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Items[item.ID] = item
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func active(s pubdb.PublishStatus) bool {
	return s == pubdb.PublishStatusPending || s == pubdb.PublishStatusProcessing
}

func (m *MemStore) ApiKeyGetByHash(_ context.Context, keyHash string) (pubdb.ApiKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.APIKeys[keyHash]
	if !ok {
		return pubdb.ApiKey{}, pgx.ErrNoRows
	}
	return k, nil
}

func (m *MemStore) ArticleGet(_ context.Context, arg pubdb.ArticleGetParams) (pubdb.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Articles[arg.ID]
	if !ok || a.OrganizationID != arg.OrganizationID || a.DeletedAt != nil {
		return pubdb.Article{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *MemStore) IntegrationGet(_ context.Context, arg pubdb.IntegrationGetParams) (pubdb.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.Integrations[arg.ID]
	if !ok || in.OrganizationID != arg.OrganizationID || in.DeletedAt != nil {
		return pubdb.Integration{}, pgx.ErrNoRows
	}
	return in, nil
}

func (m *MemStore) IntegrationGetActiveForPlatform(_ context.Context, arg pubdb.IntegrationGetActiveForPlatformParams) (pubdb.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		found pubdb.Integration
		ok    bool
	)
	for _, in := range m.Integrations {
		if in.OrganizationID != arg.OrganizationID || in.Platform != arg.Platform ||
			in.Status != "active" || in.DeletedAt != nil {
			continue
		}
		if !ok || cmp.Or(in.CreatedAt.Compare(found.CreatedAt), cmp.Compare(in.ID.String(), found.ID.String())) < 0 {
			found, ok = in, true
		}
	}
	if !ok {
		return pubdb.Integration{}, pgx.ErrNoRows
	}
	return found, nil
}

func (m *MemStore) OrganizationMemberRole(_ context.Context, arg pubdb.OrganizationMemberRoleParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.Members[arg.OrganizationID][arg.UserID]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return role, nil
}

func (m *MemStore) EnqueueArticle(ctx context.Context, p pubdb.PublishQueueInsertParams) (pubdb.PublishQueue, error) {
	if _, err := m.ArticleGet(ctx, pubdb.ArticleGetParams{OrganizationID: p.OrganizationID, ID: p.ArticleID}); err != nil {
		return pubdb.PublishQueue{}, pubdb.ErrArticleMissing
	}
	if p.IntegrationID != nil {
		in, err := m.IntegrationGet(ctx, pubdb.IntegrationGetParams{OrganizationID: p.OrganizationID, ID: *p.IntegrationID})
		if err != nil {
			return pubdb.PublishQueue{}, pubdb.ErrIntegrationMissing
		}
		if in.Platform != p.Platform {
			return pubdb.PublishQueue{}, pubdb.ErrIntegrationPlatform
		}
	}
	return m.PublishQueueInsert(ctx, p)
}

func (m *MemStore) PublishQueueInsert(_ context.Context, p pubdb.PublishQueueInsertParams) (pubdb.PublishQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.Items {
		if it.ArticleID == p.ArticleID && it.Platform == p.Platform && active(it.Status) {
			return pubdb.PublishQueue{}, uniqueViolation()
		}
	}
	now := m.tick()
	item := pubdb.PublishQueue{
		ID:             uuid.New(),
		OrganizationID: p.OrganizationID,
		ArticleID:      p.ArticleID,
		Platform:       p.Platform,
		IntegrationID:  p.IntegrationID,
		ProductID:      p.ProductID,
		Status:         pubdb.PublishStatusPending,
		Priority:       p.Priority,
		ScheduledFor:   p.ScheduledFor,
		MaxAttempts:    p.MaxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.Items[item.ID] = item
	return item, nil
}

func (m *MemStore) PublishQueueGet(_ context.Context, arg pubdb.PublishQueueGetParams) (pubdb.PublishQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.Items[arg.ID]
	if !ok || it.OrganizationID != arg.OrganizationID {
		return pubdb.PublishQueue{}, pgx.ErrNoRows
	}
	return it, nil
}

func (m *MemStore) PublishQueueGetByID(_ context.Context, id uuid.UUID) (pubdb.PublishQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.Items[id]
	if !ok {
		return pubdb.PublishQueue{}, pgx.ErrNoRows
	}
	return it, nil
}

func (m *MemStore) PublishQueueList(_ context.Context, arg pubdb.PublishQueueListParams) ([]pubdb.PublishQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pubdb.PublishQueue
	for _, it := range m.Items {
		if it.OrganizationID != arg.OrganizationID {
			continue
		}
		if arg.Status != nil && it.Status != *arg.Status {
			continue
		}
		if arg.ProductID != nil && (it.ProductID == nil || *it.ProductID != *arg.ProductID) {
			continue
		}
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b pubdb.PublishQueue) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID.String(), a.ID.String()))
	})
	lo := min(int(arg.Offset), len(out))
	hi := min(lo+int(arg.Limit), len(out))
	return out[lo:hi], nil
}

func (m *MemStore) PublishQueuePickDue(_ context.Context, limit int32) ([]pubdb.PublishQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	var due []pubdb.PublishQueue
	for _, it := range m.Items {
		if it.Status != pubdb.PublishStatusPending {
			continue
		}
		if it.ScheduledFor != nil && it.ScheduledFor.After(now) {
			continue
		}
		due = append(due, it)
	}
	slices.SortFunc(due, func(a, b pubdb.PublishQueue) int {
		return cmp.Or(
			cmp.Compare(b.Priority, a.Priority),
			compareScheduled(a.ScheduledFor, b.ScheduledFor),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID.String(), b.ID.String()),
		)
	})
	if len(due) > int(limit) {
		due = due[:limit]
	}
	return due, nil
}

// compareScheduled sorts NULL first, then ascending.
func compareScheduled(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

// PublishQueueMarkProcessing stamps claims with tick so two claims of one
// item never share a start time, even under a frozen clock.
func (m *MemStore) PublishQueueMarkProcessing(_ context.Context, arg pubdb.PublishQueueMarkProcessingParams) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.Items[arg.ID]
	if !ok || it.Status != pubdb.PublishStatusPending {
		return time.Time{}, pgx.ErrNoRows
	}
	now := m.tick()
	claimedBy := arg.ClaimedBy
	it.Status = pubdb.PublishStatusProcessing
	it.ClaimedBy = &claimedBy
	it.ProcessingStartedAt = &now
	it.UpdatedAt = now
	m.Items[it.ID] = it
	return now, nil
}

// holdsClaim mirrors the optional claim fence on the completion and
// failure updates.
func holdsClaim(it pubdb.PublishQueue, claimedBy *int64, startedAt *time.Time) bool {
	if claimedBy == nil {
		return true
	}
	if it.ClaimedBy == nil || *it.ClaimedBy != *claimedBy {
		return false
	}
	return it.ProcessingStartedAt != nil && startedAt != nil && it.ProcessingStartedAt.Equal(*startedAt)
}

func (m *MemStore) PublishQueueMarkCompleted(_ context.Context, arg pubdb.PublishQueueMarkCompletedParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.Items[arg.ID]
	if !ok || it.Status != pubdb.PublishStatusProcessing || !holdsClaim(it, arg.ClaimedBy, arg.ClaimStartedAt) {
		return 0, nil
	}
	it.Status = pubdb.PublishStatusPublished
	it.PublishedUrl = arg.PublishedUrl
	it.PublishedPostID = arg.PublishedPostID
	it.PublishedData = arg.PublishedData
	it.LastError, it.LastErrorType = nil, nil
	it.ClaimedBy, it.ProcessingStartedAt = nil, nil
	it.UpdatedAt = m.Now()
	m.Items[it.ID] = it
	return 1, nil
}

func (m *MemStore) PublishQueueMarkFailed(_ context.Context, arg pubdb.PublishQueueMarkFailedParams) (pubdb.PublishQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.Items[arg.ID]
	if !ok || it.Status != pubdb.PublishStatusProcessing || !holdsClaim(it, arg.ClaimedBy, arg.ClaimStartedAt) {
		return pubdb.PublishQueue{}, pgx.ErrNoRows
	}
	now := m.Now()
	attempts := it.AttemptCount + 1
	if attempts >= it.MaxAttempts {
		it.Status = pubdb.PublishStatusFailed
	} else {
		secs := math.Min(arg.BackoffBaseSeconds*math.Pow(2, float64(attempts)), arg.BackoffMaxSeconds)
		next := now.Add(time.Duration(secs * float64(time.Second)))
		it.Status = pubdb.PublishStatusPending
		it.ScheduledFor = &next
	}
	it.AttemptCount = min(attempts, it.MaxAttempts)
	lastError, lastErrorType := arg.LastError, arg.LastErrorType
	it.LastError, it.LastErrorType = &lastError, &lastErrorType
	it.ClaimedBy, it.ProcessingStartedAt = nil, nil
	it.UpdatedAt = now
	m.Items[it.ID] = it
	return it, nil
}

func (m *MemStore) PublishQueueRelease(_ context.Context, arg pubdb.PublishQueueReleaseParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.Items[arg.ID]
	if !ok || it.Status != pubdb.PublishStatusProcessing ||
		!holdsClaim(it, &arg.ClaimedBy, &arg.ClaimStartedAt) {
		return 0, nil
	}
	it.Status = pubdb.PublishStatusPending
	it.ClaimedBy, it.ProcessingStartedAt = nil, nil
	it.UpdatedAt = m.Now()
	m.Items[it.ID] = it
	return 1, nil
}

func (m *MemStore) PublishQueueCancel(_ context.Context, arg pubdb.PublishQueueCancelParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.Items[arg.ID]
	if !ok || it.OrganizationID != arg.OrganizationID || it.Status != pubdb.PublishStatusPending {
		return 0, nil
	}
	it.Status = pubdb.PublishStatusCancelled
	it.UpdatedAt = m.Now()
	m.Items[it.ID] = it
	return 1, nil
}

func (m *MemStore) PublishQueueRetry(_ context.Context, arg pubdb.PublishQueueRetryParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.Items[arg.ID]
	if !ok || it.OrganizationID != arg.OrganizationID || it.Status != pubdb.PublishStatusFailed {
		return 0, nil
	}
	for _, other := range m.Items {
		if other.ID != it.ID && other.ArticleID == it.ArticleID && other.Platform == it.Platform && active(other.Status) {
			return 0, uniqueViolation()
		}
	}
	it.Status = pubdb.PublishStatusPending
	it.ScheduledFor = nil
	it.ClaimedBy, it.ProcessingStartedAt = nil, nil
	it.UpdatedAt = m.Now()
	m.Items[it.ID] = it
	return 1, nil
}

func (m *MemStore) PublishQueueStats(_ context.Context, arg pubdb.PublishQueueStatsParams) ([]pubdb.PublishQueueStatsRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[pubdb.PublishStatus]int64{}
	for _, it := range m.Items {
		if it.OrganizationID != arg.OrganizationID {
			continue
		}
		if arg.ProductID != nil && (it.ProductID == nil || *it.ProductID != *arg.ProductID) {
			continue
		}
		counts[it.Status]++
	}
	var rows []pubdb.PublishQueueStatsRow
	for status, n := range counts {
		rows = append(rows, pubdb.PublishQueueStatsRow{Status: status, Count: n})
	}
	return rows, nil
}

func (m *MemStore) PublishQueueReclaimStale(_ context.Context, arg pubdb.PublishQueueReclaimStaleParams) ([]pubdb.PublishQueueReclaimStaleRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []pubdb.PublishQueueReclaimStaleRow
	for id, it := range m.Items {
		if it.Status != pubdb.PublishStatusProcessing || it.ProcessingStartedAt == nil ||
			!it.ProcessingStartedAt.Before(arg.StartedBefore) {
			continue
		}
		lastError, lastErrorType := arg.LastError, "stale_claim"
		it.Status = pubdb.PublishStatusPending
		it.ClaimedBy, it.ProcessingStartedAt = nil, nil
		it.LastError, it.LastErrorType = &lastError, &lastErrorType
		it.UpdatedAt = m.Now()
		m.Items[id] = it
		rows = append(rows, pubdb.PublishQueueReclaimStaleRow{
			ID:             it.ID,
			OrganizationID: it.OrganizationID,
			ArticleID:      it.ArticleID,
			Platform:       it.Platform,
		})
	}
	return rows, nil
}

func (m *MemStore) WebhookInsert(_ context.Context, arg pubdb.WebhookInsertParams) (pubdb.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
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
	m.Webhooks[h.ID] = h
	return h, nil
}

func (m *MemStore) webhook(orgID, id uuid.UUID) (pubdb.Webhook, bool) {
	h, ok := m.Webhooks[id]
	if !ok || h.OrganizationID != orgID || h.DeletedAt != nil {
		return pubdb.Webhook{}, false
	}
	return h, true
}

func (m *MemStore) WebhookGet(_ context.Context, arg pubdb.WebhookGetParams) (pubdb.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.webhook(arg.OrganizationID, arg.ID)
	if !ok {
		return pubdb.Webhook{}, pgx.ErrNoRows
	}
	return h, nil
}

func (m *MemStore) WebhookList(_ context.Context, orgID uuid.UUID) ([]pubdb.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pubdb.Webhook
	for _, h := range m.Webhooks {
		if h.OrganizationID == orgID && h.DeletedAt == nil {
			out = append(out, h)
		}
	}
	slices.SortFunc(out, func(a, b pubdb.Webhook) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *MemStore) WebhookListActiveForEvent(ctx context.Context, arg pubdb.WebhookListActiveForEventParams) ([]pubdb.Webhook, error) {
	hooks, err := m.WebhookList(ctx, arg.OrganizationID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(hooks, func(h pubdb.Webhook) bool {
		return h.Status != "active" || !slices.Contains(h.EventTypes, arg.EventType)
	}), nil
}

func (m *MemStore) WebhookUpdate(_ context.Context, arg pubdb.WebhookUpdateParams) (pubdb.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.webhook(arg.OrganizationID, arg.ID)
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
	h.UpdatedAt = m.Now()
	m.Webhooks[h.ID] = h
	return h, nil
}

func (m *MemStore) WebhookSoftDelete(_ context.Context, arg pubdb.WebhookSoftDeleteParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.webhook(arg.OrganizationID, arg.ID)
	if !ok {
		return 0, nil
	}
	now := m.Now()
	h.DeletedAt = &now
	h.Status = "disabled"
	m.Webhooks[h.ID] = h
	return 1, nil
}

func (m *MemStore) WebhookUpdateSecret(_ context.Context, arg pubdb.WebhookUpdateSecretParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.webhook(arg.OrganizationID, arg.ID)
	if !ok {
		return 0, nil
	}
	h.Secret = arg.Secret
	m.Webhooks[h.ID] = h
	return 1, nil
}

func (m *MemStore) WebhookDeliveryInsert(_ context.Context, arg pubdb.WebhookDeliveryInsertParams) (pubdb.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := pubdb.WebhookDelivery{
		ID:           uuid.New(),
		WebhookID:    arg.WebhookID,
		EventType:    arg.EventType,
		Payload:      arg.Payload,
		StatusCode:   arg.StatusCode,
		Success:      arg.Success,
		DurationMs:   arg.DurationMs,
		AttemptedAt:  m.tick(),
		ErrorMessage: arg.ErrorMessage,
	}
	m.Deliveries = append(m.Deliveries, d)
	return d, nil
}

func (m *MemStore) WebhookDeliveryList(_ context.Context, arg pubdb.WebhookDeliveryListParams) ([]pubdb.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pubdb.WebhookDelivery
	for i := len(m.Deliveries) - 1; i >= 0; i-- {
		if m.Deliveries[i].WebhookID == arg.WebhookID {
			out = append(out, m.Deliveries[i])
		}
	}
	lo := min(int(arg.Offset), len(out))
	hi := min(lo+int(arg.Limit), len(out))
	return out[lo:hi], nil
}

func (m *MemStore) WebhookDeliveryCount(_ context.Context, webhookID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.Deliveries {
		if d.WebhookID == webhookID {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) WebhookDeliveryDeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.Deliveries)
	m.Deliveries = slices.DeleteFunc(m.Deliveries, func(d pubdb.WebhookDelivery) bool {
		return d.AttemptedAt.Before(cutoff)
	})
	return int64(before - len(m.Deliveries)), nil
}

func (m *MemStore) WebhookDeliveryLogPage(ctx context.Context, arg pubdb.WebhookDeliveryListParams) ([]pubdb.WebhookDelivery, int64, error) {
	entries, err := m.WebhookDeliveryList(ctx, arg)
	if err != nil {
		return nil, 0, err
	}
	total, err := m.WebhookDeliveryCount(ctx, arg.WebhookID)
	return entries, total, err
}

// DeliveriesFor returns the delivery log of one webhook, oldest first.
func (m *MemStore) DeliveriesFor(webhookID uuid.UUID) []pubdb.WebhookDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pubdb.WebhookDelivery
	for _, d := range m.Deliveries {
		if d.WebhookID == webhookID {
			out = append(out, d)
		}
	}
	return out
}
