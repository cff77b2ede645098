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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/publishrunner/internal/delivery"
	"github.com/cardinalhq/publishrunner/internal/publishqueue"
	"github.com/cardinalhq/publishrunner/internal/webhooks"
	"github.com/cardinalhq/publishrunner/pubdb"
	"github.com/cardinalhq/publishrunner/testhelpers"
)

type publishFunc func(ctx context.Context, req delivery.Request) delivery.Outcome

func (f publishFunc) Publish(ctx context.Context, req delivery.Request) delivery.Outcome {
	return f(ctx, req)
}

type received struct {
	mu     sync.Mutex
	events []string
	bodies [][]byte
}

func (r *received) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var env map[string]any
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &env))
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, req.Header.Get(webhooks.HeaderEvent))
		r.bodies = append(r.bodies, body)
	}
}

func (r *received) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type harness struct {
	store  *testhelpers.MemStore
	queue  *publishqueue.Service
	worker *Worker
	hooks  *received
	clock  time.Time
	orgID  uuid.UUID
}

func newHarness(t *testing.T, publisher delivery.Publisher) *harness {
	t.Helper()
	h := &harness{
		store: testhelpers.NewMemStore(),
		hooks: &received{},
		clock: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
		orgID: uuid.New(),
	}
	h.store.Now = func() time.Time { return h.clock }

	srv := httptest.NewServer(h.hooks.handler(t))
	t.Cleanup(srv.Close)
	h.store.AddWebhook(h.orgID, srv.URL, "whsec_test",
		webhooks.EventArticlePublished, webhooks.EventArticlePublishFailed)

	h.queue = publishqueue.NewService(h.store)
	dispatcher := webhooks.NewDispatcher(h.store, webhooks.NewDeliverer(h.store, time.Second, ""))
	h.worker = New(h.queue, h.store, publisher, dispatcher, 77, 0)
	return h
}

func (h *harness) enqueue(t *testing.T, platform string, integrationID *uuid.UUID) pubdb.PublishQueue {
	t.Helper()
	a := h.store.AddArticle(h.orgID, "Ten Tips", "ten-tips")
	item, err := h.queue.Enqueue(context.Background(), publishqueue.EnqueueParams{
		OrganizationID: h.orgID,
		ArticleID:      a.ID,
		Platform:       platform,
		IntegrationID:  integrationID,
	})
	require.NoError(t, err)
	return item
}

func TestTickPublishesAndNotifies(t *testing.T) {
	var gotReq delivery.Request
	h := newHarness(t, publishFunc(func(_ context.Context, req delivery.Request) delivery.Outcome {
		gotReq = req
		return delivery.Outcome{
			Success:         true,
			StatusCode:      201,
			PublishedURL:    "https://blog.example.com/ten-tips",
			PublishedPostID: "4711",
			PublishedData:   json.RawMessage(`{"id":4711}`),
		}
	}))
	in := h.store.AddIntegration(h.orgID, "wordpress", []byte(`{}`))
	item := h.enqueue(t, "wordpress", &in.ID)

	res, err := h.worker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, []uuid.UUID{item.ID}, res.Completed)
	assert.Empty(t, res.Failed)

	assert.Equal(t, "ten-tips", gotReq.Article.Slug)
	require.NotNil(t, gotReq.Integration)
	assert.Equal(t, in.ID, gotReq.Integration.ID)

	got := h.store.Item(item.ID)
	assert.Equal(t, pubdb.PublishStatusPublished, got.Status)
	assert.Equal(t, "https://blog.example.com/ten-tips", *got.PublishedUrl)
	assert.Equal(t, "4711", *got.PublishedPostID)
	assert.Equal(t, int32(0), got.AttemptCount)

	assert.Equal(t, []string{webhooks.EventArticlePublished}, h.hooks.got())
	assert.Contains(t, string(h.hooks.bodies[0]), `"published_url":"https://blog.example.com/ten-tips"`)

	res, err = h.worker.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.NotNil(t, res.Completed)
	assert.NotNil(t, res.Failed)
}

func TestTickFailRetryScenario(t *testing.T) {
	attempts := 0
	h := newHarness(t, publishFunc(func(context.Context, delivery.Request) delivery.Outcome {
		attempts++
		return delivery.Outcome{Error: "wordpress request failed: deadline exceeded", ErrorType: delivery.ErrorTimeout}
	}))
	h.store.AddIntegration(h.orgID, "wordpress", []byte(`{}`))
	item := h.enqueue(t, "wordpress", nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := h.worker.Tick(ctx)
		require.NoError(t, err)
		require.Len(t, res.Failed, 1)
		assert.Equal(t, "timeout", res.Failed[0].ErrorType)
		assert.Equal(t, i == 3, res.Failed[0].Terminal)

		got := h.store.Item(item.ID)
		assert.Equal(t, int32(i), got.AttemptCount)
		if i < 3 {
			assert.Equal(t, pubdb.PublishStatusPending, got.Status)
			require.NotNil(t, got.ScheduledFor)
			assert.True(t, got.ScheduledFor.After(h.clock))

			res, err = h.worker.Tick(ctx)
			require.NoError(t, err)
			assert.Zero(t, res.Processed, "not due during backoff")
			h.clock = got.ScheduledFor.Add(time.Second)
		} else {
			assert.Equal(t, pubdb.PublishStatusFailed, got.Status)
		}
	}
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []string{webhooks.EventArticlePublishFailed}, h.hooks.got())

	h.clock = h.clock.Add(24 * time.Hour)
	res, err := h.worker.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)

	ok, err := h.queue.Retry(ctx, h.orgID, item.ID)
	require.NoError(t, err)
	require.True(t, ok)
	got := h.store.Item(item.ID)
	assert.Equal(t, pubdb.PublishStatusPending, got.Status)
	assert.Equal(t, int32(3), got.AttemptCount)

	res, err = h.worker.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.True(t, res.Failed[0].Terminal)
	assert.Equal(t, 4, attempts)
}

func TestTickMissingArticleAndIntegration(t *testing.T) {
	h := newHarness(t, publishFunc(func(context.Context, delivery.Request) delivery.Outcome {
		t.Fatal("publisher must not be called")
		return delivery.Outcome{}
	}))

	gone := h.enqueue(t, "ghost", nil)
	a := h.store.Articles[gone.ArticleID]
	now := h.clock
	a.DeletedAt = &now
	h.store.Articles[a.ID] = a

	missing := uuid.New()
	orphan := h.enqueue(t, "ghost", nil)
	stored := h.store.Item(orphan.ID)
	stored.IntegrationID = &missing
	h.store.SetItem(stored)

	res, err := h.worker.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Failed, 2)

	byID := map[uuid.UUID]FailedItem{}
	for _, f := range res.Failed {
		byID[f.ID] = f
	}
	assert.Equal(t, string(delivery.ErrorNotFound), byID[gone.ID].ErrorType)
	assert.Equal(t, string(delivery.ErrorConfiguration), byID[orphan.ID].ErrorType)
}

func TestTickResolvesOrganizationIntegration(t *testing.T) {
	var got *pubdb.Integration
	h := newHarness(t, publishFunc(func(_ context.Context, req delivery.Request) delivery.Outcome {
		got = req.Integration
		return delivery.Outcome{Success: true}
	}))
	disabled := h.store.AddIntegration(h.orgID, "wordpress", []byte(`{}`))
	disabled.Status = "disabled"
	h.store.Integrations[disabled.ID] = disabled
	h.store.AddIntegration(h.orgID, "ghost", []byte(`{}`))
	active := h.store.AddIntegration(h.orgID, "wordpress", []byte(`{"site_url":"https://blog.example.com"}`))
	h.store.AddIntegration(uuid.New(), "wordpress", []byte(`{}`))

	item := h.enqueue(t, "wordpress", nil)
	res, err := h.worker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{item.ID}, res.Completed)
	require.NotNil(t, got)
	assert.Equal(t, active.ID, got.ID)
}

func TestTickWithoutAnyIntegrationIsAConfigurationFailure(t *testing.T) {
	h := newHarness(t, publishFunc(func(context.Context, delivery.Request) delivery.Outcome {
		t.Error("publisher must not be called")
		return delivery.Outcome{}
	}))
	h.store.AddIntegration(h.orgID, "ghost", []byte(`{}`))
	item := h.enqueue(t, "shopify", nil)

	res, err := h.worker.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, string(delivery.ErrorConfiguration), res.Failed[0].ErrorType)
	assert.Contains(t, *h.store.Item(item.ID).LastError, "no active shopify integration")
}

// contextStore fails queue writes once ctx is done, the way a pgx pool does.
type contextStore struct {
	*testhelpers.MemStore
}

func (s contextStore) PublishQueueMarkCompleted(ctx context.Context, arg pubdb.PublishQueueMarkCompletedParams) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.MemStore.PublishQueueMarkCompleted(ctx, arg)
}

func (s contextStore) PublishQueueMarkFailed(ctx context.Context, arg pubdb.PublishQueueMarkFailedParams) (pubdb.PublishQueue, error) {
	if err := ctx.Err(); err != nil {
		return pubdb.PublishQueue{}, err
	}
	return s.MemStore.PublishQueueMarkFailed(ctx, arg)
}

func (s contextStore) PublishQueueRelease(ctx context.Context, arg pubdb.PublishQueueReleaseParams) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.MemStore.PublishQueueRelease(ctx, arg)
}

func TestTickRecordsOutcomeAfterCallerGoesAway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	h := newHarness(t, nil)
	h.store.AddIntegration(h.orgID, "wordpress", []byte(`{}`))
	first := h.enqueue(t, "wordpress", nil)
	second := h.enqueue(t, "wordpress", nil)

	queue := publishqueue.NewService(contextStore{h.store})
	w := New(queue, h.store, publishFunc(func(context.Context, delivery.Request) delivery.Outcome {
		calls++
		cancel()
		return delivery.Outcome{Success: true, PublishedURL: "https://blog.example.com/ten-tips"}
	}), nil, 5, 5)

	res, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []uuid.UUID{first.ID}, res.Completed)
	assert.Equal(t, pubdb.PublishStatusPublished, h.store.Item(first.ID).Status)

	unattempted := h.store.Item(second.ID)
	assert.Equal(t, pubdb.PublishStatusPending, unattempted.Status, "claims not yet attempted are released")
	assert.Nil(t, unattempted.ClaimedBy)
	assert.Equal(t, int32(0), unattempted.AttemptCount)
}

func TestTickRecordsFailureAfterCallerGoesAway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, nil)
	h.store.AddIntegration(h.orgID, "ghost", []byte(`{}`))
	item := h.enqueue(t, "ghost", nil)

	queue := publishqueue.NewService(contextStore{h.store})
	w := New(queue, h.store, publishFunc(func(context.Context, delivery.Request) delivery.Outcome {
		cancel()
		return delivery.Outcome{Error: "ghost request failed: context canceled", ErrorType: delivery.ErrorTimeout}
	}), nil, 5, 5)

	res, err := w.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)

	got := h.store.Item(item.ID)
	assert.Equal(t, pubdb.PublishStatusPending, got.Status)
	assert.Equal(t, int32(1), got.AttemptCount)
}

type brokenDirectory struct {
	*testhelpers.MemStore
}

func (brokenDirectory) ArticleGet(context.Context, pubdb.ArticleGetParams) (pubdb.Article, error) {
	return pubdb.Article{}, errors.New("connection refused")
}

func TestTickStorageErrorIsAnInternalFailure(t *testing.T) {
	h := newHarness(t, publishFunc(func(context.Context, delivery.Request) delivery.Outcome {
		return delivery.Outcome{Success: true}
	}))
	item := h.enqueue(t, "shopify", nil)
	w := New(h.queue, brokenDirectory{h.store}, h.worker.publisher, nil, 1, 5)

	res, err := w.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, string(delivery.ErrorInternal), res.Failed[0].ErrorType)
	assert.Equal(t, int32(1), h.store.Item(item.ID).AttemptCount)
}

func TestTickNHonoursBatchSize(t *testing.T) {
	h := newHarness(t, publishFunc(func(context.Context, delivery.Request) delivery.Outcome {
		return delivery.Outcome{Success: true}
	}))
	h.store.AddIntegration(h.orgID, "webflow", []byte(`{}`))
	for range 8 {
		h.enqueue(t, "webflow", nil)
	}

	res, err := h.worker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, res.Processed)

	res, err = h.worker.TickN(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)

	for range MaxBatchSize + 10 {
		h.enqueue(t, "webflow", nil)
	}
	res, err = h.worker.TickN(context.Background(), 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, MaxBatchSize, res.Processed)
}

func TestSweeper(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	item := h.enqueue(t, "ghost", nil)
	ok, err := h.queue.MarkProcessing(ctx, item.ID, 9)
	require.NoError(t, err)
	require.True(t, ok)

	hook := h.store.AddWebhook(h.orgID, "https://example.com", "s", webhooks.EventTest)
	_, err = h.store.WebhookDeliveryInsert(ctx, pubdb.WebhookDeliveryInsertParams{WebhookID: hook.ID, EventType: "test"})
	require.NoError(t, err)

	// The store clock sits well in the past relative to the sweeper's.
	sw := NewSweeper(h.queue, h.store, SweeperConfig{StuckAfter: time.Minute, DeliveryLogRetention: time.Hour})
	sw.now = func() time.Time { return h.clock.Add(2 * time.Hour) }

	n, err := sw.Reclaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, pubdb.PublishStatusPending, h.store.Item(item.ID).Status)

	pruned, err := sw.PruneDeliveryLogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
	assert.Empty(t, h.store.DeliveriesFor(hook.ID))
}

func TestRunStopsOnCancel(t *testing.T) {
	ticks := make(chan struct{}, 10)
	h := newHarness(t, publishFunc(func(context.Context, delivery.Request) delivery.Outcome {
		ticks <- struct{}{}
		return delivery.Outcome{Success: true}
	}))
	h.store.AddIntegration(h.orgID, "ghost", []byte(`{}`))
	h.enqueue(t, "ghost", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx, time.Hour, nil) }()

	select {
	case <-ticks:
	case <-time.After(5 * time.Second):
		t.Fatal("first tick did not run")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
