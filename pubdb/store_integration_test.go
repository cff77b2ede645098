//go:build integration

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

package pubdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/publishrunner/pubdb"
	"github.com/cardinalhq/publishrunner/testhelpers"
)

func enqueue(t *testing.T, store *pubdb.Store, orgID, articleID uuid.UUID, platform string, priority int32) pubdb.PublishQueue {
	t.Helper()
	item, err := store.EnqueueArticle(context.Background(), pubdb.PublishQueueInsertParams{
		OrganizationID: orgID,
		ArticleID:      articleID,
		Platform:       platform,
		Priority:       priority,
		MaxAttempts:    3,
	})
	require.NoError(t, err)
	return item
}

func TestPublishQueuePickDueOrdering(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestStore(t)
	orgID := uuid.New()

	for i, p := range []int32{1, 5, 5, 2} {
		articleID := testhelpers.SeedArticle(t, store.Pool(), orgID, "ordering "+string(rune('a'+i)))
		enqueue(t, store, orgID, articleID, "wordpress", p)
	}

	items, err := store.PublishQueuePickDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 4)

	got := make([]int32, len(items))
	for i, item := range items {
		got[i] = item.Priority
	}
	assert.Equal(t, []int32{5, 5, 2, 1}, got)
	assert.True(t, items[0].CreatedAt.Before(items[1].CreatedAt), "equal priority keeps insertion order")
}

func TestPublishQueuePickDueSkipsFuture(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestStore(t)
	orgID := uuid.New()

	future := time.Now().Add(time.Hour)
	_, err := store.EnqueueArticle(ctx, pubdb.PublishQueueInsertParams{
		OrganizationID: orgID,
		ArticleID:      testhelpers.SeedArticle(t, store.Pool(), orgID, "later"),
		Platform:       "ghost",
		ScheduledFor:   &future,
		MaxAttempts:    3,
	})
	require.NoError(t, err)

	items, err := store.PublishQueuePickDue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPublishQueueActiveUniqueness(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestStore(t)
	orgID := uuid.New()
	articleID := testhelpers.SeedArticle(t, store.Pool(), orgID, "unique")

	first := enqueue(t, store, orgID, articleID, "wordpress", 0)

	_, err := store.EnqueueArticle(ctx, pubdb.PublishQueueInsertParams{
		OrganizationID: orgID,
		ArticleID:      articleID,
		Platform:       "wordpress",
		MaxAttempts:    3,
	})
	require.Error(t, err)
	assert.True(t, pubdb.IsUniqueViolation(err))

	// A different platform is a different active slot.
	enqueue(t, store, orgID, articleID, "ghost", 0)

	// Once cancelled the slot frees up.
	n, err := store.PublishQueueCancel(ctx, pubdb.PublishQueueCancelParams{OrganizationID: orgID, ID: first.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	enqueue(t, store, orgID, articleID, "wordpress", 0)
}

func TestEnqueueArticleValidation(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestStore(t)
	orgID := uuid.New()
	articleID := testhelpers.SeedArticle(t, store.Pool(), orgID, "validation")

	_, err := store.EnqueueArticle(ctx, pubdb.PublishQueueInsertParams{
		OrganizationID: uuid.New(),
		ArticleID:      articleID,
		Platform:       "wordpress",
		MaxAttempts:    3,
	})
	assert.ErrorIs(t, err, pubdb.ErrArticleMissing)

	integrationID := testhelpers.SeedIntegration(t, store.Pool(), orgID, "ghost", `{}`)
	_, err = store.EnqueueArticle(ctx, pubdb.PublishQueueInsertParams{
		OrganizationID: orgID,
		ArticleID:      articleID,
		Platform:       "wordpress",
		IntegrationID:  &integrationID,
		MaxAttempts:    3,
	})
	assert.ErrorIs(t, err, pubdb.ErrIntegrationPlatform)

	missing := uuid.New()
	_, err = store.EnqueueArticle(ctx, pubdb.PublishQueueInsertParams{
		OrganizationID: orgID,
		ArticleID:      articleID,
		Platform:       "ghost",
		IntegrationID:  &missing,
		MaxAttempts:    3,
	})
	assert.ErrorIs(t, err, pubdb.ErrIntegrationMissing)
}

func TestPublishQueueClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestStore(t)
	orgID := uuid.New()
	item := enqueue(t, store, orgID, testhelpers.SeedArticle(t, store.Pool(), orgID, "claim"), "webflow", 0)

	startedAt, err := store.PublishQueueMarkProcessing(ctx, pubdb.PublishQueueMarkProcessingParams{ID: item.ID, ClaimedBy: 1})
	require.NoError(t, err)

	_, err = store.PublishQueueMarkProcessing(ctx, pubdb.PublishQueueMarkProcessingParams{ID: item.ID, ClaimedBy: 2})
	assert.True(t, pubdb.IsNoRows(err))

	got, err := store.PublishQueueGetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, pubdb.PublishStatusProcessing, got.Status)
	require.NotNil(t, got.ClaimedBy)
	assert.Equal(t, int64(1), *got.ClaimedBy)
	require.NotNil(t, got.ProcessingStartedAt)
	assert.True(t, startedAt.Equal(*got.ProcessingStartedAt))
}

func TestPublishQueueOutcomesAreFencedByClaim(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestStore(t)
	orgID := uuid.New()
	item := enqueue(t, store, orgID, testhelpers.SeedArticle(t, store.Pool(), orgID, "fenced"), "ghost", 0)

	staleWorker := int64(1)
	staleStart, err := store.PublishQueueMarkProcessing(ctx, pubdb.PublishQueueMarkProcessingParams{ID: item.ID, ClaimedBy: staleWorker})
	require.NoError(t, err)
	_, err = store.PublishQueueReclaimStale(ctx, pubdb.PublishQueueReclaimStaleParams{
		StartedBefore: time.Now().Add(time.Minute),
		LastError:     "claim expired",
	})
	require.NoError(t, err)

	liveWorker := int64(2)
	liveStart, err := store.PublishQueueMarkProcessing(ctx, pubdb.PublishQueueMarkProcessingParams{ID: item.ID, ClaimedBy: liveWorker})
	require.NoError(t, err)

	_, err = store.PublishQueueMarkFailed(ctx, pubdb.PublishQueueMarkFailedParams{
		ID: item.ID, LastError: "late", LastErrorType: "timeout",
		BackoffBaseSeconds: 60, BackoffMaxSeconds: 3600,
		ClaimedBy: &staleWorker, ClaimStartedAt: &staleStart,
	})
	assert.True(t, pubdb.IsNoRows(err))

	n, err := store.PublishQueueMarkCompleted(ctx, pubdb.PublishQueueMarkCompletedParams{
		ID: item.ID, ClaimedBy: &staleWorker, ClaimStartedAt: &staleStart,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := store.PublishQueueGetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, pubdb.PublishStatusProcessing, got.Status)
	assert.Equal(t, liveWorker, *got.ClaimedBy)

	n, err = store.PublishQueueMarkCompleted(ctx, pubdb.PublishQueueMarkCompletedParams{
		ID: item.ID, ClaimedBy: &liveWorker, ClaimStartedAt: &liveStart,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPublishQueueRelease(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestStore(t)
	orgID := uuid.New()
	item := enqueue(t, store, orgID, testhelpers.SeedArticle(t, store.Pool(), orgID, "release"), "ghost", 0)

	startedAt, err := store.PublishQueueMarkProcessing(ctx, pubdb.PublishQueueMarkProcessingParams{ID: item.ID, ClaimedBy: 4})
	require.NoError(t, err)

	n, err := store.PublishQueueRelease(ctx, pubdb.PublishQueueReleaseParams{ID: item.ID, ClaimedBy: 5, ClaimStartedAt: startedAt})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "another worker's claim is untouched")

	n, err = store.PublishQueueRelease(ctx, pubdb.PublishQueueReleaseParams{ID: item.ID, ClaimedBy: 4, ClaimStartedAt: startedAt})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.PublishQueueGetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, pubdb.PublishStatusPending, got.Status)
	assert.Nil(t, got.ClaimedBy)
	assert.Equal(t, int32(0), got.AttemptCount)
}

func TestIntegrationGetActiveForPlatform(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestStore(t)
	orgID := uuid.New()

	_, err := store.IntegrationGetActiveForPlatform(ctx, pubdb.IntegrationGetActiveForPlatformParams{OrganizationID: orgID, Platform: "wordpress"})
	assert.True(t, pubdb.IsNoRows(err))

	disabled := testhelpers.SeedIntegration(t, store.Pool(), orgID, "wordpress", `{}`)
	_, err = store.Pool().Exec(ctx, `UPDATE integrations SET status = 'disabled' WHERE id = $1`, disabled)
	require.NoError(t, err)
	testhelpers.SeedIntegration(t, store.Pool(), orgID, "ghost", `{}`)
	active := testhelpers.SeedIntegration(t, store.Pool(), orgID, "wordpress", `{}`)

	got, err := store.IntegrationGetActiveForPlatform(ctx, pubdb.IntegrationGetActiveForPlatformParams{OrganizationID: orgID, Platform: "wordpress"})
	require.NoError(t, err)
	assert.Equal(t, active, got.ID)
}

func TestPublishQueueMarkFailedSchedulesBackoffThenTerminates(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestStore(t)
	orgID := uuid.New()
	item := enqueue(t, store, orgID, testhelpers.SeedArticle(t, store.Pool(), orgID, "fail"), "shopify", 0)

	fail := func() pubdb.PublishQueue {
		_, err := store.PublishQueueMarkProcessing(ctx, pubdb.PublishQueueMarkProcessingParams{ID: item.ID, ClaimedBy: 7})
		require.NoError(t, err)
		got, err := store.PublishQueueMarkFailed(ctx, pubdb.PublishQueueMarkFailedParams{
			ID:                 item.ID,
			LastError:          "boom",
			LastErrorType:      "server_error",
			BackoffBaseSeconds: 60,
			BackoffMaxSeconds:  3600,
		})
		require.NoError(t, err)
		return got
	}

	before := time.Now()
	got := fail()
	assert.Equal(t, pubdb.PublishStatusPending, got.Status)
	assert.Equal(t, int32(1), got.AttemptCount)
	require.NotNil(t, got.ScheduledFor)
	assert.WithinDuration(t, before.Add(2*time.Minute), *got.ScheduledFor, 30*time.Second)
	assert.Nil(t, got.ClaimedBy)

	// Make it due again so it can be claimed.
	_, err := store.Pool().Exec(ctx, `UPDATE publish_queue SET scheduled_for = NULL WHERE id = $1`, item.ID)
	require.NoError(t, err)
	got = fail()
	assert.Equal(t, pubdb.PublishStatusPending, got.Status)
	assert.Equal(t, int32(2), got.AttemptCount)

	_, err = store.Pool().Exec(ctx, `UPDATE publish_queue SET scheduled_for = NULL WHERE id = $1`, item.ID)
	require.NoError(t, err)
	got = fail()
	assert.Equal(t, pubdb.PublishStatusFailed, got.Status)
	assert.Equal(t, int32(3), got.AttemptCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "boom", *got.LastError)

	// Not processing any more, so a second report is rejected.
	_, err = store.PublishQueueMarkFailed(ctx, pubdb.PublishQueueMarkFailedParams{
		ID: item.ID, LastError: "again", LastErrorType: "network",
		BackoffBaseSeconds: 60, BackoffMaxSeconds: 3600,
	})
	assert.True(t, pubdb.IsNoRows(err))

	// Retry keeps the count and grants exactly one more attempt.
	n, err := store.PublishQueueRetry(ctx, pubdb.PublishQueueRetryParams{OrganizationID: orgID, ID: item.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got = fail()
	assert.Equal(t, pubdb.PublishStatusFailed, got.Status)
	assert.Equal(t, int32(3), got.AttemptCount)
}

func TestPublishQueueCompleteAndCancelGuards(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestStore(t)
	orgID := uuid.New()
	item := enqueue(t, store, orgID, testhelpers.SeedArticle(t, store.Pool(), orgID, "complete"), "ghost", 0)

	// Completion is only accepted from processing.
	n, err := store.PublishQueueMarkCompleted(ctx, pubdb.PublishQueueMarkCompletedParams{ID: item.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = store.PublishQueueMarkProcessing(ctx, pubdb.PublishQueueMarkProcessingParams{ID: item.ID, ClaimedBy: 1})
	require.NoError(t, err)

	// Cancel only applies to pending.
	n, err = store.PublishQueueCancel(ctx, pubdb.PublishQueueCancelParams{OrganizationID: orgID, ID: item.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	url := "https://blog.example.com/complete"
	n, err = store.PublishQueueMarkCompleted(ctx, pubdb.PublishQueueMarkCompletedParams{
		ID:            item.ID,
		PublishedUrl:  &url,
		PublishedData: []byte(`{"id":"42"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.PublishQueueGet(ctx, pubdb.PublishQueueGetParams{OrganizationID: orgID, ID: item.ID})
	require.NoError(t, err)
	assert.Equal(t, pubdb.PublishStatusPublished, got.Status)
	assert.Equal(t, &url, got.PublishedUrl)
	assert.JSONEq(t, `{"id":"42"}`, string(got.PublishedData))
}

func TestPublishQueueStatsAndReclaim(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestStore(t)
	orgID := uuid.New()

	a := enqueue(t, store, orgID, testhelpers.SeedArticle(t, store.Pool(), orgID, "stats a"), "ghost", 0)
	enqueue(t, store, orgID, testhelpers.SeedArticle(t, store.Pool(), orgID, "stats b"), "ghost", 0)

	_, err := store.PublishQueueMarkProcessing(ctx, pubdb.PublishQueueMarkProcessingParams{ID: a.ID, ClaimedBy: 3})
	require.NoError(t, err)

	rows, err := store.PublishQueueStats(ctx, pubdb.PublishQueueStatsParams{OrganizationID: orgID})
	require.NoError(t, err)
	counts := map[pubdb.PublishStatus]int64{}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	assert.Equal(t, int64(1), counts[pubdb.PublishStatusPending])
	assert.Equal(t, int64(1), counts[pubdb.PublishStatusProcessing])

	reclaimed, err := store.PublishQueueReclaimStale(ctx, pubdb.PublishQueueReclaimStaleParams{
		StartedBefore: time.Now().Add(time.Minute),
		LastError:     "claim expired",
	})
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, a.ID, reclaimed[0].ID)

	got, err := store.PublishQueueGetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pubdb.PublishStatusPending, got.Status)
	assert.Equal(t, int32(0), got.AttemptCount)
	require.NotNil(t, got.LastErrorType)
	assert.Equal(t, "stale_claim", *got.LastErrorType)
}

func TestWebhookDeliveryLogPage(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestStore(t)
	orgID := uuid.New()

	hook, err := store.WebhookInsert(ctx, pubdb.WebhookInsertParams{
		OrganizationID: orgID,
		Url:            "https://hooks.example.com/in",
		Secret:         "s3cret",
		EventTypes:     []string{"article.published"},
	})
	require.NoError(t, err)

	for i := range 3 {
		code := int32(200 + i)
		_, err := store.WebhookDeliveryInsert(ctx, pubdb.WebhookDeliveryInsertParams{
			WebhookID:  hook.ID,
			EventType:  "article.published",
			Payload:    []byte(`{}`),
			StatusCode: &code,
			Success:    true,
			DurationMs: 5,
		})
		require.NoError(t, err)
	}

	entries, total, err := store.WebhookDeliveryLogPage(ctx, pubdb.WebhookDeliveryListParams{
		WebhookID: hook.ID, Limit: 2, Offset: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, entries, 2)
	assert.Equal(t, int32(202), *entries[0].StatusCode)

	active, err := store.WebhookListActiveForEvent(ctx, pubdb.WebhookListActiveForEventParams{
		OrganizationID: orgID, EventType: "article.published",
	})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	n, err := store.WebhookSoftDelete(ctx, pubdb.WebhookSoftDeleteParams{OrganizationID: orgID, ID: hook.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = store.WebhookGet(ctx, pubdb.WebhookGetParams{OrganizationID: orgID, ID: hook.ID})
	assert.True(t, pubdb.IsNoRows(err))
}
