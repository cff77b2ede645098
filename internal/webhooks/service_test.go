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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/publishrunner/internal/apperr"
	"github.com/cardinalhq/publishrunner/pubdb"
)

func ptr[T any](v T) *T { return &v }

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	svc := NewService(store, NewDeliverer(store, time.Second, ""))
	return svc, store
}

func TestServiceCreateValidates(t *testing.T) {
	svc, _ := newTestService(t)
	orgID := uuid.New()

	tests := []struct {
		name string
		p    CreateParams
		msg  string
	}{
		{"missing url", CreateParams{EventTypes: []string{EventTest}}, "url is required"},
		{"bad url", CreateParams{URL: "ftp://example.com", EventTypes: []string{EventTest}}, "url must be an http(s) URL"},
		{"no events", CreateParams{URL: "https://example.com/hook"}, "event_types is required"},
		{"empty events", CreateParams{URL: "https://example.com/hook", EventTypes: []string{}}, "event_types must be at least 1"},
		{"unknown event", CreateParams{URL: "https://example.com/hook", EventTypes: []string{"nope"}}, "webhook_event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), orgID, tt.p)
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestServiceLifecycle(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	orgID := uuid.New()

	created, err := svc.Create(ctx, orgID, CreateParams{
		URL:        "https://example.com/hook",
		EventTypes: []string{EventArticlePublished, EventArticlePublished, EventArticlePublishFailed},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.Secret, "whsec_"))
	assert.Equal(t, []string{EventArticlePublished, EventArticlePublishFailed}, created.EventTypes)
	assert.Equal(t, "active", created.Status)

	got, err := svc.Get(ctx, orgID, created.ID)
	require.NoError(t, err)
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
	assert.NotContains(t, string(raw), created.Secret)

	_, err = svc.Get(ctx, uuid.New(), created.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	updated, err := svc.Update(ctx, orgID, created.ID, UpdateParams{Status: ptr("disabled")})
	require.NoError(t, err)
	assert.Equal(t, "disabled", updated.Status)
	assert.Equal(t, "https://example.com/hook", updated.URL)

	_, err = svc.Update(ctx, orgID, created.ID, UpdateParams{EventTypes: []string{}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Update(ctx, orgID, created.ID, UpdateParams{Status: ptr("paused")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	secret, err := svc.RegenerateSecret(ctx, orgID, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, created.Secret, secret)
	assert.Equal(t, secret, store.hooks[created.ID].Secret)

	list, err := svc.List(ctx, orgID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, orgID, created.ID))
	_, err = svc.Get(ctx, orgID, created.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, orgID, created.ID), apperr.ErrNotFound)
	_, err = svc.RegenerateSecret(ctx, orgID, created.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	list, err = svc.List(ctx, orgID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestServiceTestDelivery(t *testing.T) {
	var gotEvent string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	svc, store := newTestService(t)
	ctx := context.Background()
	orgID := uuid.New()
	created, err := svc.Create(ctx, orgID, CreateParams{URL: srv.URL, EventTypes: []string{EventArticleCreated}})
	require.NoError(t, err)

	res, err := svc.Test(ctx, orgID, created.ID, "", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Skipped)
	assert.Equal(t, EventTest, gotEvent)
	assert.Contains(t, string(gotBody), "This is a test webhook delivery")

	res, err = svc.Test(ctx, orgID, created.ID, EventArticleCreated, json.RawMessage(`{"custom":true}`))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, string(gotBody), `"data":{"custom":true}`)

	// Not subscribed: skipped, nothing logged.
	res, err = svc.Test(ctx, orgID, created.ID, EventBacklinkDetected, nil)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	_, err = svc.Test(ctx, orgID, created.ID, "bogus", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Test(ctx, orgID, created.ID, "", json.RawMessage(`{bad`))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Test(ctx, orgID, uuid.New(), "", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Len(t, store.logged(), 2)
}

func TestServiceLogs(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	orgID := uuid.New()
	created, err := svc.Create(ctx, orgID, CreateParams{URL: "https://example.com", EventTypes: []string{EventTest}})
	require.NoError(t, err)

	for i := 0; i < 120; i++ {
		_, err := store.WebhookDeliveryInsert(ctx, pubdb.WebhookDeliveryInsertParams{
			WebhookID: created.ID,
			EventType: EventTest,
			Success:   i%2 == 0,
		})
		require.NoError(t, err)
	}

	tests := []struct {
		limit, offset    int32
		wantLimit, wantN int32
		wantOffset       int32
	}{
		{0, 0, DefaultLogLimit, 50, 0},
		{500, 0, MaxLogLimit, 100, 0},
		{10, 115, 10, 5, 115},
		{10, -3, 10, 10, 0},
	}
	for _, tt := range tests {
		page, err := svc.Logs(ctx, orgID, created.ID, tt.limit, tt.offset)
		require.NoError(t, err)
		assert.Equal(t, int64(120), page.Total)
		assert.Equal(t, tt.wantLimit, page.Limit)
		assert.Equal(t, tt.wantOffset, page.Offset)
		assert.Len(t, page.Entries, int(tt.wantN))
	}

	_, err = svc.Logs(ctx, uuid.New(), created.ID, 10, 0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
