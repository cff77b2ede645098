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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cardinalhq/publishrunner/internal/apperr"
	"github.com/cardinalhq/publishrunner/internal/logctx"
	"github.com/cardinalhq/publishrunner/pubdb"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "publishrunner/1"
)

// Request is everything an adapter needs to publish one queue item.
type Request struct {
	QueueItemID uuid.UUID
	Platform    string
	Article     pubdb.Article
	Integration *pubdb.Integration
}

type Publisher interface {
	Publish(ctx context.Context, req Request) Outcome
}

// call is a prepared HTTP request plus the parser for its response.
type call struct {
	req   *http.Request
	parse func(body []byte) (published, error)
}

type published struct {
	URL    string
	PostID string
}

type adapter interface {
	build(ctx context.Context, req Request, now time.Time) (*call, error)
}

// Executor publishes articles to CMS platforms over HTTP.
type Executor struct {
	client    *http.Client
	userAgent string
	adapters  map[Platform]adapter
	now       func() time.Time
}

var _ Publisher = (*Executor)(nil)

func NewExecutor(timeout time.Duration, userAgent string) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Executor{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		adapters: map[Platform]adapter{
			PlatformWordPress: wordpressAdapter{},
			PlatformGhost:     ghostAdapter{},
			PlatformWebflow:   webflowAdapter{},
			PlatformShopify:   shopifyAdapter{},
			PlatformWebhook:   customWebhookAdapter{},
		},
		now: time.Now,
	}
}

func (e *Executor) Publish(ctx context.Context, req Request) Outcome {
	start := e.now()
	out := e.publish(ctx, req)
	out.Duration = e.now().Sub(start)
	recordDelivery(ctx, req.Platform, out)

	logger := logctx.FromContext(ctx)
	if out.Success {
		logger.Info("Published article",
			slog.String("platform", req.Platform),
			slog.String("queue_item_id", req.QueueItemID.String()),
			slog.String("published_url", out.PublishedURL),
			slog.Duration("duration", out.Duration))
	} else {
		logger.Warn("Publish attempt failed",
			slog.String("platform", req.Platform),
			slog.String("queue_item_id", req.QueueItemID.String()),
			slog.String("error_type", string(out.ErrorType)),
			slog.String("error", out.Error),
			slog.Int("status_code", out.StatusCode))
	}
	return out
}

func (e *Executor) publish(ctx context.Context, req Request) Outcome {
	a, ok := e.adapters[Platform(req.Platform)]
	if !ok {
		return failure(ErrorConfiguration, "unsupported platform %q", req.Platform)
	}
	if req.Integration == nil {
		return failure(ErrorConfiguration, "no integration configured for %s", req.Platform)
	}
	if req.Integration.Status != "active" {
		return failure(ErrorConfiguration, "integration %s is %s", req.Integration.ID, req.Integration.Status)
	}
	if req.Integration.Platform != req.Platform {
		return failure(ErrorConfiguration, "integration %s is for %s, not %s",
			req.Integration.ID, req.Integration.Platform, req.Platform)
	}

	c, err := a.build(ctx, req, e.now())
	if err != nil {
		return failure(ErrorConfiguration, "%s integration: %v", req.Platform, err)
	}
	c.req.Header.Set("User-Agent", e.userAgent)
	c.req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(c.req)
	if err != nil {
		return failure(ClassifyTransportError(err), "%s request failed: %v", req.Platform, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		out := failure(ClassifyTransportError(err), "reading %s response: %v", req.Platform, err)
		out.StatusCode = resp.StatusCode
		return out
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		out := failure(ClassifyStatus(resp.StatusCode), "%s returned HTTP %d: %s",
			req.Platform, resp.StatusCode, bodySnippet(body))
		out.StatusCode = resp.StatusCode
		return out
	}

	pub, err := c.parse(body)
	if err != nil {
		out := failure(ErrorInvalidResponse, "%s response: %v", req.Platform, err)
		out.StatusCode = resp.StatusCode
		return out
	}

	out := Outcome{
		Success:         true,
		StatusCode:      resp.StatusCode,
		PublishedURL:    pub.URL,
		PublishedPostID: pub.PostID,
	}
	if json.Valid(body) {
		out.PublishedData = json.RawMessage(body)
	}
	return out
}

// decodeConfig unmarshals an integration's config and checks its
// `validate` tags.
func decodeConfig[T any](raw json.RawMessage) (T, error) {
	var cfg T
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	if err := apperr.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newJSONRequest(ctx context.Context, url string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func excerpt(a pubdb.Article) string {
	if a.Excerpt == nil {
		return ""
	}
	return *a.Excerpt
}
