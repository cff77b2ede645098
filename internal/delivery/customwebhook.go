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
	"net/http"
	"strconv"
	"time"

	"github.com/cardinalhq/publishrunner/internal/webhooks"
)

// EventPublishRequested is the envelope event for articles sent to a custom
// publishing endpoint.
const EventPublishRequested = "article.publish_requested"

type customWebhookConfig struct {
	URL    string `json:"url" validate:"required,http_url"`
	Secret string `json:"secret" validate:"required"`
}

type articlePayload struct {
	ArticleID   string     `json:"article_id"`
	QueueItemID string     `json:"queue_item_id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Content     string     `json:"content"`
	Excerpt     string     `json:"excerpt,omitempty"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at"`
}

// customWebhookAdapter POSTs the article to a customer endpoint, signed the
// same way as event webhooks. The endpoint may answer with
// {"url": ..., "id": ...}; anything else still counts as success.
type customWebhookAdapter struct{}

func (customWebhookAdapter) build(ctx context.Context, req Request, now time.Time) (*call, error) {
	cfg, err := decodeConfig[customWebhookConfig](req.Integration.Config)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(webhooks.Envelope{
		Event:     EventPublishRequested,
		Timestamp: now.UTC().Format(time.RFC3339),
		Data: articlePayload{
			ArticleID:   req.Article.ID.String(),
			QueueItemID: req.QueueItemID.String(),
			Title:       req.Article.Title,
			Slug:        req.Article.Slug,
			Content:     req.Article.Content,
			Excerpt:     excerpt(req.Article),
			Status:      req.Article.Status,
			PublishedAt: req.Article.PublishedAt,
		},
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	ts := now.Unix()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(webhooks.HeaderEvent, EventPublishRequested)
	httpReq.Header.Set(webhooks.HeaderID, req.QueueItemID.String())
	httpReq.Header.Set(webhooks.HeaderTimestamp, strconv.FormatInt(ts, 10))
	httpReq.Header.Set(webhooks.HeaderSignature, webhooks.Sign(cfg.Secret, ts, body))

	return &call{req: httpReq, parse: func(body []byte) (published, error) {
		var resp struct {
			URL          string `json:"url"`
			PublishedURL string `json:"published_url"`
			ID           any    `json:"id"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return published{}, nil
		}
		pub := published{URL: resp.URL}
		if pub.URL == "" {
			pub.URL = resp.PublishedURL
		}
		switch id := resp.ID.(type) {
		case string:
			pub.PostID = id
		case float64:
			pub.PostID = strconv.FormatFloat(id, 'f', -1, 64)
		}
		return pub, nil
	}}, nil
}
