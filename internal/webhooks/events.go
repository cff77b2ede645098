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
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	EventArticlePublished      = "article.published"
	EventArticlePublishFailed  = "article.publish_failed"
	EventArticleCreated        = "article.created"
	EventArticleUpdated        = "article.updated"
	EventArticleDeleted        = "article.deleted"
	EventKeywordRankingChanged = "keyword.ranking_changed"
	EventBacklinkDetected      = "backlink.detected"
	// EventTest is sent by the test endpoint. Every webhook receives it
	// whatever its subscriptions.
	EventTest = "test"
)

var knownEvents = mapset.NewThreadUnsafeSet(
	EventArticlePublished,
	EventArticlePublishFailed,
	EventArticleCreated,
	EventArticleUpdated,
	EventArticleDeleted,
	EventKeywordRankingChanged,
	EventBacklinkDetected,
	EventTest,
)

// EventTypes returns every known event type in sorted order.
func EventTypes() []string {
	out := knownEvents.ToSlice()
	slices.Sort(out)
	return out
}

func IsKnownEvent(eventType string) bool {
	return knownEvents.Contains(eventType)
}

// Envelope is the JSON body of every delivery.
type Envelope struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// ArticleEvent is the payload of the article.* events.
type ArticleEvent struct {
	ArticleID    string     `json:"article_id"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Status       string     `json:"status"`
	PublishedAt  *time.Time `json:"published_at"`
	Platform     string     `json:"platform,omitempty"`
	PublishedURL string     `json:"published_url,omitempty"`
	QueueItemID  string     `json:"queue_item_id,omitempty"`
	Error        string     `json:"error,omitempty"`
	ErrorType    string     `json:"error_type,omitempty"`
}

// subscribed reports whether a webhook with eventTypes receives eventType.
func subscribed(eventTypes []string, eventType string) bool {
	if eventType == EventTest {
		return true
	}
	return slices.Contains(eventTypes, eventType)
}
