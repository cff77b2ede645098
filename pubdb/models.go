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

package pubdb

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PublishStatus string

const (
	PublishStatusPending    PublishStatus = "pending"
	PublishStatusProcessing PublishStatus = "processing"
	PublishStatusPublished  PublishStatus = "published"
	PublishStatusFailed     PublishStatus = "failed"
	PublishStatusCancelled  PublishStatus = "cancelled"
)

// AllPublishStatuses lists every status in lifecycle order.
var AllPublishStatuses = []PublishStatus{
	PublishStatusPending,
	PublishStatusProcessing,
	PublishStatusPublished,
	PublishStatusFailed,
	PublishStatusCancelled,
}

func (s PublishStatus) Valid() bool {
	switch s {
	case PublishStatusPending, PublishStatusProcessing, PublishStatusPublished,
		PublishStatusFailed, PublishStatusCancelled:
		return true
	}
	return false
}

type PublishQueue struct {
	ID                  uuid.UUID       `json:"id"`
	OrganizationID      uuid.UUID       `json:"organization_id"`
	ArticleID           uuid.UUID       `json:"article_id"`
	Platform            string          `json:"platform"`
	IntegrationID       *uuid.UUID      `json:"integration_id"`
	ProductID           *uuid.UUID      `json:"product_id"`
	Status              PublishStatus   `json:"status"`
	Priority            int32           `json:"priority"`
	ScheduledFor        *time.Time      `json:"scheduled_for"`
	AttemptCount        int32           `json:"attempt_count"`
	MaxAttempts         int32           `json:"max_attempts"`
	LastError           *string         `json:"last_error"`
	LastErrorType       *string         `json:"last_error_type"`
	PublishedUrl        *string         `json:"published_url"`
	PublishedPostID     *string         `json:"published_post_id"`
	PublishedData       json.RawMessage `json:"published_data"`
	ClaimedBy           *int64          `json:"claimed_by"`
	ProcessingStartedAt *time.Time      `json:"processing_started_at"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type Webhook struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Url            string     `json:"url"`
	Secret         string     `json:"secret"`
	EventTypes     []string   `json:"event_types"`
	Status         string     `json:"status"`
	Description    *string    `json:"description"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at"`
}

type WebhookDelivery struct {
	ID           uuid.UUID       `json:"id"`
	WebhookID    uuid.UUID       `json:"webhook_id"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	StatusCode   *int32          `json:"status_code"`
	Success      bool            `json:"success"`
	DurationMs   int32           `json:"duration_ms"`
	AttemptedAt  time.Time       `json:"attempted_at"`
	ErrorMessage *string         `json:"error_message"`
}

type Article struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	ProductID      *uuid.UUID `json:"product_id"`
	Title          string     `json:"title"`
	Slug           string     `json:"slug"`
	Content        string     `json:"content"`
	Excerpt        *string    `json:"excerpt"`
	Status         string     `json:"status"`
	PublishedAt    *time.Time `json:"published_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at"`
}

type Integration struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	Platform       string          `json:"platform"`
	Name           string          `json:"name"`
	Config         json.RawMessage `json:"config"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      *time.Time      `json:"deleted_at"`
}

type OrganizationMember struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

type ApiKey struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	KeyHash   string    `json:"key_hash"`
	CreatedAt time.Time `json:"created_at"`
}
