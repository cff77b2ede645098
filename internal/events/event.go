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

package events

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeEnqueued       Type = "enqueued"
	TypeClaimed        Type = "claimed"
	TypePublished      Type = "published"
	TypeRetryScheduled Type = "retry_scheduled"
	TypeFailed         Type = "failed"
	TypeCancelled      Type = "cancelled"
	TypeRequeued       Type = "requeued"
	TypeReclaimed      Type = "reclaimed"
)

// Event is one state transition of a queue item.
type Event struct {
	Type           Type       `json:"type"`
	QueueItemID    uuid.UUID  `json:"queue_item_id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	ArticleID      uuid.UUID  `json:"article_id"`
	Platform       string     `json:"platform"`
	Status         string     `json:"status"`
	AttemptCount   int32      `json:"attempt_count"`
	ScheduledFor   *time.Time `json:"scheduled_for,omitempty"`
	Error          string     `json:"error,omitempty"`
	ErrorType      string     `json:"error_type,omitempty"`
	WorkerID       int64      `json:"worker_id,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}
