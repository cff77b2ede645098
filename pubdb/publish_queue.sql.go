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
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const publishQueueColumns = `id, organization_id, article_id, platform, integration_id, product_id, status,
  priority, scheduled_for, attempt_count, max_attempts, last_error, last_error_type,
  published_url, published_post_id, published_data, claimed_by, processing_started_at,
  created_at, updated_at`

func scanPublishQueue(row interface{ Scan(...any) error }) (PublishQueue, error) {
	var i PublishQueue
	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.ArticleID,
		&i.Platform,
		&i.IntegrationID,
		&i.ProductID,
		&i.Status,
		&i.Priority,
		&i.ScheduledFor,
		&i.AttemptCount,
		&i.MaxAttempts,
		&i.LastError,
		&i.LastErrorType,
		&i.PublishedUrl,
		&i.PublishedPostID,
		&i.PublishedData,
		&i.ClaimedBy,
		&i.ProcessingStartedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func (q *Queries) queryPublishQueue(ctx context.Context, sql string, args ...any) ([]PublishQueue, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PublishQueue
	for rows.Next() {
		i, err := scanPublishQueue(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const publishQueueInsert = `-- name: PublishQueueInsert :one
INSERT INTO publish_queue (
  organization_id, article_id, platform, integration_id, product_id,
  priority, scheduled_for, max_attempts
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + publishQueueColumns

type PublishQueueInsertParams struct {
	OrganizationID uuid.UUID  `json:"organization_id"`
	ArticleID      uuid.UUID  `json:"article_id"`
	Platform       string     `json:"platform"`
	IntegrationID  *uuid.UUID `json:"integration_id"`
	ProductID      *uuid.UUID `json:"product_id"`
	Priority       int32      `json:"priority"`
	ScheduledFor   *time.Time `json:"scheduled_for"`
	MaxAttempts    int32      `json:"max_attempts"`
}

func (q *Queries) PublishQueueInsert(ctx context.Context, arg PublishQueueInsertParams) (PublishQueue, error) {
	row := q.db.QueryRow(ctx, publishQueueInsert,
		arg.OrganizationID,
		arg.ArticleID,
		arg.Platform,
		arg.IntegrationID,
		arg.ProductID,
		arg.Priority,
		arg.ScheduledFor,
		arg.MaxAttempts,
	)
	return scanPublishQueue(row)
}

const publishQueueGet = `-- name: PublishQueueGet :one
SELECT ` + publishQueueColumns + `
FROM publish_queue
WHERE organization_id = $1 AND id = $2`

type PublishQueueGetParams struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ID             uuid.UUID `json:"id"`
}

func (q *Queries) PublishQueueGet(ctx context.Context, arg PublishQueueGetParams) (PublishQueue, error) {
	return scanPublishQueue(q.db.QueryRow(ctx, publishQueueGet, arg.OrganizationID, arg.ID))
}

const publishQueueGetByID = `-- name: PublishQueueGetByID :one
SELECT ` + publishQueueColumns + `
FROM publish_queue
WHERE id = $1`

func (q *Queries) PublishQueueGetByID(ctx context.Context, id uuid.UUID) (PublishQueue, error) {
	return scanPublishQueue(q.db.QueryRow(ctx, publishQueueGetByID, id))
}

const publishQueueList = `-- name: PublishQueueList :many
SELECT ` + publishQueueColumns + `
FROM publish_queue
WHERE organization_id = $1
  AND ($2::text IS NULL OR status = $2::text)
  AND ($3::uuid IS NULL OR product_id = $3::uuid)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`

type PublishQueueListParams struct {
	OrganizationID uuid.UUID      `json:"organization_id"`
	Status         *PublishStatus `json:"status"`
	ProductID      *uuid.UUID     `json:"product_id"`
	Limit          int32          `json:"limit"`
	Offset         int32          `json:"offset"`
}

func (q *Queries) PublishQueueList(ctx context.Context, arg PublishQueueListParams) ([]PublishQueue, error) {
	var status *string
	if arg.Status != nil {
		s := string(*arg.Status)
		status = &s
	}
	return q.queryPublishQueue(ctx, publishQueueList,
		arg.OrganizationID, status, arg.ProductID, arg.Limit, arg.Offset)
}

const publishQueuePickDue = `-- name: PublishQueuePickDue :many
SELECT ` + publishQueueColumns + `
FROM publish_queue
WHERE status = 'pending'
  AND (scheduled_for IS NULL OR scheduled_for <= now())
ORDER BY priority DESC, scheduled_for ASC NULLS FIRST, created_at ASC, id ASC
LIMIT $1`

// PublishQueuePickDue returns pending items that are due, highest priority
// first. It does not claim them.
func (q *Queries) PublishQueuePickDue(ctx context.Context, limit int32) ([]PublishQueue, error) {
	return q.queryPublishQueue(ctx, publishQueuePickDue, limit)
}

const publishQueueMarkProcessing = `-- name: PublishQueueMarkProcessing :one
UPDATE publish_queue
SET status = 'processing',
    claimed_by = $2,
    processing_started_at = now(),
    updated_at = now()
WHERE id = $1 AND status = 'pending'
RETURNING processing_started_at`

type PublishQueueMarkProcessingParams struct {
	ID        uuid.UUID `json:"id"`
	ClaimedBy int64     `json:"claimed_by"`
}

// PublishQueueMarkProcessing claims a pending item and returns the claim's
// start time. pgx.ErrNoRows means the item was not pending.
func (q *Queries) PublishQueueMarkProcessing(ctx context.Context, arg PublishQueueMarkProcessingParams) (time.Time, error) {
	var startedAt time.Time
	err := q.db.QueryRow(ctx, publishQueueMarkProcessing, arg.ID, arg.ClaimedBy).Scan(&startedAt)
	return startedAt, err
}

const publishQueueMarkCompleted = `-- name: PublishQueueMarkCompleted :execrows
UPDATE publish_queue
SET status = 'published',
    published_url = $2,
    published_post_id = $3,
    published_data = $4,
    last_error = NULL,
    last_error_type = NULL,
    claimed_by = NULL,
    processing_started_at = NULL,
    updated_at = now()
WHERE id = $1 AND status = 'processing'
  AND ($5::bigint IS NULL OR (claimed_by = $5 AND processing_started_at = $6))`

// PublishQueueMarkCompletedParams fences on the claim when ClaimedBy is
// set; a nil ClaimedBy completes whoever holds the item.
type PublishQueueMarkCompletedParams struct {
	ID              uuid.UUID       `json:"id"`
	PublishedUrl    *string         `json:"published_url"`
	PublishedPostID *string         `json:"published_post_id"`
	PublishedData   json.RawMessage `json:"published_data"`
	ClaimedBy       *int64          `json:"claimed_by"`
	ClaimStartedAt  *time.Time      `json:"claim_started_at"`
}

func (q *Queries) PublishQueueMarkCompleted(ctx context.Context, arg PublishQueueMarkCompletedParams) (int64, error) {
	result, err := q.db.Exec(ctx, publishQueueMarkCompleted,
		arg.ID, arg.PublishedUrl, arg.PublishedPostID, arg.PublishedData,
		arg.ClaimedBy, arg.ClaimStartedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// The SET list reads the pre-update attempt_count, so attempt_count + 1 is
// the number of attempts including the one that just failed.
const publishQueueMarkFailed = `-- name: PublishQueueMarkFailed :one
UPDATE publish_queue
SET attempt_count = LEAST(attempt_count + 1, max_attempts),
    status = CASE WHEN attempt_count + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
    scheduled_for = CASE
      WHEN attempt_count + 1 >= max_attempts THEN scheduled_for
      ELSE now() + make_interval(secs => LEAST($4::float8 * power(2::float8, attempt_count + 1), $5::float8))
    END,
    last_error = $2,
    last_error_type = $3,
    claimed_by = NULL,
    processing_started_at = NULL,
    updated_at = now()
WHERE id = $1 AND status = 'processing'
  AND ($6::bigint IS NULL OR (claimed_by = $6 AND processing_started_at = $7))
RETURNING ` + publishQueueColumns

type PublishQueueMarkFailedParams struct {
	ID                 uuid.UUID  `json:"id"`
	LastError          string     `json:"last_error"`
	LastErrorType      string     `json:"last_error_type"`
	BackoffBaseSeconds float64    `json:"backoff_base_seconds"`
	BackoffMaxSeconds  float64    `json:"backoff_max_seconds"`
	ClaimedBy          *int64     `json:"claimed_by"`
	ClaimStartedAt     *time.Time `json:"claim_started_at"`
}

func (q *Queries) PublishQueueMarkFailed(ctx context.Context, arg PublishQueueMarkFailedParams) (PublishQueue, error) {
	row := q.db.QueryRow(ctx, publishQueueMarkFailed,
		arg.ID,
		arg.LastError,
		arg.LastErrorType,
		arg.BackoffBaseSeconds,
		arg.BackoffMaxSeconds,
		arg.ClaimedBy,
		arg.ClaimStartedAt,
	)
	return scanPublishQueue(row)
}

const publishQueueRelease = `-- name: PublishQueueRelease :execrows
UPDATE publish_queue
SET status = 'pending',
    claimed_by = NULL,
    processing_started_at = NULL,
    updated_at = now()
WHERE id = $1 AND status = 'processing'
  AND claimed_by = $2 AND processing_started_at = $3`

type PublishQueueReleaseParams struct {
	ID             uuid.UUID `json:"id"`
	ClaimedBy      int64     `json:"claimed_by"`
	ClaimStartedAt time.Time `json:"claim_started_at"`
}

// PublishQueueRelease hands an unattempted claim back to pending without
// charging an attempt.
func (q *Queries) PublishQueueRelease(ctx context.Context, arg PublishQueueReleaseParams) (int64, error) {
	result, err := q.db.Exec(ctx, publishQueueRelease, arg.ID, arg.ClaimedBy, arg.ClaimStartedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const publishQueueCancel = `-- name: PublishQueueCancel :execrows
UPDATE publish_queue
SET status = 'cancelled',
    updated_at = now()
WHERE organization_id = $1 AND id = $2 AND status = 'pending'`

type PublishQueueCancelParams struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ID             uuid.UUID `json:"id"`
}

func (q *Queries) PublishQueueCancel(ctx context.Context, arg PublishQueueCancelParams) (int64, error) {
	result, err := q.db.Exec(ctx, publishQueueCancel, arg.OrganizationID, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const publishQueueRetry = `-- name: PublishQueueRetry :execrows
UPDATE publish_queue
SET status = 'pending',
    scheduled_for = NULL,
    claimed_by = NULL,
    processing_started_at = NULL,
    updated_at = now()
WHERE organization_id = $1 AND id = $2 AND status = 'failed'`

type PublishQueueRetryParams struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ID             uuid.UUID `json:"id"`
}

func (q *Queries) PublishQueueRetry(ctx context.Context, arg PublishQueueRetryParams) (int64, error) {
	result, err := q.db.Exec(ctx, publishQueueRetry, arg.OrganizationID, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const publishQueueStats = `-- name: PublishQueueStats :many
SELECT status, count(*)::bigint AS count
FROM publish_queue
WHERE organization_id = $1
  AND ($2::uuid IS NULL OR product_id = $2::uuid)
GROUP BY status`

type PublishQueueStatsParams struct {
	OrganizationID uuid.UUID  `json:"organization_id"`
	ProductID      *uuid.UUID `json:"product_id"`
}

type PublishQueueStatsRow struct {
	Status PublishStatus `json:"status"`
	Count  int64         `json:"count"`
}

func (q *Queries) PublishQueueStats(ctx context.Context, arg PublishQueueStatsParams) ([]PublishQueueStatsRow, error) {
	rows, err := q.db.Query(ctx, publishQueueStats, arg.OrganizationID, arg.ProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PublishQueueStatsRow
	for rows.Next() {
		var i PublishQueueStatsRow
		if err := rows.Scan(&i.Status, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const publishQueueReclaimStale = `-- name: PublishQueueReclaimStale :many
UPDATE publish_queue
SET status = 'pending',
    claimed_by = NULL,
    processing_started_at = NULL,
    last_error = $2,
    last_error_type = 'stale_claim',
    updated_at = now()
WHERE status = 'processing' AND processing_started_at < $1
RETURNING id, organization_id, article_id, platform`

type PublishQueueReclaimStaleParams struct {
	StartedBefore time.Time `json:"started_before"`
	LastError     string    `json:"last_error"`
}

type PublishQueueReclaimStaleRow struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	ArticleID      uuid.UUID `json:"article_id"`
	Platform       string    `json:"platform"`
}

// PublishQueueReclaimStale returns processing items claimed before
// StartedBefore to pending. attempt_count is left untouched.
func (q *Queries) PublishQueueReclaimStale(ctx context.Context, arg PublishQueueReclaimStaleParams) ([]PublishQueueReclaimStaleRow, error) {
	rows, err := q.db.Query(ctx, publishQueueReclaimStale, arg.StartedBefore, arg.LastError)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PublishQueueReclaimStaleRow
	for rows.Next() {
		var i PublishQueueReclaimStaleRow
		if err := rows.Scan(&i.ID, &i.OrganizationID, &i.ArticleID, &i.Platform); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
