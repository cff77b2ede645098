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

const webhookDeliveryInsert = `-- name: WebhookDeliveryInsert :one
INSERT INTO webhook_deliveries (
  webhook_id, event_type, payload, status_code, success, duration_ms, error_message
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, webhook_id, event_type, payload, status_code, success, duration_ms, attempted_at, error_message`

type WebhookDeliveryInsertParams struct {
	WebhookID    uuid.UUID       `json:"webhook_id"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	StatusCode   *int32          `json:"status_code"`
	Success      bool            `json:"success"`
	DurationMs   int32           `json:"duration_ms"`
	ErrorMessage *string         `json:"error_message"`
}

func (q *Queries) WebhookDeliveryInsert(ctx context.Context, arg WebhookDeliveryInsertParams) (WebhookDelivery, error) {
	row := q.db.QueryRow(ctx, webhookDeliveryInsert,
		arg.WebhookID,
		arg.EventType,
		arg.Payload,
		arg.StatusCode,
		arg.Success,
		arg.DurationMs,
		arg.ErrorMessage,
	)
	var i WebhookDelivery
	err := row.Scan(
		&i.ID,
		&i.WebhookID,
		&i.EventType,
		&i.Payload,
		&i.StatusCode,
		&i.Success,
		&i.DurationMs,
		&i.AttemptedAt,
		&i.ErrorMessage,
	)
	return i, err
}

const webhookDeliveryList = `-- name: WebhookDeliveryList :many
SELECT id, webhook_id, event_type, payload, status_code, success, duration_ms, attempted_at, error_message
FROM webhook_deliveries
WHERE webhook_id = $1
ORDER BY attempted_at DESC, id DESC
LIMIT $2 OFFSET $3`

type WebhookDeliveryListParams struct {
	WebhookID uuid.UUID `json:"webhook_id"`
	Limit     int32     `json:"limit"`
	Offset    int32     `json:"offset"`
}

func (q *Queries) WebhookDeliveryList(ctx context.Context, arg WebhookDeliveryListParams) ([]WebhookDelivery, error) {
	rows, err := q.db.Query(ctx, webhookDeliveryList, arg.WebhookID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WebhookDelivery
	for rows.Next() {
		var i WebhookDelivery
		if err := rows.Scan(
			&i.ID,
			&i.WebhookID,
			&i.EventType,
			&i.Payload,
			&i.StatusCode,
			&i.Success,
			&i.DurationMs,
			&i.AttemptedAt,
			&i.ErrorMessage,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const webhookDeliveryCount = `-- name: WebhookDeliveryCount :one
SELECT count(*)::bigint FROM webhook_deliveries WHERE webhook_id = $1`

func (q *Queries) WebhookDeliveryCount(ctx context.Context, webhookID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, webhookDeliveryCount, webhookID).Scan(&count)
	return count, err
}

const webhookDeliveryDeleteBefore = `-- name: WebhookDeliveryDeleteBefore :execrows
DELETE FROM webhook_deliveries WHERE attempted_at < $1`

func (q *Queries) WebhookDeliveryDeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.db.Exec(ctx, webhookDeliveryDeleteBefore, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
