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

	"github.com/google/uuid"
)

const webhookColumns = `id, organization_id, url, secret, event_types, status, description,
  created_at, updated_at, deleted_at`

func scanWebhook(row interface{ Scan(...any) error }) (Webhook, error) {
	var i Webhook
	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.Url,
		&i.Secret,
		&i.EventTypes,
		&i.Status,
		&i.Description,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.DeletedAt,
	)
	return i, err
}

func (q *Queries) queryWebhooks(ctx context.Context, sql string, args ...any) ([]Webhook, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Webhook
	for rows.Next() {
		i, err := scanWebhook(rows)
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

const webhookInsert = `-- name: WebhookInsert :one
INSERT INTO webhooks (organization_id, url, secret, event_types, description)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + webhookColumns

type WebhookInsertParams struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Url            string    `json:"url"`
	Secret         string    `json:"secret"`
	EventTypes     []string  `json:"event_types"`
	Description    *string   `json:"description"`
}

func (q *Queries) WebhookInsert(ctx context.Context, arg WebhookInsertParams) (Webhook, error) {
	row := q.db.QueryRow(ctx, webhookInsert,
		arg.OrganizationID, arg.Url, arg.Secret, arg.EventTypes, arg.Description)
	return scanWebhook(row)
}

const webhookGet = `-- name: WebhookGet :one
SELECT ` + webhookColumns + `
FROM webhooks
WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`

type WebhookGetParams struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ID             uuid.UUID `json:"id"`
}

func (q *Queries) WebhookGet(ctx context.Context, arg WebhookGetParams) (Webhook, error) {
	return scanWebhook(q.db.QueryRow(ctx, webhookGet, arg.OrganizationID, arg.ID))
}

const webhookList = `-- name: WebhookList :many
SELECT ` + webhookColumns + `
FROM webhooks
WHERE organization_id = $1 AND deleted_at IS NULL
ORDER BY created_at ASC, id ASC`

func (q *Queries) WebhookList(ctx context.Context, organizationID uuid.UUID) ([]Webhook, error) {
	return q.queryWebhooks(ctx, webhookList, organizationID)
}

const webhookListActiveForEvent = `-- name: WebhookListActiveForEvent :many
SELECT ` + webhookColumns + `
FROM webhooks
WHERE organization_id = $1
  AND deleted_at IS NULL
  AND status = 'active'
  AND $2::text = ANY(event_types)
ORDER BY created_at ASC, id ASC`

type WebhookListActiveForEventParams struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	EventType      string    `json:"event_type"`
}

func (q *Queries) WebhookListActiveForEvent(ctx context.Context, arg WebhookListActiveForEventParams) ([]Webhook, error) {
	return q.queryWebhooks(ctx, webhookListActiveForEvent, arg.OrganizationID, arg.EventType)
}

// A NULL parameter leaves the column unchanged.
const webhookUpdate = `-- name: WebhookUpdate :one
UPDATE webhooks
SET url = COALESCE($3::text, url),
    event_types = COALESCE($4::text[], event_types),
    status = COALESCE($5::text, status),
    description = COALESCE($6::text, description),
    updated_at = now()
WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL
RETURNING ` + webhookColumns

type WebhookUpdateParams struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ID             uuid.UUID `json:"id"`
	Url            *string   `json:"url"`
	EventTypes     []string  `json:"event_types"`
	Status         *string   `json:"status"`
	Description    *string   `json:"description"`
}

func (q *Queries) WebhookUpdate(ctx context.Context, arg WebhookUpdateParams) (Webhook, error) {
	row := q.db.QueryRow(ctx, webhookUpdate,
		arg.OrganizationID,
		arg.ID,
		arg.Url,
		arg.EventTypes,
		arg.Status,
		arg.Description,
	)
	return scanWebhook(row)
}

const webhookSoftDelete = `-- name: WebhookSoftDelete :execrows
UPDATE webhooks
SET deleted_at = now(),
    status = 'disabled',
    updated_at = now()
WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`

type WebhookSoftDeleteParams struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ID             uuid.UUID `json:"id"`
}

func (q *Queries) WebhookSoftDelete(ctx context.Context, arg WebhookSoftDeleteParams) (int64, error) {
	result, err := q.db.Exec(ctx, webhookSoftDelete, arg.OrganizationID, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const webhookUpdateSecret = `-- name: WebhookUpdateSecret :execrows
UPDATE webhooks
SET secret = $3,
    updated_at = now()
WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`

type WebhookUpdateSecretParams struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ID             uuid.UUID `json:"id"`
	Secret         string    `json:"secret"`
}

func (q *Queries) WebhookUpdateSecret(ctx context.Context, arg WebhookUpdateSecretParams) (int64, error) {
	result, err := q.db.Exec(ctx, webhookUpdateSecret, arg.OrganizationID, arg.ID, arg.Secret)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
