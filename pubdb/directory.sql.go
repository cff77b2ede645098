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

const articleGet = `-- name: ArticleGet :one
SELECT id, organization_id, product_id, title, slug, content, excerpt, status,
  published_at, created_at, updated_at, deleted_at
FROM articles
WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`

type ArticleGetParams struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ID             uuid.UUID `json:"id"`
}

func (q *Queries) ArticleGet(ctx context.Context, arg ArticleGetParams) (Article, error) {
	row := q.db.QueryRow(ctx, articleGet, arg.OrganizationID, arg.ID)
	var i Article
	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.ProductID,
		&i.Title,
		&i.Slug,
		&i.Content,
		&i.Excerpt,
		&i.Status,
		&i.PublishedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.DeletedAt,
	)
	return i, err
}

const integrationGet = `-- name: IntegrationGet :one
SELECT id, organization_id, platform, name, config, status, created_at, updated_at, deleted_at
FROM integrations
WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`

type IntegrationGetParams struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ID             uuid.UUID `json:"id"`
}

func (q *Queries) IntegrationGet(ctx context.Context, arg IntegrationGetParams) (Integration, error) {
	row := q.db.QueryRow(ctx, integrationGet, arg.OrganizationID, arg.ID)
	var i Integration
	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.Platform,
		&i.Name,
		&i.Config,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.DeletedAt,
	)
	return i, err
}

const integrationGetActiveForPlatform = `-- name: IntegrationGetActiveForPlatform :one
SELECT id, organization_id, platform, name, config, status, created_at, updated_at, deleted_at
FROM integrations
WHERE organization_id = $1 AND platform = $2 AND status = 'active' AND deleted_at IS NULL
ORDER BY created_at ASC, id ASC
LIMIT 1`

type IntegrationGetActiveForPlatformParams struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Platform       string    `json:"platform"`
}

// IntegrationGetActiveForPlatform returns the organization's oldest active
// integration for a platform.
func (q *Queries) IntegrationGetActiveForPlatform(ctx context.Context, arg IntegrationGetActiveForPlatformParams) (Integration, error) {
	row := q.db.QueryRow(ctx, integrationGetActiveForPlatform, arg.OrganizationID, arg.Platform)
	var i Integration
	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.Platform,
		&i.Name,
		&i.Config,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.DeletedAt,
	)
	return i, err
}

const organizationMemberRole = `-- name: OrganizationMemberRole :one
SELECT role FROM organization_members
WHERE organization_id = $1 AND user_id = $2`

type OrganizationMemberRoleParams struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	UserID         string    `json:"user_id"`
}

func (q *Queries) OrganizationMemberRole(ctx context.Context, arg OrganizationMemberRoleParams) (string, error) {
	var role string
	err := q.db.QueryRow(ctx, organizationMemberRole, arg.OrganizationID, arg.UserID).Scan(&role)
	return role, err
}

const apiKeyGetByHash = `-- name: ApiKeyGetByHash :one
SELECT id, user_id, name, key_hash, created_at
FROM api_keys
WHERE key_hash = $1`

func (q *Queries) ApiKeyGetByHash(ctx context.Context, keyHash string) (ApiKey, error) {
	var i ApiKey
	err := q.db.QueryRow(ctx, apiKeyGetByHash, keyHash).Scan(
		&i.ID,
		&i.UserID,
		&i.Name,
		&i.KeyHash,
		&i.CreatedAt,
	)
	return i, err
}
