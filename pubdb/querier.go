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
	"time"

	"github.com/google/uuid"
)

type Querier interface {
	ApiKeyGetByHash(ctx context.Context, keyHash string) (ApiKey, error)
	ArticleGet(ctx context.Context, arg ArticleGetParams) (Article, error)
	IntegrationGet(ctx context.Context, arg IntegrationGetParams) (Integration, error)
	IntegrationGetActiveForPlatform(ctx context.Context, arg IntegrationGetActiveForPlatformParams) (Integration, error)
	OrganizationMemberRole(ctx context.Context, arg OrganizationMemberRoleParams) (string, error)
	PublishQueueCancel(ctx context.Context, arg PublishQueueCancelParams) (int64, error)
	PublishQueueGet(ctx context.Context, arg PublishQueueGetParams) (PublishQueue, error)
	PublishQueueGetByID(ctx context.Context, id uuid.UUID) (PublishQueue, error)
	PublishQueueInsert(ctx context.Context, arg PublishQueueInsertParams) (PublishQueue, error)
	PublishQueueList(ctx context.Context, arg PublishQueueListParams) ([]PublishQueue, error)
	PublishQueueMarkCompleted(ctx context.Context, arg PublishQueueMarkCompletedParams) (int64, error)
	PublishQueueMarkFailed(ctx context.Context, arg PublishQueueMarkFailedParams) (PublishQueue, error)
	PublishQueueMarkProcessing(ctx context.Context, arg PublishQueueMarkProcessingParams) (time.Time, error)
	PublishQueuePickDue(ctx context.Context, limit int32) ([]PublishQueue, error)
	PublishQueueReclaimStale(ctx context.Context, arg PublishQueueReclaimStaleParams) ([]PublishQueueReclaimStaleRow, error)
	PublishQueueRelease(ctx context.Context, arg PublishQueueReleaseParams) (int64, error)
	PublishQueueRetry(ctx context.Context, arg PublishQueueRetryParams) (int64, error)
	PublishQueueStats(ctx context.Context, arg PublishQueueStatsParams) ([]PublishQueueStatsRow, error)
	WebhookDeliveryCount(ctx context.Context, webhookID uuid.UUID) (int64, error)
	WebhookDeliveryDeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	WebhookDeliveryInsert(ctx context.Context, arg WebhookDeliveryInsertParams) (WebhookDelivery, error)
	WebhookDeliveryList(ctx context.Context, arg WebhookDeliveryListParams) ([]WebhookDelivery, error)
	WebhookGet(ctx context.Context, arg WebhookGetParams) (Webhook, error)
	WebhookInsert(ctx context.Context, arg WebhookInsertParams) (Webhook, error)
	WebhookList(ctx context.Context, organizationID uuid.UUID) ([]Webhook, error)
	WebhookListActiveForEvent(ctx context.Context, arg WebhookListActiveForEventParams) ([]Webhook, error)
	WebhookSoftDelete(ctx context.Context, arg WebhookSoftDeleteParams) (int64, error)
	WebhookUpdate(ctx context.Context, arg WebhookUpdateParams) (Webhook, error)
	WebhookUpdateSecret(ctx context.Context, arg WebhookUpdateSecretParams) (int64, error)
}

var _ Querier = (*Queries)(nil)

// StoreFull is the Querier plus the transactional operations Store adds.
type StoreFull interface {
	Querier
	EnqueueArticle(ctx context.Context, params PublishQueueInsertParams) (PublishQueue, error)
	WebhookDeliveryLogPage(ctx context.Context, arg WebhookDeliveryListParams) ([]WebhookDelivery, int64, error)
}
