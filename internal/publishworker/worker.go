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

package publishworker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/publishrunner/internal/delivery"
	"github.com/cardinalhq/publishrunner/internal/logctx"
	"github.com/cardinalhq/publishrunner/internal/publishqueue"
	"github.com/cardinalhq/publishrunner/internal/webhooks"
	"github.com/cardinalhq/publishrunner/pubdb"
)

const (
	DefaultBatchSize = 5
	// MaxBatchSize caps one tick so a single call stays short.
	MaxBatchSize = 100

	// recordTimeout bounds the queue update that records an attempt's
	// outcome once the caller's context is gone.
	recordTimeout = 10 * time.Second
)

// Directory reads the articles and integrations a delivery needs.
type Directory interface {
	ArticleGet(ctx context.Context, arg pubdb.ArticleGetParams) (pubdb.Article, error)
	IntegrationGet(ctx context.Context, arg pubdb.IntegrationGetParams) (pubdb.Integration, error)
	IntegrationGetActiveForPlatform(ctx context.Context, arg pubdb.IntegrationGetActiveForPlatformParams) (pubdb.Integration, error)
}

// EventDispatcher fans lifecycle events out to subscribed webhooks.
type EventDispatcher interface {
	Dispatch(ctx context.Context, orgID uuid.UUID, eventType string, payload any) ([]webhooks.DispatchResult, error)
}

// FailedItem describes one attempt that failed during a tick.
type FailedItem struct {
	ID        uuid.UUID `json:"id"`
	Error     string    `json:"error"`
	ErrorType string    `json:"error_type"`
	Terminal  bool      `json:"terminal"`
}

// TickResult summarizes one tick.
type TickResult struct {
	Processed int          `json:"processed"`
	Completed []uuid.UUID  `json:"completed"`
	Failed    []FailedItem `json:"failed"`
}

// Worker claims due queue items and publishes them one at a time.
type Worker struct {
	queue      *publishqueue.Service
	directory  Directory
	publisher  delivery.Publisher
	dispatcher EventDispatcher
	workerID   int64
	batchSize  int32
}

func New(queue *publishqueue.Service, directory Directory, publisher delivery.Publisher,
	dispatcher EventDispatcher, workerID int64, batchSize int32) *Worker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	batchSize = min(batchSize, MaxBatchSize)
	return &Worker{
		queue:      queue,
		directory:  directory,
		publisher:  publisher,
		dispatcher: dispatcher,
		workerID:   workerID,
		batchSize:  batchSize,
	}
}

func (w *Worker) WorkerID() int64 {
	return w.workerID
}

// Tick claims up to the batch size of due items and attempts each. Item
// failures are recorded on the items; the returned error aggregates
// bookkeeping errors and never undoes work already done.
func (w *Worker) Tick(ctx context.Context) (TickResult, error) {
	return w.TickN(ctx, w.batchSize)
}

// TickN is Tick with an explicit batch size, capped at MaxBatchSize.
func (w *Worker) TickN(ctx context.Context, batchSize int32) (TickResult, error) {
	if batchSize <= 0 {
		batchSize = w.batchSize
	}
	batchSize = min(batchSize, MaxBatchSize)
	start := time.Now()
	res := TickResult{Completed: []uuid.UUID{}, Failed: []FailedItem{}}

	var errs *multierror.Error
	items, err := w.queue.ClaimDue(ctx, w.workerID, batchSize)
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	for i, item := range items {
		if ctx.Err() != nil {
			w.release(ctx, items[i:])
			break
		}
		res.Processed++
		if err := w.process(ctx, item, &res); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	recordTick(ctx, res, time.Since(start))
	if res.Processed > 0 {
		logctx.FromContext(ctx).Info("Worker tick finished",
			slog.Int64("worker_id", w.workerID),
			slog.Int("processed", res.Processed),
			slog.Int("completed", len(res.Completed)),
			slog.Int("failed", len(res.Failed)),
			slog.Duration("elapsed", time.Since(start)))
	}
	return res, errs.ErrorOrNil()
}

func (w *Worker) process(ctx context.Context, item pubdb.PublishQueue, res *TickResult) error {
	ctx, logger := logctx.With(ctx,
		slog.String("queue_item_id", item.ID.String()),
		slog.String("organization_id", item.OrganizationID.String()),
		slog.String("platform", item.Platform))

	article, err := w.directory.ArticleGet(ctx, pubdb.ArticleGetParams{
		OrganizationID: item.OrganizationID,
		ID:             item.ArticleID,
	})
	if err != nil {
		if pubdb.IsNoRows(err) {
			return w.fail(ctx, item, article, res, "article no longer exists", delivery.ErrorNotFound)
		}
		if ctx.Err() != nil {
			w.release(ctx, []pubdb.PublishQueue{item})
			return ctx.Err()
		}
		logger.Error("Failed to load article", slog.Any("error", err))
		return w.fail(ctx, item, article, res, "loading article: "+err.Error(), delivery.ErrorInternal)
	}

	integration, err := w.integrationFor(ctx, item)
	if err != nil {
		if pubdb.IsNoRows(err) {
			return w.fail(ctx, item, article, res, noIntegrationMessage(item), delivery.ErrorConfiguration)
		}
		if ctx.Err() != nil {
			w.release(ctx, []pubdb.PublishQueue{item})
			return ctx.Err()
		}
		logger.Error("Failed to load integration", slog.Any("error", err))
		return w.fail(ctx, item, article, res, "loading integration: "+err.Error(), delivery.ErrorInternal)
	}

	out := w.publisher.Publish(ctx, delivery.Request{
		QueueItemID: item.ID,
		Platform:    item.Platform,
		Article:     article,
		Integration: &integration,
	})
	if !out.Success {
		return w.fail(ctx, item, article, res, out.Error, out.ErrorType)
	}

	recordCtx, cancel := detached(ctx)
	defer cancel()
	if err := w.queue.CompleteClaim(recordCtx, claimOf(item), publishqueue.CompletionResult{
		PublishedURL:    out.PublishedURL,
		PublishedPostID: out.PublishedPostID,
		PublishedData:   out.PublishedData,
	}); err != nil {
		return fmt.Errorf("recording success of %s: %w", item.ID, err)
	}
	res.Completed = append(res.Completed, item.ID)

	now := time.Now()
	w.dispatch(ctx, item.OrganizationID, webhooks.EventArticlePublished, webhooks.ArticleEvent{
		ArticleID:    article.ID.String(),
		Title:        article.Title,
		Slug:         article.Slug,
		Status:       string(pubdb.PublishStatusPublished),
		PublishedAt:  &now,
		Platform:     item.Platform,
		PublishedURL: out.PublishedURL,
		QueueItemID:  item.ID.String(),
	})
	return nil
}

// fail records a failed attempt and, when it was the last one, tells the
// organization's webhooks.
func (w *Worker) fail(ctx context.Context, item pubdb.PublishQueue, article pubdb.Article,
	res *TickResult, message string, errorType delivery.ErrorType) error {
	recordCtx, cancel := detached(ctx)
	defer cancel()
	updated, err := w.queue.FailClaim(recordCtx, claimOf(item), message, string(errorType))
	if err != nil {
		return fmt.Errorf("recording failure of %s: %w", item.ID, err)
	}
	terminal := updated.Status == pubdb.PublishStatusFailed
	res.Failed = append(res.Failed, FailedItem{
		ID:        item.ID,
		Error:     message,
		ErrorType: string(errorType),
		Terminal:  terminal,
	})
	if !terminal {
		return nil
	}

	w.dispatch(ctx, item.OrganizationID, webhooks.EventArticlePublishFailed, webhooks.ArticleEvent{
		ArticleID:   item.ArticleID.String(),
		Title:       article.Title,
		Slug:        article.Slug,
		Status:      string(pubdb.PublishStatusFailed),
		PublishedAt: article.PublishedAt,
		Platform:    item.Platform,
		QueueItemID: item.ID.String(),
		Error:       message,
		ErrorType:   string(errorType),
	})
	return nil
}

// integrationFor returns the item's integration, or the organization's
// active integration for the platform when the item names none.
func (w *Worker) integrationFor(ctx context.Context, item pubdb.PublishQueue) (pubdb.Integration, error) {
	if item.IntegrationID != nil {
		return w.directory.IntegrationGet(ctx, pubdb.IntegrationGetParams{
			OrganizationID: item.OrganizationID,
			ID:             *item.IntegrationID,
		})
	}
	return w.directory.IntegrationGetActiveForPlatform(ctx, pubdb.IntegrationGetActiveForPlatformParams{
		OrganizationID: item.OrganizationID,
		Platform:       item.Platform,
	})
}

func noIntegrationMessage(item pubdb.PublishQueue) string {
	if item.IntegrationID != nil {
		return "integration no longer exists"
	}
	return "no active " + item.Platform + " integration for the organization"
}

// release hands claims that were never attempted back to pending.
func (w *Worker) release(ctx context.Context, items []pubdb.PublishQueue) {
	recordCtx, cancel := detached(ctx)
	defer cancel()
	logger := logctx.FromContext(ctx)
	for _, item := range items {
		if _, err := w.queue.Release(recordCtx, claimOf(item)); err != nil {
			logger.Warn("Failed to release claim", slog.String("queue_item_id", item.ID.String()), slog.Any("error", err))
		}
	}
}

// claimOf returns the claim ClaimDue recorded on item. Items handed in
// without one get a claim that matches nothing.
func claimOf(item pubdb.PublishQueue) publishqueue.Claim {
	c, ok := publishqueue.ClaimOf(item)
	if !ok {
		return publishqueue.Claim{ItemID: item.ID}
	}
	return c
}

// detached keeps ctx's values without its cancellation so an outcome that
// has already happened is still recorded after the caller goes away.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}

// dispatch notifies webhooks. Failures are logged and never change the
// queue item.
func (w *Worker) dispatch(ctx context.Context, orgID uuid.UUID, eventType string, payload webhooks.ArticleEvent) {
	if w.dispatcher == nil {
		return
	}
	if _, err := w.dispatcher.Dispatch(ctx, orgID, eventType, payload); err != nil {
		logctx.FromContext(ctx).Warn("Failed to dispatch webhook event",
			slog.String("event_type", eventType),
			slog.Any("error", err))
	}
}
