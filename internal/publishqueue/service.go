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

package publishqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/publishrunner/internal/apperr"
	"github.com/cardinalhq/publishrunner/internal/delivery"
	"github.com/cardinalhq/publishrunner/internal/events"
	"github.com/cardinalhq/publishrunner/internal/helpers"
	"github.com/cardinalhq/publishrunner/internal/logctx"
	"github.com/cardinalhq/publishrunner/pubdb"
)

const (
	DefaultMaxAttempts = 3
	DefaultListLimit   = 50
	MaxListLimit       = 100

	staleClaimError = "claim expired before the attempt finished"
)

func init() {
	apperr.RegisterValidation("publish_platform", func(fl validator.FieldLevel) bool {
		return delivery.IsSupportedPlatform(fl.Field().String())
	})
}

// Store is the persistence the queue service needs. *pubdb.Store
// satisfies it.
type Store interface {
	EnqueueArticle(ctx context.Context, params pubdb.PublishQueueInsertParams) (pubdb.PublishQueue, error)
	PublishQueueGet(ctx context.Context, arg pubdb.PublishQueueGetParams) (pubdb.PublishQueue, error)
	PublishQueueGetByID(ctx context.Context, id uuid.UUID) (pubdb.PublishQueue, error)
	PublishQueueList(ctx context.Context, arg pubdb.PublishQueueListParams) ([]pubdb.PublishQueue, error)
	PublishQueuePickDue(ctx context.Context, limit int32) ([]pubdb.PublishQueue, error)
	PublishQueueMarkProcessing(ctx context.Context, arg pubdb.PublishQueueMarkProcessingParams) (time.Time, error)
	PublishQueueMarkCompleted(ctx context.Context, arg pubdb.PublishQueueMarkCompletedParams) (int64, error)
	PublishQueueMarkFailed(ctx context.Context, arg pubdb.PublishQueueMarkFailedParams) (pubdb.PublishQueue, error)
	PublishQueueCancel(ctx context.Context, arg pubdb.PublishQueueCancelParams) (int64, error)
	PublishQueueRetry(ctx context.Context, arg pubdb.PublishQueueRetryParams) (int64, error)
	PublishQueueStats(ctx context.Context, arg pubdb.PublishQueueStatsParams) ([]pubdb.PublishQueueStatsRow, error)
	PublishQueueReclaimStale(ctx context.Context, arg pubdb.PublishQueueReclaimStaleParams) ([]pubdb.PublishQueueReclaimStaleRow, error)
	PublishQueueRelease(ctx context.Context, arg pubdb.PublishQueueReleaseParams) (int64, error)
}

var _ Store = (*pubdb.Store)(nil)

// Service owns the queue item state machine:
//
//	pending -> processing -> published
//	                      -> pending (retry scheduled) | failed
//	pending -> cancelled
//	failed  -> pending (manual retry)
//
// Every transition is one conditional UPDATE.
type Service struct {
	store       Store
	sink        events.Sink
	backoff     Backoff
	maxAttempts int32
	now         func() time.Time
}

type Option func(*Service)

func WithEvents(sink events.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithBackoff(b Backoff) Option {
	return func(s *Service) { s.backoff = b }
}

// WithMaxAttempts sets the attempt ceiling for items enqueued without one.
func WithMaxAttempts(n int32) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		sink:        events.NoopSink{},
		backoff:     DefaultBackoff(),
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Backoff() Backoff {
	return s.backoff
}

type EnqueueParams struct {
	OrganizationID uuid.UUID  `json:"-" validate:"required"`
	ArticleID      uuid.UUID  `json:"article_id" validate:"required"`
	Platform       string     `json:"platform" validate:"required,publish_platform"`
	IntegrationID  *uuid.UUID `json:"integration_id"`
	ProductID      *uuid.UUID `json:"product_id"`
	Priority       int32      `json:"priority" validate:"min=-1000,max=1000"`
	ScheduledFor   *time.Time `json:"scheduled_for"`
	MaxAttempts    int32      `json:"max_attempts" validate:"min=0,max=10"`
}

// Enqueue creates a pending item. The article must exist in the
// organization and no other pending or processing item may exist for the
// same article and platform.
func (s *Service) Enqueue(ctx context.Context, p EnqueueParams) (pubdb.PublishQueue, error) {
	if err := apperr.Validate(p); err != nil {
		return pubdb.PublishQueue{}, err
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = s.maxAttempts
	}

	item, err := s.store.EnqueueArticle(ctx, pubdb.PublishQueueInsertParams{
		OrganizationID: p.OrganizationID,
		ArticleID:      p.ArticleID,
		Platform:       p.Platform,
		IntegrationID:  p.IntegrationID,
		ProductID:      p.ProductID,
		Priority:       p.Priority,
		ScheduledFor:   p.ScheduledFor,
		MaxAttempts:    maxAttempts,
	})
	switch {
	case err == nil:
	case errors.Is(err, pubdb.ErrArticleMissing):
		return pubdb.PublishQueue{}, apperr.NotFoundf("article %s", p.ArticleID)
	case errors.Is(err, pubdb.ErrIntegrationMissing):
		return pubdb.PublishQueue{}, apperr.NotFoundf("integration %s", p.IntegrationID)
	case errors.Is(err, pubdb.ErrIntegrationPlatform):
		return pubdb.PublishQueue{}, apperr.Validationf("integration %s is not a %s integration", p.IntegrationID, p.Platform)
	case pubdb.IsUniqueViolation(err):
		return pubdb.PublishQueue{}, fmt.Errorf("%w: article %s already has an active %s queue item",
			apperr.ErrConflict, p.ArticleID, p.Platform)
	default:
		return pubdb.PublishQueue{}, fmt.Errorf("enqueueing article: %w", err)
	}

	enqueuedCounter.Add(ctx, 1, platformAttr(item.Platform))
	s.emit(ctx, events.TypeEnqueued, item)
	logctx.FromContext(ctx).Info("Enqueued article",
		slog.String("queue_item_id", item.ID.String()),
		slog.String("article_id", item.ArticleID.String()),
		slog.String("platform", item.Platform))
	return item, nil
}

func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (pubdb.PublishQueue, error) {
	item, err := s.store.PublishQueueGet(ctx, pubdb.PublishQueueGetParams{OrganizationID: orgID, ID: id})
	if err != nil {
		return pubdb.PublishQueue{}, apperr.FromDB(err, "queue item")
	}
	return item, nil
}

type ListParams struct {
	OrganizationID uuid.UUID
	Status         *pubdb.PublishStatus
	ProductID      *uuid.UUID
	Limit          int32
	Offset         int32
}

// ListResult is one page of queue items, newest first.
type ListResult struct {
	Items  []pubdb.PublishQueue `json:"items"`
	Limit  int32                `json:"limit"`
	Offset int32                `json:"offset"`
}

func (s *Service) List(ctx context.Context, p ListParams) (ListResult, error) {
	if p.Status != nil && !p.Status.Valid() {
		return ListResult{}, apperr.Validationf("unknown status %q", *p.Status)
	}
	limit := p.Limit
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	offset := max(p.Offset, 0)

	items, err := s.store.PublishQueueList(ctx, pubdb.PublishQueueListParams{
		OrganizationID: p.OrganizationID,
		Status:         p.Status,
		ProductID:      p.ProductID,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("listing queue items: %w", err)
	}
	if items == nil {
		items = []pubdb.PublishQueue{}
	}
	return ListResult{Items: items, Limit: limit, Offset: offset}, nil
}

// Cancel moves a pending item to cancelled. It reports false when the item
// exists but is not pending.
func (s *Service) Cancel(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	n, err := s.store.PublishQueueCancel(ctx, pubdb.PublishQueueCancelParams{OrganizationID: orgID, ID: id})
	if err != nil {
		return false, fmt.Errorf("cancelling queue item: %w", err)
	}
	item, err := s.Get(ctx, orgID, id)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	s.emit(ctx, events.TypeCancelled, item)
	return true, nil
}

// Retry moves a failed item back to pending and makes it due now. The
// attempt count is kept, so an exhausted item gets exactly one more attempt.
func (s *Service) Retry(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	n, err := s.store.PublishQueueRetry(ctx, pubdb.PublishQueueRetryParams{OrganizationID: orgID, ID: id})
	if err != nil {
		if pubdb.IsUniqueViolation(err) {
			return false, fmt.Errorf("%w: another item for this article and platform is active",
				apperr.ErrConflict)
		}
		return false, fmt.Errorf("retrying queue item: %w", err)
	}
	item, err := s.Get(ctx, orgID, id)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	s.emit(ctx, events.TypeRequeued, item)
	return true, nil
}

// Claim identifies one hold on a processing item. A worker whose claim was
// reclaimed and handed to someone else can no longer record an outcome.
type Claim struct {
	ItemID    uuid.UUID
	WorkerID  int64
	StartedAt time.Time
}

// ClaimOf returns the claim recorded on a processing item.
func ClaimOf(item pubdb.PublishQueue) (Claim, bool) {
	if item.ClaimedBy == nil || item.ProcessingStartedAt == nil {
		return Claim{}, false
	}
	return Claim{ItemID: item.ID, WorkerID: *item.ClaimedBy, StartedAt: *item.ProcessingStartedAt}, true
}

// MarkProcessing claims a pending item for workerID. False means another
// caller got there first or the item is no longer pending.
func (s *Service) MarkProcessing(ctx context.Context, id uuid.UUID, workerID int64) (bool, error) {
	_, ok, err := s.claim(ctx, id, workerID)
	return ok, err
}

func (s *Service) claim(ctx context.Context, id uuid.UUID, workerID int64) (Claim, bool, error) {
	startedAt, err := s.store.PublishQueueMarkProcessing(ctx, pubdb.PublishQueueMarkProcessingParams{
		ID:        id,
		ClaimedBy: workerID,
	})
	if err != nil {
		if pubdb.IsNoRows(err) {
			return Claim{}, false, nil
		}
		return Claim{}, false, fmt.Errorf("claiming queue item %s: %w", id, err)
	}
	return Claim{ItemID: id, WorkerID: workerID, StartedAt: startedAt}, true, nil
}

// ClaimDue picks up to batchSize due items and claims each one. Only items
// this caller claimed are returned, in pick order, with the claim recorded
// on them. Claim errors are collected and returned next to the items that
// were claimed.
func (s *Service) ClaimDue(ctx context.Context, workerID int64, batchSize int32) ([]pubdb.PublishQueue, error) {
	candidates, err := s.store.PublishQueuePickDue(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("picking due items: %w", err)
	}

	var (
		claimed []pubdb.PublishQueue
		errs    *multierror.Error
	)
	for _, item := range candidates {
		c, ok, err := s.claim(ctx, item.ID, workerID)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		item.Status = pubdb.PublishStatusProcessing
		item.ClaimedBy = &c.WorkerID
		item.ProcessingStartedAt = &c.StartedAt
		claimed = append(claimed, item)

		recordClaimed(ctx, item.Platform)
		s.emitWorker(ctx, events.TypeClaimed, item, workerID)
	}
	return claimed, errs.ErrorOrNil()
}

// Release returns a claimed item that was never attempted to pending
// without charging an attempt. False means the claim is no longer held.
func (s *Service) Release(ctx context.Context, c Claim) (bool, error) {
	n, err := s.store.PublishQueueRelease(ctx, pubdb.PublishQueueReleaseParams{
		ID:             c.ItemID,
		ClaimedBy:      c.WorkerID,
		ClaimStartedAt: c.StartedAt,
	})
	if err != nil {
		return false, fmt.Errorf("releasing queue item %s: %w", c.ItemID, err)
	}
	return n == 1, nil
}

// CompletionResult is what a successful delivery reports back.
type CompletionResult struct {
	PublishedURL    string          `json:"published_url"`
	PublishedPostID string          `json:"published_post_id"`
	PublishedData   json.RawMessage `json:"published_data"`
}

// MarkCompleted moves a processing item to published, whoever holds it.
// Completing an item that is already published is a no-op.
func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID, res CompletionResult) error {
	return s.markCompleted(ctx, id, nil, res)
}

// CompleteClaim is MarkCompleted for the holder of c. It fails with
// ErrInvalidState when the claim has been reclaimed.
func (s *Service) CompleteClaim(ctx context.Context, c Claim, res CompletionResult) error {
	return s.markCompleted(ctx, c.ItemID, &c, res)
}

func (s *Service) markCompleted(ctx context.Context, id uuid.UUID, c *Claim, res CompletionResult) error {
	params := pubdb.PublishQueueMarkCompletedParams{
		ID:              id,
		PublishedUrl:    nonEmpty(res.PublishedURL),
		PublishedPostID: nonEmpty(res.PublishedPostID),
		PublishedData:   res.PublishedData,
	}
	if c != nil {
		params.ClaimedBy, params.ClaimStartedAt = &c.WorkerID, &c.StartedAt
	}
	n, err := s.store.PublishQueueMarkCompleted(ctx, params)
	if err != nil {
		return fmt.Errorf("completing queue item %s: %w", id, err)
	}

	item, err := s.store.PublishQueueGetByID(ctx, id)
	if err != nil {
		return apperr.FromDB(err, "queue item")
	}
	if n == 0 {
		if item.Status == pubdb.PublishStatusPublished {
			return nil
		}
		return notHeld(id, c, item.Status)
	}

	publishedCounter.Add(ctx, 1, platformAttr(item.Platform))
	s.emit(ctx, events.TypePublished, item)
	return nil
}

// MarkFailed records a failed attempt on a processing item, whoever holds
// it. The item goes back to pending after a backoff delay, or to failed
// once the attempt count reaches the ceiling. The updated item is returned.
func (s *Service) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage, errorType string) (pubdb.PublishQueue, error) {
	return s.markFailed(ctx, id, nil, errorMessage, errorType)
}

// FailClaim is MarkFailed for the holder of c. It fails with
// ErrInvalidState when the claim has been reclaimed.
func (s *Service) FailClaim(ctx context.Context, c Claim, errorMessage, errorType string) (pubdb.PublishQueue, error) {
	return s.markFailed(ctx, c.ItemID, &c, errorMessage, errorType)
}

func (s *Service) markFailed(ctx context.Context, id uuid.UUID, c *Claim, errorMessage, errorType string) (pubdb.PublishQueue, error) {
	params := pubdb.PublishQueueMarkFailedParams{
		ID:                 id,
		LastError:          helpers.Truncate(errorMessage, helpers.MaxErrorLength),
		LastErrorType:      errorType,
		BackoffBaseSeconds: s.backoff.baseSeconds(),
		BackoffMaxSeconds:  s.backoff.maxSeconds(),
	}
	if c != nil {
		params.ClaimedBy, params.ClaimStartedAt = &c.WorkerID, &c.StartedAt
	}
	item, err := s.store.PublishQueueMarkFailed(ctx, params)
	if err != nil {
		if !pubdb.IsNoRows(err) {
			return pubdb.PublishQueue{}, fmt.Errorf("failing queue item %s: %w", id, err)
		}
		current, getErr := s.store.PublishQueueGetByID(ctx, id)
		if getErr != nil {
			return pubdb.PublishQueue{}, apperr.FromDB(getErr, "queue item")
		}
		return pubdb.PublishQueue{}, notHeld(id, c, current.Status)
	}

	terminal := item.Status == pubdb.PublishStatusFailed
	failedCounter.Add(ctx, 1, failedAttrs(item.Platform, errorType, terminal))
	if terminal {
		s.emit(ctx, events.TypeFailed, item)
	} else {
		s.emit(ctx, events.TypeRetryScheduled, item)
	}
	return item, nil
}

func notHeld(id uuid.UUID, c *Claim, status pubdb.PublishStatus) error {
	if c != nil && status == pubdb.PublishStatusProcessing {
		return apperr.InvalidStatef("claim on queue item %s by worker %d is no longer held", id, c.WorkerID)
	}
	return apperr.InvalidStatef("queue item %s is %s, not processing", id, status)
}

// Stats counts an organization's items by status. Every status is present.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Published  int64 `json:"published"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
	Total      int64 `json:"total"`
}

func (s *Service) Stats(ctx context.Context, orgID uuid.UUID, productID *uuid.UUID) (Stats, error) {
	rows, err := s.store.PublishQueueStats(ctx, pubdb.PublishQueueStatsParams{
		OrganizationID: orgID,
		ProductID:      productID,
	})
	if err != nil {
		return Stats{}, fmt.Errorf("counting queue items: %w", err)
	}

	var st Stats
	for _, row := range rows {
		switch row.Status {
		case pubdb.PublishStatusPending:
			st.Pending = row.Count
		case pubdb.PublishStatusProcessing:
			st.Processing = row.Count
		case pubdb.PublishStatusPublished:
			st.Published = row.Count
		case pubdb.PublishStatusFailed:
			st.Failed = row.Count
		case pubdb.PublishStatusCancelled:
			st.Cancelled = row.Count
		}
		st.Total += row.Count
	}
	return st, nil
}

// ReclaimStale returns items stuck in processing for longer than
// stuckAfter to pending without charging an attempt.
func (s *Service) ReclaimStale(ctx context.Context, stuckAfter time.Duration) ([]pubdb.PublishQueueReclaimStaleRow, error) {
	rows, err := s.store.PublishQueueReclaimStale(ctx, pubdb.PublishQueueReclaimStaleParams{
		StartedBefore: s.now().Add(-stuckAfter),
		LastError:     staleClaimError,
	})
	if err != nil {
		return nil, fmt.Errorf("reclaiming stale items: %w", err)
	}

	logger := logctx.FromContext(ctx)
	for _, row := range rows {
		logger.Warn("Reclaimed stale queue item",
			slog.String("queue_item_id", row.ID.String()),
			slog.String("platform", row.Platform))
		s.sink.Emit(ctx, events.Event{
			Type:           events.TypeReclaimed,
			QueueItemID:    row.ID,
			OrganizationID: row.OrganizationID,
			ArticleID:      row.ArticleID,
			Platform:       row.Platform,
			Status:         string(pubdb.PublishStatusPending),
			OccurredAt:     s.now(),
		})
	}
	return rows, nil
}

func (s *Service) emit(ctx context.Context, typ events.Type, item pubdb.PublishQueue) {
	s.emitWorker(ctx, typ, item, 0)
}

func (s *Service) emitWorker(ctx context.Context, typ events.Type, item pubdb.PublishQueue, workerID int64) {
	ev := events.Event{
		Type:           typ,
		QueueItemID:    item.ID,
		OrganizationID: item.OrganizationID,
		ArticleID:      item.ArticleID,
		Platform:       item.Platform,
		Status:         string(item.Status),
		AttemptCount:   item.AttemptCount,
		ScheduledFor:   item.ScheduledFor,
		WorkerID:       workerID,
		OccurredAt:     s.now(),
	}
	if item.LastError != nil {
		ev.Error = *item.LastError
	}
	if item.LastErrorType != nil {
		ev.ErrorType = *item.LastErrorType
	}
	s.sink.Emit(ctx, ev)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
