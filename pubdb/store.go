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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrArticleMissing is returned by EnqueueArticle when the article does
	// not exist in the organization.
	ErrArticleMissing = errors.New("article not found")
	// ErrIntegrationMissing is returned by EnqueueArticle when the referenced
	// integration does not exist in the organization.
	ErrIntegrationMissing = errors.New("integration not found")
	// ErrIntegrationPlatform is returned when the integration belongs to a
	// different platform than the queue item.
	ErrIntegrationPlatform = errors.New("integration platform mismatch")
)

// Store provides all functions to execute db queries and transactions
type Store struct {
	*Queries
	connPool *pgxpool.Pool
}

var _ StoreFull = (*Store)(nil)

// NewStore creates a new Store
func NewStore(connPool *pgxpool.Pool) *Store {
	return &Store{
		connPool: connPool,
		Queries:  New(connPool),
	}
}

func (store *Store) Pool() *pgxpool.Pool {
	return store.connPool
}

func (store *Store) Close() {
	if store.connPool != nil {
		store.connPool.Close()
	}
}

// EnqueueArticle validates the article and optional integration and inserts
// the queue item in one transaction.
func (store *Store) EnqueueArticle(ctx context.Context, params PublishQueueInsertParams) (PublishQueue, error) {
	var item PublishQueue
	err := store.execTx(ctx, func(s *Store) error {
		if _, err := s.ArticleGet(ctx, ArticleGetParams{
			OrganizationID: params.OrganizationID,
			ID:             params.ArticleID,
		}); err != nil {
			if IsNoRows(err) {
				return ErrArticleMissing
			}
			return fmt.Errorf("failed to load article: %w", err)
		}

		if params.IntegrationID != nil {
			integration, err := s.IntegrationGet(ctx, IntegrationGetParams{
				OrganizationID: params.OrganizationID,
				ID:             *params.IntegrationID,
			})
			if err != nil {
				if IsNoRows(err) {
					return ErrIntegrationMissing
				}
				return fmt.Errorf("failed to load integration: %w", err)
			}
			if integration.Platform != params.Platform {
				return ErrIntegrationPlatform
			}
		}

		var err error
		item, err = s.PublishQueueInsert(ctx, params)
		return err
	})
	return item, err
}

// WebhookDeliveryLogPage returns one page of delivery logs and the total
// count from the same snapshot.
func (store *Store) WebhookDeliveryLogPage(ctx context.Context, arg WebhookDeliveryListParams) ([]WebhookDelivery, int64, error) {
	var (
		entries []WebhookDelivery
		total   int64
	)
	err := store.execTx(ctx, func(s *Store) error {
		var err error
		if entries, err = s.WebhookDeliveryList(ctx, arg); err != nil {
			return fmt.Errorf("failed to list deliveries: %w", err)
		}
		if total, err = s.WebhookDeliveryCount(ctx, arg.WebhookID); err != nil {
			return fmt.Errorf("failed to count deliveries: %w", err)
		}
		return nil
	})
	return entries, total, err
}

func (store *Store) execTx(ctx context.Context, fn func(*Store) error) (err error) {
	tx, err := store.connPool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Never use the caller ctx for cleanup as it may be cancelled.
		rbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
	}()

	txStore := &Store{
		connPool: store.connPool,
		Queries:  New(tx),
	}

	if err = fn(txStore); err != nil {
		return err
	}

	commitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = tx.Commit(commitCtx); err != nil {
		return err
	}
	committed = true
	return nil
}
