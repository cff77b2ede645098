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

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cardinalhq/publishrunner/config"
	"github.com/cardinalhq/publishrunner/internal/delivery"
	"github.com/cardinalhq/publishrunner/internal/events"
	"github.com/cardinalhq/publishrunner/internal/publishqueue"
	"github.com/cardinalhq/publishrunner/internal/publishworker"
	"github.com/cardinalhq/publishrunner/internal/webhooks"
	"github.com/cardinalhq/publishrunner/pubdb"
)

// services is the object graph every command builds on.
type services struct {
	cfg       *config.Config
	store     *pubdb.Store
	sink      events.Sink
	queue     *publishqueue.Service
	deliverer *webhooks.Deliverer
	worker    *publishworker.Worker
	sweeper   *publishworker.Sweeper
}

func newServices(ctx context.Context) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := pubdb.PubDBStore(ctx)
	if err != nil {
		slog.Error("Failed to connect to pubdb", slog.Any("error", err))
		return nil, fmt.Errorf("failed to connect to pubdb: %w", err)
	}

	sink, err := events.New(cfg.Events)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create event sink: %w", err)
	}

	queue := publishqueue.NewService(store,
		publishqueue.WithEvents(sink),
		publishqueue.WithBackoff(cfg.Worker.Backoff),
		publishqueue.WithMaxAttempts(cfg.Worker.MaxAttempts),
	)
	deliverer := webhooks.NewDeliverer(store, cfg.Delivery.WebhookTimeout, "")
	executor := delivery.NewExecutor(cfg.Delivery.CMSTimeout, cfg.Delivery.UserAgent)
	worker := publishworker.New(queue, store, executor,
		webhooks.NewDispatcher(store, deliverer), myInstanceID, cfg.Worker.BatchSize)

	return &services{
		cfg:       cfg,
		store:     store,
		sink:      sink,
		queue:     queue,
		deliverer: deliverer,
		worker:    worker,
		sweeper:   publishworker.NewSweeper(queue, store, cfg.SweeperSettings()),
	}, nil
}

func (s *services) Close() {
	if err := s.sink.Close(); err != nil {
		slog.Error("Failed to close event sink", slog.Any("error", err))
	}
	s.store.Close()
}
