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

// Package api is the HTTP surface of the publishing queue and webhook
// management.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cardinalhq/publishrunner/internal/apiauth"
	"github.com/cardinalhq/publishrunner/internal/publishqueue"
	"github.com/cardinalhq/publishrunner/internal/publishworker"
	"github.com/cardinalhq/publishrunner/internal/webhooks"
)

// Authenticator identifies callers and resolves their organization role.
type Authenticator interface {
	Authenticate(r *http.Request) (apiauth.Principal, error)
	Authorize(ctx context.Context, p apiauth.Principal, orgID uuid.UUID) (apiauth.Role, error)
}

// Ticker runs one worker pass.
type Ticker interface {
	TickN(ctx context.Context, batchSize int32) (publishworker.TickResult, error)
}

type Config struct {
	ListenAddr string
	// WorkerSecret guards the tick endpoint. Empty disables it.
	WorkerSecret string
}

type Server struct {
	cfg    Config
	queue  *publishqueue.Service
	hooks  *webhooks.Service
	auth   Authenticator
	ticker Ticker
}

func NewServer(cfg Config, queue *publishqueue.Service, hooks *webhooks.Service, auth Authenticator, ticker Ticker) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	return &Server{cfg: cfg, queue: queue, hooks: hooks, auth: auth, ticker: ticker}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	const queue = "/api/v1/organizations/{orgID}/publish-queue"
	mux.HandleFunc("POST "+queue, s.member(s.handleEnqueue))
	mux.HandleFunc("GET "+queue, s.member(s.handleListQueue))
	mux.HandleFunc("GET "+queue+"/stats", s.member(s.handleQueueStats))
	mux.HandleFunc("GET "+queue+"/{id}", s.member(s.handleGetQueueItem))
	mux.HandleFunc("POST "+queue+"/{id}/cancel", s.member(s.handleCancel))
	mux.HandleFunc("POST "+queue+"/{id}/retry", s.member(s.handleRetry))
	mux.HandleFunc("POST "+queue+"/{id}/complete", s.member(s.handleComplete))
	mux.HandleFunc("POST "+queue+"/{id}/fail", s.member(s.handleFail))

	mux.HandleFunc("POST /api/v1/worker/tick", s.handleTick)

	const hooks = "/api/v1/organizations/{orgID}/webhooks"
	mux.HandleFunc("GET "+hooks, s.member(s.handleListWebhooks))
	mux.HandleFunc("POST "+hooks, s.manager(s.handleCreateWebhook))
	mux.HandleFunc("GET "+hooks+"/{id}", s.member(s.handleGetWebhook))
	mux.HandleFunc("PATCH "+hooks+"/{id}", s.manager(s.handleUpdateWebhook))
	mux.HandleFunc("DELETE "+hooks+"/{id}", s.manager(s.handleDeleteWebhook))
	mux.HandleFunc("POST "+hooks+"/{id}/regenerate-secret", s.manager(s.handleRegenerateSecret))
	mux.HandleFunc("POST "+hooks+"/{id}/test", s.member(s.handleTestWebhook))
	mux.HandleFunc("GET "+hooks+"/{id}/deliveries", s.member(s.handleWebhookDeliveries))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return otelhttp.NewHandler(requestContext(mux), "publishrunner-api",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/healthz" }))
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", slog.String("addr", s.cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	}

	slog.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}
