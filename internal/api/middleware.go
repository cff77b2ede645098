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

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/cardinalhq/publishrunner/internal/apiauth"
	"github.com/cardinalhq/publishrunner/internal/apperr"
	"github.com/cardinalhq/publishrunner/internal/idgen"
	"github.com/cardinalhq/publishrunner/internal/logctx"
)

const HeaderRequestID = "X-Request-Id"

type callerKey struct{}

// caller is the authenticated principal acting on one organization.
type caller struct {
	principal apiauth.Principal
	orgID     uuid.UUID
	role      apiauth.Role
}

func callerFrom(ctx context.Context) caller {
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

// requestContext assigns a request id and a request-scoped logger.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" || len(reqID) > 64 {
			reqID = idgen.NewRequestID()
		}
		w.Header().Set(HeaderRequestID, reqID)
		ctx, _ := logctx.With(r.Context(),
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// member authenticates the caller and requires membership in {orgID}.
func (s *Server) member(next http.HandlerFunc) http.HandlerFunc {
	return s.withCaller(func(apiauth.Role) bool { return true }, next)
}

// manager additionally requires an owner or admin role.
func (s *Server) manager(next http.HandlerFunc) http.HandlerFunc {
	return s.withCaller(apiauth.Role.CanManage, next)
}

func (s *Server) withCaller(allowed func(apiauth.Role) bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p, err := s.auth.Authenticate(r)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		orgID, err := pathUUID(r, "orgID")
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		role, err := s.auth.Authorize(ctx, p, orgID)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		if !allowed(role) {
			writeError(ctx, w, apperr.Forbiddenf("requires owner or admin role"))
			return
		}

		ctx, _ = logctx.With(ctx,
			slog.String("organization_id", orgID.String()),
			slog.String("user_id", p.UserID))
		ctx = context.WithValue(ctx, callerKey{}, caller{principal: p, orgID: orgID, role: role})
		next(w, r.WithContext(ctx))
	}
}
