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
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/cardinalhq/publishrunner/internal/apperr"
	"github.com/cardinalhq/publishrunner/internal/logctx"
	"github.com/cardinalhq/publishrunner/internal/publishworker"
)

const HeaderWorkerSecret = "X-Worker-Secret"

// handleTick runs one worker pass for an external scheduler. The batch is
// capped at publishworker.MaxBatchSize. Per-item bookkeeping errors are
// logged; the result is always returned. Outcomes of attempts already made
// are recorded even if the caller disconnects.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.ticker == nil || s.cfg.WorkerSecret == "" {
		writeError(ctx, w, apperr.ErrUnauthorized)
		return
	}
	got := r.Header.Get(HeaderWorkerSecret)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.WorkerSecret)) != 1 {
		writeError(ctx, w, apperr.ErrUnauthorized)
		return
	}

	batch, err := queryInt32(r, "batch")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := s.ticker.TickN(ctx, min(batch, publishworker.MaxBatchSize))
	if err != nil {
		logctx.FromContext(ctx).Error("Worker tick had errors", slog.Any("error", err))
	}
	writeJSON(w, http.StatusOK, res)
}
