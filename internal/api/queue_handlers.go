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
	"net/http"

	"github.com/cardinalhq/publishrunner/internal/apperr"
	"github.com/cardinalhq/publishrunner/internal/delivery"
	"github.com/cardinalhq/publishrunner/internal/publishqueue"
	"github.com/cardinalhq/publishrunner/pubdb"
)

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var p publishqueue.EnqueueParams
	if err := decodeJSON(r, &p); err != nil {
		writeError(ctx, w, err)
		return
	}
	p.OrganizationID = callerFrom(ctx).orgID

	item, err := s.queue.Enqueue(ctx, p)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := publishqueue.ListParams{OrganizationID: callerFrom(ctx).orgID}

	if v := r.URL.Query().Get("status"); v != "" {
		st := pubdb.PublishStatus(v)
		p.Status = &st
	}
	var err error
	if p.ProductID, err = queryUUID(r, "product_id"); err != nil {
		writeError(ctx, w, err)
		return
	}
	if p.Limit, err = queryInt32(r, "limit"); err != nil {
		writeError(ctx, w, err)
		return
	}
	if p.Offset, err = queryInt32(r, "offset"); err != nil {
		writeError(ctx, w, err)
		return
	}

	res, err := s.queue.List(ctx, p)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, err := queryUUID(r, "product_id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	st, err := s.queue.Stats(ctx, callerFrom(ctx).orgID, productID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetQueueItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	item, err := s.queueItem(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	ok, err := s.queue.Cancel(ctx, callerFrom(ctx).orgID, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if !ok {
		writeError(ctx, w, notPermitted("cancelled", id))
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	ok, err := s.queue.Retry(ctx, callerFrom(ctx).orgID, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if !ok {
		writeError(ctx, w, notPermitted("retried", id))
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// handleComplete lets an out-of-band publisher report success for an item
// it claimed.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	item, err := s.queueItem(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var res publishqueue.CompletionResult
	if err := decodeJSON(r, &res); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := s.queue.MarkCompleted(ctx, item.ID, res); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type failRequest struct {
	Error     string `json:"error" validate:"required"`
	ErrorType string `json:"error_type"`
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	item, err := s.queueItem(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var req failRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := apperr.Validate(req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if req.ErrorType == "" {
		req.ErrorType = string(delivery.ErrorInternal)
	}
	if _, err := s.queue.MarkFailed(ctx, item.ID, req.Error, req.ErrorType); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// queueItem loads {id} within the caller's organization.
func (s *Server) queueItem(r *http.Request) (pubdb.PublishQueue, error) {
	id, err := pathUUID(r, "id")
	if err != nil {
		return pubdb.PublishQueue{}, err
	}
	return s.queue.Get(r.Context(), callerFrom(r.Context()).orgID, id)
}
