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
	"encoding/json"
	"net/http"

	"github.com/cardinalhq/publishrunner/internal/webhooks"
)

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hooks, err := s.hooks.List(ctx, callerFrom(ctx).orgID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, hooks)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var p webhooks.CreateParams
	if err := decodeJSON(r, &p); err != nil {
		writeError(ctx, w, err)
		return
	}
	created, err := s.hooks.Create(ctx, callerFrom(ctx).orgID, p)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	hook, err := s.hooks.Get(ctx, callerFrom(ctx).orgID, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var p webhooks.UpdateParams
	if err := decodeJSON(r, &p); err != nil {
		writeError(ctx, w, err)
		return
	}
	hook, err := s.hooks.Update(ctx, callerFrom(ctx).orgID, id, p)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := s.hooks.Delete(ctx, callerFrom(ctx).orgID, id); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type secretResponse struct {
	Secret string `json:"secret"`
}

func (s *Server) handleRegenerateSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	secret, err := s.hooks.RegenerateSecret(ctx, callerFrom(ctx).orgID, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, secretResponse{Secret: secret})
}

type testRequest struct {
	EventType   string          `json:"eventType"`
	TestPayload json.RawMessage `json:"testPayload"`
}

func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var req testRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := s.hooks.Test(ctx, callerFrom(ctx).orgID, id, req.EventType, req.TestPayload)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWebhookDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	limit, err := queryInt32(r, "limit")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	offset, err := queryInt32(r, "offset")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	page, err := s.hooks.Logs(ctx, callerFrom(ctx).orgID, id, limit, offset)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
