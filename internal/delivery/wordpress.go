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

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type wordpressConfig struct {
	SiteURL             string `json:"site_url" validate:"required,http_url"`
	Username            string `json:"username" validate:"required"`
	ApplicationPassword string `json:"application_password" validate:"required"`
	Status              string `json:"status" validate:"omitempty,oneof=publish draft pending private"`
}

type wordpressPost struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Excerpt string `json:"excerpt,omitempty"`
	Slug    string `json:"slug"`
	Status  string `json:"status"`
}

// wordpressAdapter posts through the REST API with an application password.
type wordpressAdapter struct{}

func (wordpressAdapter) build(ctx context.Context, req Request, _ time.Time) (*call, error) {
	cfg, err := decodeConfig[wordpressConfig](req.Integration.Config)
	if err != nil {
		return nil, err
	}
	status := cfg.Status
	if status == "" {
		status = "publish"
	}

	httpReq, err := newJSONRequest(ctx, strings.TrimRight(cfg.SiteURL, "/")+"/wp-json/wp/v2/posts", wordpressPost{
		Title:   req.Article.Title,
		Content: req.Article.Content,
		Excerpt: excerpt(req.Article),
		Slug:    req.Article.Slug,
		Status:  status,
	})
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(cfg.Username, cfg.ApplicationPassword)

	return &call{req: httpReq, parse: func(body []byte) (published, error) {
		var resp struct {
			ID   json.Number `json:"id"`
			Link string      `json:"link"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return published{}, err
		}
		if resp.ID == "" {
			return published{}, errors.New("missing post id")
		}
		return published{URL: resp.Link, PostID: resp.ID.String()}, nil
	}}, nil
}
