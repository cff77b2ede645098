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
	"net/url"
	"strings"
	"time"
)

const webflowAPIBase = "https://api.webflow.com"

type webflowConfig struct {
	APIToken       string `json:"api_token" validate:"required"`
	CollectionID   string `json:"collection_id" validate:"required"`
	APIBaseURL     string `json:"api_base_url" validate:"omitempty,http_url"`
	SiteURL        string `json:"site_url" validate:"omitempty,http_url"`
	CollectionSlug string `json:"collection_slug"`
	IsDraft        bool   `json:"is_draft"`
}

type webflowItem struct {
	IsDraft    bool              `json:"isDraft"`
	IsArchived bool              `json:"isArchived"`
	FieldData  map[string]string `json:"fieldData"`
}

// webflowAdapter creates a CMS collection item through the v2 Data API.
type webflowAdapter struct{}

func (webflowAdapter) build(ctx context.Context, req Request, _ time.Time) (*call, error) {
	cfg, err := decodeConfig[webflowConfig](req.Integration.Config)
	if err != nil {
		return nil, err
	}
	base := cfg.APIBaseURL
	if base == "" {
		base = webflowAPIBase
	}

	fields := map[string]string{
		"name":      req.Article.Title,
		"slug":      req.Article.Slug,
		"post-body": req.Article.Content,
	}
	if s := excerpt(req.Article); s != "" {
		fields["post-summary"] = s
	}

	endpoint := strings.TrimRight(base, "/") + "/v2/collections/" + url.PathEscape(cfg.CollectionID) + "/items"
	httpReq, err := newJSONRequest(ctx, endpoint, webflowItem{
		IsDraft:   cfg.IsDraft,
		FieldData: fields,
	})
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIToken)

	return &call{req: httpReq, parse: func(body []byte) (published, error) {
		var resp struct {
			ID        string `json:"id"`
			FieldData struct {
				Slug string `json:"slug"`
			} `json:"fieldData"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return published{}, err
		}
		if resp.ID == "" {
			return published{}, errors.New("missing item id")
		}
		pub := published{PostID: resp.ID}
		if cfg.SiteURL != "" && resp.FieldData.Slug != "" {
			collection := cfg.CollectionSlug
			if collection == "" {
				collection = "blog"
			}
			pub.URL = strings.TrimRight(cfg.SiteURL, "/") + "/" + collection + "/" + resp.FieldData.Slug
		}
		return pub, nil
	}}, nil
}
