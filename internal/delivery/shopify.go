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
	"fmt"
	"net/url"
	"strings"
	"time"
)

const defaultShopifyAPIVersion = "2024-10"

type shopifyConfig struct {
	ShopDomain  string      `json:"shop_domain" validate:"required"`
	AccessToken string      `json:"access_token" validate:"required"`
	BlogID      json.Number `json:"blog_id" validate:"required"`
	BlogHandle  string      `json:"blog_handle"`
	APIVersion  string      `json:"api_version"`
	BaseURL     string      `json:"base_url" validate:"omitempty,http_url"`
	Published   *bool       `json:"published"`
}

type shopifyArticle struct {
	Title       string `json:"title"`
	Handle      string `json:"handle"`
	BodyHTML    string `json:"body_html"`
	SummaryHTML string `json:"summary_html,omitempty"`
	Published   bool   `json:"published"`
}

// shopifyAdapter creates a blog article through the Admin REST API.
type shopifyAdapter struct{}

func (shopifyAdapter) build(ctx context.Context, req Request, _ time.Time) (*call, error) {
	cfg, err := decodeConfig[shopifyConfig](req.Integration.Config)
	if err != nil {
		return nil, err
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://" + cfg.ShopDomain
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultShopifyAPIVersion
	}
	publish := true
	if cfg.Published != nil {
		publish = *cfg.Published
	}

	endpoint := fmt.Sprintf("%s/admin/api/%s/blogs/%s/articles.json",
		strings.TrimRight(base, "/"), url.PathEscape(version), url.PathEscape(cfg.BlogID.String()))
	httpReq, err := newJSONRequest(ctx, endpoint, map[string]shopifyArticle{
		"article": {
			Title:       req.Article.Title,
			Handle:      req.Article.Slug,
			BodyHTML:    req.Article.Content,
			SummaryHTML: excerpt(req.Article),
			Published:   publish,
		},
	})
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-Shopify-Access-Token", cfg.AccessToken)

	return &call{req: httpReq, parse: func(body []byte) (published, error) {
		var resp struct {
			Article struct {
				ID     json.Number `json:"id"`
				Handle string      `json:"handle"`
			} `json:"article"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return published{}, err
		}
		if resp.Article.ID == "" {
			return published{}, errors.New("missing article id")
		}
		pub := published{PostID: resp.Article.ID.String()}
		if cfg.BlogHandle != "" && resp.Article.Handle != "" {
			pub.URL = fmt.Sprintf("https://%s/blogs/%s/%s", cfg.ShopDomain, cfg.BlogHandle, resp.Article.Handle)
		}
		return pub, nil
	}}, nil
}
