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
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ghostConfig struct {
	APIURL      string `json:"api_url" validate:"required,http_url"`
	AdminAPIKey string `json:"admin_api_key" validate:"required"`
	Status      string `json:"status" validate:"omitempty,oneof=published draft"`
}

type ghostPost struct {
	Title         string `json:"title"`
	Slug          string `json:"slug"`
	HTML          string `json:"html"`
	CustomExcerpt string `json:"custom_excerpt,omitempty"`
	Status        string `json:"status"`
}

// ghostTokenTTL is the longest lifetime the Admin API accepts.
const ghostTokenTTL = 5 * time.Minute

// ghostAdapter uses the Admin API with a short-lived token signed from the
// "id:secret" admin key.
type ghostAdapter struct{}

func (ghostAdapter) build(ctx context.Context, req Request, now time.Time) (*call, error) {
	cfg, err := decodeConfig[ghostConfig](req.Integration.Config)
	if err != nil {
		return nil, err
	}
	token, err := ghostToken(cfg.AdminAPIKey, now)
	if err != nil {
		return nil, err
	}
	status := cfg.Status
	if status == "" {
		status = "published"
	}

	url := strings.TrimRight(cfg.APIURL, "/") + "/ghost/api/admin/posts/?source=html"
	httpReq, err := newJSONRequest(ctx, url, map[string][]ghostPost{
		"posts": {{
			Title:         req.Article.Title,
			Slug:          req.Article.Slug,
			HTML:          req.Article.Content,
			CustomExcerpt: excerpt(req.Article),
			Status:        status,
		}},
	})
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Ghost "+token)
	httpReq.Header.Set("Accept-Version", "v5.0")

	return &call{req: httpReq, parse: func(body []byte) (published, error) {
		var resp struct {
			Posts []struct {
				ID  string `json:"id"`
				URL string `json:"url"`
			} `json:"posts"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return published{}, err
		}
		if len(resp.Posts) == 0 || resp.Posts[0].ID == "" {
			return published{}, errors.New("missing post in response")
		}
		return published{URL: resp.Posts[0].URL, PostID: resp.Posts[0].ID}, nil
	}}, nil
}

func ghostToken(adminKey string, now time.Time) (string, error) {
	id, secretHex, ok := strings.Cut(adminKey, ":")
	if !ok || id == "" || secretHex == "" {
		return "", errors.New("admin_api_key must have the form id:secret")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", fmt.Errorf("admin_api_key secret is not hex: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(ghostTokenTTL).Unix(),
		"aud": "/admin/",
	})
	token.Header["kid"] = id
	return token.SignedString(secret)
}
