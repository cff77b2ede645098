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

package apiauth

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

const DefaultJWKSRefresh = 10 * time.Minute

// JWKSVerifier checks bearer tokens against the identity provider's key
// set, refetching it every refresh interval.
type JWKSVerifier struct {
	url   string
	cache *ttlcache.Cache[string, jwk.Set]
	fetch func(ctx context.Context, url string) (jwk.Set, error)
}

func NewJWKSVerifier(url string, refresh time.Duration) *JWKSVerifier {
	if refresh <= 0 {
		refresh = DefaultJWKSRefresh
	}
	v := &JWKSVerifier{
		url: url,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, jwk.Set](refresh),
			ttlcache.WithDisableTouchOnHit[string, jwk.Set](),
		),
		fetch: func(ctx context.Context, url string) (jwk.Set, error) {
			return jwk.Fetch(ctx, url)
		},
	}
	go v.cache.Start()
	return v
}

func (v *JWKSVerifier) keySet(ctx context.Context) (jwk.Set, error) {
	var fetchErr error
	loader := ttlcache.LoaderFunc[string, jwk.Set](
		func(cache *ttlcache.Cache[string, jwk.Set], key string) *ttlcache.Item[string, jwk.Set] {
			set, err := v.fetch(ctx, key)
			if err != nil {
				fetchErr = err
				return nil
			}
			return cache.Set(key, set, ttlcache.DefaultTTL)
		},
	)
	item := v.cache.Get(v.url, ttlcache.WithLoader(loader))
	if item == nil {
		return nil, fmt.Errorf("fetching jwks from %s: %w", v.url, fetchErr)
	}
	return item.Value(), nil
}

// Verify parses and validates the token and returns its subject.
func (v *JWKSVerifier) Verify(ctx context.Context, token string) (string, error) {
	set, err := v.keySet(ctx)
	if err != nil {
		return "", err
	}
	tok, err := jwt.Parse([]byte(token), jwt.WithKeySet(set))
	if err != nil {
		return "", err
	}
	sub, ok := tok.Subject()
	if !ok || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

func (v *JWKSVerifier) Close() {
	v.cache.Stop()
}
