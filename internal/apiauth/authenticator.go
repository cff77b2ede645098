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
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/cardinalhq/publishrunner/internal/apperr"
	"github.com/cardinalhq/publishrunner/internal/logctx"
	"github.com/cardinalhq/publishrunner/pubdb"
)

const (
	HeaderAPIKey = "X-Api-Key"

	DefaultMembershipTTL = time.Minute
)

// TokenVerifier validates a bearer token and returns the user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Store is the credential and membership data the authenticator reads.
type Store interface {
	ApiKeyGetByHash(ctx context.Context, keyHash string) (pubdb.ApiKey, error)
	OrganizationMemberRole(ctx context.Context, arg pubdb.OrganizationMemberRoleParams) (string, error)
}

type Method string

const (
	MethodBearer    Method = "bearer"
	MethodAPIKey    Method = "api_key"
	MethodStaticKey Method = "static_key"
)

// Principal is an authenticated caller.
type Principal struct {
	UserID string
	Method Method
	static *StaticKey
}

type memberKey struct {
	orgID  uuid.UUID
	userID string
}

// membership is cached for both members and non-members.
type membership struct {
	role     Role
	isMember bool
}

type Authenticator struct {
	store      Store
	verifier   TokenVerifier
	staticKeys []StaticKey
	members    *ttlcache.Cache[memberKey, membership]
}

type Config struct {
	Verifier      TokenVerifier
	StaticKeys    []StaticKey
	MembershipTTL time.Duration
}

func NewAuthenticator(store Store, cfg Config) *Authenticator {
	ttl := cfg.MembershipTTL
	if ttl <= 0 {
		ttl = DefaultMembershipTTL
	}
	a := &Authenticator{
		store:      store,
		verifier:   cfg.Verifier,
		staticKeys: cfg.StaticKeys,
		members: ttlcache.New(
			ttlcache.WithTTL[memberKey, membership](ttl),
			ttlcache.WithDisableTouchOnHit[memberKey, membership](),
		),
	}
	go a.members.Start()
	return a
}

func (a *Authenticator) Close() {
	a.members.Stop()
}

// HashAPIKey is how api_keys.key_hash is derived from a raw key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Authenticate identifies the caller from a bearer token or an API key.
// Every failure is an apperr.ErrUnauthorized.
func (a *Authenticator) Authenticate(r *http.Request) (Principal, error) {
	ctx := r.Context()

	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return a.authenticateKey(ctx, key)
	}

	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return Principal{}, fmt.Errorf("%w: missing credentials", apperr.ErrUnauthorized)
	}
	if a.verifier == nil {
		return Principal{}, fmt.Errorf("%w: bearer tokens are not accepted", apperr.ErrUnauthorized)
	}
	sub, err := a.verifier.Verify(ctx, strings.TrimSpace(token))
	if err != nil {
		logctx.FromContext(ctx).Debug("Rejected bearer token", slog.Any("error", err))
		return Principal{}, fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized)
	}
	return Principal{UserID: sub, Method: MethodBearer}, nil
}

func (a *Authenticator) authenticateKey(ctx context.Context, key string) (Principal, error) {
	for i := range a.staticKeys {
		sk := &a.staticKeys[i]
		if subtle.ConstantTimeCompare([]byte(sk.Key), []byte(key)) == 1 {
			return Principal{UserID: sk.UserID, Method: MethodStaticKey, static: sk}, nil
		}
	}

	row, err := a.store.ApiKeyGetByHash(ctx, HashAPIKey(key))
	if err != nil {
		if !pubdb.IsNoRows(err) {
			logctx.FromContext(ctx).Error("Failed to look up api key", slog.Any("error", err))
			return Principal{}, fmt.Errorf("looking up api key: %w", err)
		}
		return Principal{}, fmt.Errorf("%w: invalid api key", apperr.ErrUnauthorized)
	}
	return Principal{UserID: row.UserID, Method: MethodAPIKey}, nil
}

// Authorize returns the caller's role in orgID. Non-members get
// apperr.ErrForbidden.
func (a *Authenticator) Authorize(ctx context.Context, p Principal, orgID uuid.UUID) (Role, error) {
	if p.static != nil {
		if role, ok := p.static.roleIn(orgID); ok {
			return role, nil
		}
		return "", apperr.Forbiddenf("not a member of organization %s", orgID)
	}

	m, err := a.membership(ctx, orgID, p.UserID)
	if err != nil {
		return "", err
	}
	if !m.isMember {
		return "", apperr.Forbiddenf("not a member of organization %s", orgID)
	}
	return m.role, nil
}

func (a *Authenticator) membership(ctx context.Context, orgID uuid.UUID, userID string) (membership, error) {
	var lookupErr error
	loader := ttlcache.LoaderFunc[memberKey, membership](
		func(cache *ttlcache.Cache[memberKey, membership], key memberKey) *ttlcache.Item[memberKey, membership] {
			role, err := a.store.OrganizationMemberRole(ctx, pubdb.OrganizationMemberRoleParams{
				OrganizationID: key.orgID,
				UserID:         key.userID,
			})
			switch {
			case err == nil:
				return cache.Set(key, membership{role: Role(role), isMember: true}, ttlcache.DefaultTTL)
			case pubdb.IsNoRows(err):
				return cache.Set(key, membership{}, ttlcache.DefaultTTL)
			default:
				// Transient errors are not cached.
				lookupErr = err
				return nil
			}
		},
	)
	item := a.members.Get(memberKey{orgID: orgID, userID: userID}, ttlcache.WithLoader(loader))
	if item == nil {
		return membership{}, fmt.Errorf("looking up membership: %w", lookupErr)
	}
	return item.Value(), nil
}
