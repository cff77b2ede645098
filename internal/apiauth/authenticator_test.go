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
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/publishrunner/internal/apperr"
	"github.com/cardinalhq/publishrunner/pubdb"
	"github.com/cardinalhq/publishrunner/testhelpers"
)

type jwksFixture struct {
	key     jwk.Key
	server  *httptest.Server
	fetches atomic.Int32
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key, err := jwk.Import(raw)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "test-key"))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256()))

	pub, err := jwk.PublicKeyOf(key)
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	body, err := json.Marshal(set)
	require.NoError(t, err)

	f := &jwksFixture{key: key}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) token(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	b := jwt.NewBuilder().Expiration(exp)
	if subject != "" {
		b = b.Subject(subject)
	}
	tok, err := b.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256(), f.key))
	require.NoError(t, err)
	return string(signed)
}

func TestJWKSVerifier(t *testing.T) {
	f := newJWKSFixture(t)
	v := NewJWKSVerifier(f.server.URL, time.Hour)
	defer v.Close()
	ctx := context.Background()

	sub, err := v.Verify(ctx, f.token(t, "user-1", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	_, err = v.Verify(ctx, f.token(t, "user-1", time.Now().Add(-time.Hour)))
	assert.Error(t, err, "expired")

	_, err = v.Verify(ctx, f.token(t, "", time.Now().Add(time.Hour)))
	assert.Error(t, err, "no subject")

	_, err = v.Verify(ctx, "not-a-jwt")
	assert.Error(t, err)

	assert.Equal(t, int32(1), f.fetches.Load(), "key set is cached between calls")
}

func TestJWKSVerifierFetchFailure(t *testing.T) {
	v := NewJWKSVerifier("http://127.0.0.1:1/jwks.json", time.Hour)
	defer v.Close()
	_, err := v.Verify(context.Background(), "x.y.z")
	assert.ErrorContains(t, err, "fetching jwks")
}

type stubVerifier map[string]string

func (s stubVerifier) Verify(_ context.Context, token string) (string, error) {
	if sub, ok := s[token]; ok {
		return sub, nil
	}
	return "", errors.New("bad token")
}

func request(headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestAuthenticate(t *testing.T) {
	store := testhelpers.NewMemStore()
	store.AddAPIKey("user-key", HashAPIKey("pk_live_abc"))
	a := NewAuthenticator(store, Config{
		Verifier:   stubVerifier{"good": "user-jwt"},
		StaticKeys: []StaticKey{{Name: "ci", Key: "static-secret", UserID: "service:ci", Role: RoleAdmin, Organizations: []string{"*"}}},
	})
	defer a.Close()

	tests := []struct {
		name       string
		headers    map[string]string
		wantUser   string
		wantMethod Method
	}{
		{"bearer", map[string]string{"Authorization": "Bearer good"}, "user-jwt", MethodBearer},
		{"bearer lower case scheme", map[string]string{"Authorization": "bearer good"}, "user-jwt", MethodBearer},
		{"database key", map[string]string{HeaderAPIKey: "pk_live_abc"}, "user-key", MethodAPIKey},
		{"static key", map[string]string{HeaderAPIKey: "static-secret"}, "service:ci", MethodStaticKey},
		{"api key wins over bearer", map[string]string{HeaderAPIKey: "pk_live_abc", "Authorization": "Bearer good"}, "user-key", MethodAPIKey},
		{"no credentials", nil, "", ""},
		{"bad token", map[string]string{"Authorization": "Bearer bad"}, "", ""},
		{"basic scheme", map[string]string{"Authorization": "Basic Zm9vOmJhcg=="}, "", ""},
		{"unknown key", map[string]string{HeaderAPIKey: "nope"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := a.Authenticate(request(tt.headers))
			if tt.wantUser == "" {
				assert.ErrorIs(t, err, apperr.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, p.UserID)
			assert.Equal(t, tt.wantMethod, p.Method)
		})
	}
}

func TestAuthenticateWithoutVerifierRejectsBearer(t *testing.T) {
	a := NewAuthenticator(testhelpers.NewMemStore(), Config{})
	defer a.Close()
	_, err := a.Authenticate(request(map[string]string{"Authorization": "Bearer anything"}))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

type countingStore struct {
	Store
	lookups atomic.Int32
	fail    atomic.Bool
}

func (c *countingStore) OrganizationMemberRole(ctx context.Context, arg pubdb.OrganizationMemberRoleParams) (string, error) {
	c.lookups.Add(1)
	if c.fail.Load() {
		return "", errors.New("connection refused")
	}
	return c.Store.OrganizationMemberRole(ctx, arg)
}

func TestAuthorize(t *testing.T) {
	mem := testhelpers.NewMemStore()
	org := uuid.New()
	other := uuid.New()
	mem.AddMember(org, "alice", "admin")
	store := &countingStore{Store: mem}

	a := NewAuthenticator(store, Config{MembershipTTL: time.Hour})
	defer a.Close()
	ctx := context.Background()
	alice := Principal{UserID: "alice", Method: MethodBearer}

	role, err := a.Authorize(ctx, alice, org)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
	assert.True(t, role.CanManage())

	_, err = a.Authorize(ctx, alice, org)
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.lookups.Load(), "membership is cached")

	_, err = a.Authorize(ctx, alice, other)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = a.Authorize(ctx, alice, other)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Equal(t, int32(2), store.lookups.Load(), "non-membership is cached too")
}

func TestAuthorizeDoesNotCacheTransientErrors(t *testing.T) {
	mem := testhelpers.NewMemStore()
	org := uuid.New()
	mem.AddMember(org, "bob", "member")
	store := &countingStore{Store: mem}
	a := NewAuthenticator(store, Config{})
	defer a.Close()
	ctx := context.Background()
	bob := Principal{UserID: "bob", Method: MethodAPIKey}

	store.fail.Store(true)
	_, err := a.Authorize(ctx, bob, org)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrForbidden)

	store.fail.Store(false)
	role, err := a.Authorize(ctx, bob, org)
	require.NoError(t, err)
	assert.Equal(t, RoleMember, role)
	assert.False(t, role.CanManage())
}

func TestAuthorizeStaticKey(t *testing.T) {
	org := uuid.New()
	a := NewAuthenticator(testhelpers.NewMemStore(), Config{
		StaticKeys: []StaticKey{
			{Name: "scoped", Key: "k1", UserID: "service:scoped", Role: RoleMember, Organizations: []string{org.String()}},
		},
	})
	defer a.Close()
	ctx := context.Background()

	p, err := a.Authenticate(request(map[string]string{HeaderAPIKey: "k1"}))
	require.NoError(t, err)

	role, err := a.Authorize(ctx, p, org)
	require.NoError(t, err)
	assert.Equal(t, RoleMember, role)

	_, err = a.Authorize(ctx, p, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestLoadKeyFile(t *testing.T) {
	org := uuid.New().String()
	t.Setenv("PUBLISHRUNNER_TEST_KEY", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "keys.yaml")
	contents := `keys:
  - name: ci
    key: env:PUBLISHRUNNER_TEST_KEY
    role: admin
    organizations: ["` + org + `"]
  - name: reporting
    key: literal
    user_id: reporter
    organizations: ["*"]
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	keys, err := LoadKeyFile(path)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "from-env", keys[0].Key)
	assert.Equal(t, "service:ci", keys[0].UserID)
	assert.Equal(t, RoleAdmin, keys[0].Role)
	assert.Equal(t, "reporter", keys[1].UserID)
	assert.Equal(t, RoleMember, keys[1].Role)

	t.Setenv("PUBLISHRUNNER_TEST_KEYFILE", contents)
	keys, err = LoadKeyFile("env:PUBLISHRUNNER_TEST_KEYFILE")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	keys, err = LoadKeyFile(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Nil(t, keys)

	keys, err = LoadKeyFile("")
	require.NoError(t, err)
	assert.Nil(t, keys)
}

func TestLoadKeyFileRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantErr  string
	}{
		{"unknown field", "keys:\n  - name: a\n    key: k\n    colour: red\n", "failed to unmarshal"},
		{"empty key", "keys:\n  - name: a\n    key: env:PUBLISHRUNNER_UNSET_VAR\n", "no key value"},
		{"bad role", "keys:\n  - name: a\n    key: k\n    role: root\n", "unknown role"},
		{"bad org", "keys:\n  - name: a\n    key: k\n    organizations: [acme]\n", "bad organization"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseKeyFile("test.yaml", []byte(tt.contents))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err := LoadKeyFile("env:PUBLISHRUNNER_UNSET_VAR")
	assert.ErrorContains(t, err, "is not set")
}
