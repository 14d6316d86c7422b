// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 FamilyAgenda Authors

package identity_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/identity"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/cache"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/cache/memory"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/config"
	httpclient "github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/client"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  A@X.com ", "a@x.com"},
		{"Owner@Example.ORG", "owner@example.org"},
		{"joão@exemplo.pt", "joão@exemplo.pt"},
		{"ana@Exämple.com", "ana@xn--exmple-cua.com"},
		{"no-at-sign", "no-at-sign"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, identity.NormalizeEmail(tt.in), tt.in)
	}
}

func TestSameEmail(t *testing.T) {
	assert.True(t, identity.SameEmail("a@x.com", "A@X.COM"))
	assert.True(t, identity.SameEmail(" a@x.com", "a@x.com "))
	assert.False(t, identity.SameEmail("a@x.com", "b@x.com"))
	assert.False(t, identity.SameEmail("", ""), "unset owner must not match an empty email")
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestJWTVerifier(t *testing.T) {
	v, err := identity.NewJWTVerifier("s3cret", 0)
	require.NoError(t, err)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Unix()

	t.Run("valid", func(t *testing.T) {
		tok := signHS256(t, "s3cret", jwt.MapClaims{"sub": "u1", "email": "a@x.com", "role": "authenticated", "exp": exp})
		id, err := v.Verify(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, &identity.Identity{ID: "u1", Email: "a@x.com"}, id)
	})

	invalid := map[string]string{
		"wrong secret": signHS256(t, "other", jwt.MapClaims{"sub": "u1", "exp": exp}),
		"expired":      signHS256(t, "s3cret", jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no exp":       signHS256(t, "s3cret", jwt.MapClaims{"sub": "u1"}),
		"no sub":       signHS256(t, "s3cret", jwt.MapClaims{"exp": exp}),
		"anon role":    signHS256(t, "s3cret", jwt.MapClaims{"sub": "u1", "role": "anon", "exp": exp}),
		"garbage":      "not.a.jwt",
	}
	for name, tok := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(ctx, tok)
			assert.ErrorIs(t, err, identity.ErrInvalidToken)
		})
	}

	_, err = identity.NewJWTVerifier("", 0)
	assert.Error(t, err)
}

func loopbackClient(t *testing.T) *httpclient.Client {
	t.Helper()
	cfg := httpclient.DefaultConfig()
	cfg.SSRFMode = "off"
	c, err := httpclient.New(cfg)
	require.NoError(t, err)
	return c
}

func providerStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Apikey") != "anon" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"No API key found in request"}`)
			return
		}
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_, _ = io.WriteString(w, `{"id":"u-1","email":"B@X.com","aud":"authenticated"}`)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"msg":"invalid JWT"}`)
		}
	})
	mux.HandleFunc("/auth/v1/invite", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Authorization") != "Bearer service" || r.Header.Get("Apikey") != "service" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"msg":"not allowed"}`)
			return
		}
		var body struct {
			Email string `json:"email"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email == "taken@x.com" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"msg":"A user with this email address has already been registered"}`)
			return
		}
		if got := r.URL.Query().Get("redirect_to"); got != "" && got != "https://agenda.example.org" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"id":"invited-1","email":"`+body.Email+`"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteVerifier(t *testing.T) {
	srv := providerStub(t)
	v, err := identity.NewRemoteVerifier(srv.URL, "anon", loopbackClient(t))
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.ID)
	assert.Equal(t, "B@X.com", id.Email)

	_, err = v.Verify(context.Background(), "bad")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	_, err = identity.NewRemoteVerifier("not a url", "anon", loopbackClient(t))
	assert.Error(t, err)
}

func TestRemoteInviter(t *testing.T) {
	srv := providerStub(t)
	inv, err := identity.NewRemoteInviter(srv.URL+"/", "service", loopbackClient(t))
	require.NoError(t, err)
	ctx := context.Background()

	userID, err := inv.Invite(ctx, identity.InviteRequest{Email: "b@x.com", RedirectTo: "https://agenda.example.org"})
	require.NoError(t, err)
	assert.Equal(t, "invited-1", userID)

	_, err = inv.Invite(ctx, identity.InviteRequest{Email: "taken@x.com"})
	var perr *identity.ProviderError
	require.True(t, errors.As(err, &perr), "expected ProviderError, got %v", err)
	assert.Equal(t, http.StatusUnprocessableEntity, perr.Status)
	assert.Equal(t, "A user with this email address has already been registered", perr.Error())

	_, err = inv.Invite(ctx, identity.InviteRequest{Email: "  "})
	assert.ErrorIs(t, err, identity.ErrMissingEmail)

	_, err = identity.NewRemoteInviter(srv.URL, "", loopbackClient(t))
	assert.Error(t, err)
}

type countingVerifier struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingVerifier) Verify(_ context.Context, token string) (*identity.Identity, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, identity.ErrInvalidToken
	}
	return &identity.Identity{ID: "id-" + token, Email: token + "@x.com"}, nil
}

func TestCachingVerifier(t *testing.T) {
	c := memory.New(0, 0)
	defer c.Close()
	inner := &countingVerifier{}
	v, err := identity.NewCachingVerifier(inner, c, time.Minute, []byte("k"), nil)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := v.Verify(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, "id-tok", id.ID)
	}
	assert.Equal(t, int32(1), inner.calls.Load(), "later calls should hit the cache")

	_, err = v.Verify(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachingVerifier_DoesNotCacheFailures(t *testing.T) {
	c := memory.New(0, 0)
	defer c.Close()
	inner := &countingVerifier{fail: true}
	v, err := identity.NewCachingVerifier(inner, c, time.Minute, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := v.Verify(context.Background(), "tok")
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	}
	assert.Equal(t, int32(2), inner.calls.Load())
}

// ttlRecorder records the TTL of every cache write.
type ttlRecorder struct {
	cache.Cache
	mu   sync.Mutex
	ttls []time.Duration
}

func (r *ttlRecorder) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	r.mu.Lock()
	r.ttls = append(r.ttls, ttl)
	r.mu.Unlock()
	return r.Cache.Set(ctx, key, value, ttl)
}

func TestCachingVerifier_EntryNeverOutlivesToken(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(0, 0)
	defer mem.Close()
	rec := &ttlRecorder{Cache: mem}
	inner := &countingVerifier{}
	v, err := identity.NewCachingVerifier(inner, rec, time.Minute, []byte("k"), nil)
	require.NoError(t, err)

	soon := signHS256(t, "s3cret", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(10 * time.Second).Unix()})
	_, err = v.Verify(ctx, soon)
	require.NoError(t, err)
	require.Len(t, rec.ttls, 1)
	assert.LessOrEqual(t, rec.ttls[0], 10*time.Second)
	assert.Greater(t, rec.ttls[0], time.Duration(0))

	later := signHS256(t, "s3cret", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix()})
	_, err = v.Verify(ctx, later)
	require.NoError(t, err)
	require.Len(t, rec.ttls, 2)
	assert.Equal(t, time.Minute, rec.ttls[1], "configured TTL when the token lives longer")

	_, err = v.Verify(ctx, "opaque")
	require.NoError(t, err)
	require.Len(t, rec.ttls, 3)
	assert.Equal(t, time.Minute, rec.ttls[2])

	expired := signHS256(t, "s3cret", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Minute).Unix()})
	for i := 0; i < 2; i++ {
		_, err = v.Verify(ctx, expired)
		require.NoError(t, err)
	}
	assert.Len(t, rec.ttls, 3, "expired tokens are not cached")
	assert.Equal(t, int32(5), inner.calls.Load())
}

func TestMailInviter(t *testing.T) {
	inv, err := identity.NewMailInviter(config.MailConfig{Host: "smtp.example.org", From: "agenda@example.org"})
	require.NoError(t, err)

	var gotTo []string
	var gotBody strings.Builder
	inv.WithSender(gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		assert.Equal(t, "agenda@example.org", from)
		gotTo = to
		_, err := msg.WriteTo(&gotBody)
		return err
	}))

	userID, err := inv.Invite(context.Background(), identity.InviteRequest{Email: "b@x.com", RedirectTo: "https://agenda.example.org"})
	require.NoError(t, err)
	assert.Empty(t, userID)
	assert.Equal(t, []string{"b@x.com"}, gotTo)
	assert.Contains(t, gotBody.String(), "https://agenda.example.org")

	_, err = identity.NewMailInviter(config.MailConfig{})
	assert.Error(t, err)
}

func TestNewVerifierFromConfig(t *testing.T) {
	c := memory.New(0, 0)
	defer c.Close()

	v, err := identity.NewVerifierFromConfig(config.IdentityConfig{Verifier: "jwt", JWTSecret: "s"}, nil, c, nil)
	require.NoError(t, err)
	assert.IsType(t, &identity.JWTVerifier{}, v)

	v, err = identity.NewVerifierFromConfig(config.IdentityConfig{Verifier: "jwt", JWTSecret: "s", VerifyCacheTTLSeconds: 60}, nil, c, nil)
	require.NoError(t, err)
	assert.IsType(t, &identity.CachingVerifier{}, v)

	_, err = identity.NewVerifierFromConfig(config.IdentityConfig{Verifier: "ldap"}, nil, c, nil)
	assert.Error(t, err)
}
