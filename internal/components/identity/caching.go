package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/cache"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/logutil"
)

const verifyKeyPrefix = "identity:verified:"

// CachingVerifier remembers successful verifications for a short TTL,
// never past the token's own exp claim. Tokens are never stored; entries
// are keyed by a keyed BLAKE2b hash. Failures are not cached.
type CachingVerifier struct {
	inner  Verifier
	cache  cache.Cache
	ttl    time.Duration
	key    []byte
	logger *slog.Logger
}

// NewCachingVerifier wraps inner. hashKey should be shared by every
// instance using the same cache; when empty a random key is generated and
// the cache is effectively per-process.
func NewCachingVerifier(inner Verifier, c cache.Cache, ttl time.Duration, hashKey []byte, logger *slog.Logger) (*CachingVerifier, error) {
	if len(hashKey) == 0 {
		hashKey = make([]byte, 32)
		if _, err := rand.Read(hashKey); err != nil {
			return nil, fmt.Errorf("identity: generate hash key: %w", err)
		}
	}
	if len(hashKey) > blake2b.Size {
		sum := blake2b.Sum256(hashKey)
		hashKey = sum[:]
	}
	if ttl <= 0 {
		ttl = cache.TTLVerify
	}
	return &CachingVerifier{
		inner:  inner,
		cache:  c,
		ttl:    ttl,
		key:    hashKey,
		logger: logutil.NoopIfNil(logger),
	}, nil
}

func (v *CachingVerifier) cacheKey(token string) string {
	h, _ := blake2b.New256(v.key)
	h.Write([]byte(token))
	return verifyKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Verify implements Verifier.
func (v *CachingVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	key := v.cacheKey(token)

	raw, err := v.cache.Get(ctx, key)
	switch {
	case err == nil:
		var id Identity
		if jsonErr := json.Unmarshal(raw, &id); jsonErr == nil && id.ID != "" {
			return &id, nil
		}
		v.logger.Warn("discarding unreadable cached identity")
	case !cache.IsMiss(err):
		v.logger.Warn("verification cache read failed", "error", err)
	}

	id, err := v.inner.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	ttl := v.entryTTL(token)
	if ttl <= 0 {
		return id, nil
	}
	if raw, err := json.Marshal(id); err == nil {
		if err := v.cache.Set(ctx, key, raw, ttl); err != nil {
			v.logger.Warn("verification cache write failed", "error", err)
		}
	}
	return id, nil
}

// entryTTL caps the configured TTL at the time left before the token's
// exp claim. The signature was already checked by the inner verifier;
// opaque tokens keep the configured TTL.
func (v *CachingVerifier) entryTTL(token string) time.Duration {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return v.ttl
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return v.ttl
	}
	return min(v.ttl, time.Until(exp.Time))
}
