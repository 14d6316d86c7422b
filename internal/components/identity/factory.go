package identity

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/cache"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/config"
	httpclient "github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/client"
)

// jwtLeeway absorbs clock skew between us and the provider.
const jwtLeeway = 30 * time.Second

// NewVerifierFromConfig builds the verifier named by identity.verifier and
// wraps it in a CachingVerifier when verify_cache_ttl_seconds > 0.
func NewVerifierFromConfig(cfg config.IdentityConfig, client *httpclient.Client, c cache.Cache, logger *slog.Logger) (Verifier, error) {
	var (
		v   Verifier
		err error
	)
	switch cfg.Verifier {
	case "jwt":
		v, err = NewJWTVerifier(cfg.JWTSecret, jwtLeeway)
	case "remote", "":
		v, err = NewRemoteVerifier(cfg.URL, cfg.AnonKey, client)
	default:
		return nil, fmt.Errorf("identity: unknown verifier %q", cfg.Verifier)
	}
	if err != nil {
		return nil, err
	}
	if cfg.VerifyCacheTTLSeconds <= 0 || c == nil {
		return v, nil
	}
	// Replicas sharing a cache derive the same hash key from the provider keys.
	seed := blake2b.Sum256([]byte(cfg.URL + "\x00" + cfg.AnonKey + "\x00" + cfg.JWTSecret))
	return NewCachingVerifier(v, c, time.Duration(cfg.VerifyCacheTTLSeconds)*time.Second, seed[:], logger)
}

// NewInviterFromConfig builds the inviter named by identity.inviter.
func NewInviterFromConfig(cfg config.IdentityConfig, mail config.MailConfig, client *httpclient.Client) (Inviter, error) {
	switch cfg.Inviter {
	case "remote", "":
		return NewRemoteInviter(cfg.URL, cfg.ServiceKey, client)
	case "smtp":
		return NewMailInviter(mail)
	default:
		return nil, fmt.Errorf("identity: unknown inviter %q", cfg.Inviter)
	}
}
