// Package deps carries the shared dependencies built once in serve and
// passed explicitly to every service and interceptor constructor.
package deps

import (
	"fmt"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/identity"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/cache"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/config"
	httpclient "github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
)

// Deps holds shared dependencies for all services.
type Deps struct {
	Config *config.Config

	// Store is the initialized persistence driver.
	Store store.Store

	// Cache backs rate limits, verified tokens and offline responses.
	Cache cache.CacheWithCounter

	// Verifier turns bearer tokens into identities.
	Verifier identity.Verifier

	// Inviter asks the identity provider (or SMTP) to send invite emails.
	Inviter identity.Inviter

	// HTTPClient is the SSRF-safe outbound client.
	HTTPClient *httpclient.ContextClient

	// RealIP is the single source of client IPs for logging and rate limiting.
	RealIP *realip.TrustedProxies
}

// Validate reports the first missing dependency.
func (d *Deps) Validate() error {
	switch {
	case d == nil:
		return fmt.Errorf("deps: nil")
	case d.Config == nil:
		return fmt.Errorf("deps: config is required")
	case d.Store == nil:
		return fmt.Errorf("deps: store is required")
	case d.Cache == nil:
		return fmt.Errorf("deps: cache is required")
	case d.Verifier == nil:
		return fmt.Errorf("deps: verifier is required")
	}
	return nil
}
