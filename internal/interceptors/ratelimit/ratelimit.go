// Package ratelimit provides a fixed-window rate limiting interceptor
// backed by the shared cache.
package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/api"
	svccfg "github.com/MahdiBaghbani/familyagenda-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/familyagenda-go/internal/interceptors"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/cache"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/deps"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/logutil"
)

func init() {
	interceptors.Register("ratelimit", New)
}

// Config defines rate limiting parameters decoded from a profile.
type Config struct {
	RequestsPerWindow int64 `mapstructure:"requests_per_window"`
	WindowSeconds     int   `mapstructure:"window_seconds"`

	// Scope separates counters of different profiles sharing one cache.
	Scope string `mapstructure:"scope"`
}

// ApplyDefaults sets defaults for unconfigured fields.
func (c *Config) ApplyDefaults() {
	if c.RequestsPerWindow == 0 {
		c.RequestsPerWindow = 100
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = 60
	}
	if c.Scope == "" {
		c.Scope = "default"
	}
}

// Limiter counts requests per client key in fixed windows.
type Limiter struct {
	cache   cache.Counter
	keyFunc func(*http.Request) string
	scope   string
	limit   int64
	window  time.Duration
	log     *slog.Logger
}

// New builds the interceptor from a profile map. Clients are keyed by the
// trusted-proxy-aware IP from d.RealIP.
func New(conf map[string]any, d *deps.Deps, log *slog.Logger) (interceptors.Middleware, error) {
	var c Config
	if err := svccfg.Decode(conf, &c); err != nil {
		return nil, err
	}
	if d == nil || d.Cache == nil {
		return nil, fmt.Errorf("ratelimit: cache dependency is required")
	}
	if d.RealIP == nil {
		return nil, fmt.Errorf("ratelimit: realip dependency is required")
	}

	limiter := &Limiter{
		cache:   d.Cache,
		keyFunc: d.RealIP.GetClientIPString,
		scope:   c.Scope,
		limit:   c.RequestsPerWindow,
		window:  time.Duration(c.WindowSeconds) * time.Second,
		log:     logutil.NoopIfNil(log),
	}
	return limiter.Wrap, nil
}

// Wrap is the middleware function that applies rate limiting.
// Cache failures let the request through.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ratelimit:" + l.scope + ":" + l.keyFunc(r)
		count, resetAt, err := l.cache.Increment(r.Context(), key, 1, l.window)
		if err != nil {
			l.log.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if count > l.limit {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			api.WriteTooManyRequests(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WithKeyFunc returns a copy of the limiter keyed by fn.
func (l *Limiter) WithKeyFunc(fn func(*http.Request) string) *Limiter {
	cp := *l
	cp.keyFunc = fn
	return &cp
}
