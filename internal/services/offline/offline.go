// Package offline mounts the offline cache worker at the site root: the
// browser worker script, the route guard and the cached web client.
package offline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/offline"
	"github.com/MahdiBaghbani/familyagenda-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/familyagenda-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/familyagenda-go/internal/frameworks/service/httpwrap"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/config"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/deps"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/auth"
	httpclient "github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/client"
)

func init() {
	service.MustRegister("offline", New)
}

// Config holds offline service configuration. The worker itself is
// configured by the [offline] section.
type Config struct {
	// StartTimeout bounds install and activation at startup.
	StartTimeout time.Duration `mapstructure:"start_timeout"`

	// MaxAssetBytes caps a single upstream response.
	MaxAssetBytes int64 `mapstructure:"max_asset_bytes"`

	// LoginPath is where the route guard sends visitors without a session.
	LoginPath string `mapstructure:"login_path"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.StartTimeout <= 0 {
		c.StartTimeout = 30 * time.Second
	}
	if c.MaxAssetBytes <= 0 {
		c.MaxAssetBytes = 16 << 20
	}
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
}

// Service is the offline service.
type Service struct {
	router chi.Router
	worker *offline.Worker
	log    *slog.Logger
}

// New creates the offline service and, when [offline] is enabled, installs
// and activates the worker. A disabled worker forwards every request.
func New(m map[string]any, d *deps.Deps, log *slog.Logger) (service.Service, error) {
	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "offline", "unused_keys", unused)
	}
	if d == nil || d.Config == nil || d.Cache == nil {
		return nil, fmt.Errorf("offline: config and cache dependencies are required")
	}
	oc := d.Config.Offline

	upstream, err := newUpstream(oc, d.Config.OutboundHTTP, c.MaxAssetBytes)
	if err != nil {
		return nil, err
	}
	workerCfg := offline.Config{CacheName: oc.CacheName, CoreAssets: oc.CoreAssets}
	storage := offline.NewStorage(d.Cache, time.Duration(oc.EntryTTLSeconds)*time.Second)
	worker := offline.NewWorker(workerCfg, storage, upstream, log)

	if oc.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), c.StartTimeout)
		err := worker.Start(ctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("offline: start worker: %w", err)
		}
	}

	script, err := offline.ScriptHandler(workerCfg)
	if err != nil {
		return nil, fmt.Errorf("offline: render worker script: %w", err)
	}

	s := &Service{worker: worker, log: log}
	guard := auth.NewSessionGuard(auth.SessionGuardConfig{
		Cookie:    oc.SessionCookie,
		Exempt:    oc.GuardExempt,
		LoginPath: c.LoginPath,
	})

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/sw.js", script)
	r.With(guard).Handle("/*", http.HandlerFunc(s.serve))
	s.router = r
	return s, nil
}

// newUpstream picks the web client origin, or the static directory when no
// origin is set. The origin is operator-configured, so SSRF blocking is
// off for it.
func newUpstream(oc config.OfflineConfig, outbound config.OutboundHTTPConfig, maxBytes int64) (offline.Upstream, error) {
	if oc.Upstream == "" {
		root := oc.WebRoot
		if root == "" {
			root = "web"
		}
		return offline.NewDirUpstream(root), nil
	}
	outbound.SSRFMode = "off"
	outbound.MaxResponseBytes = maxBytes
	c, err := httpclient.New(&outbound)
	if err != nil {
		return nil, fmt.Errorf("offline: upstream client: %w", err)
	}
	return offline.NewHTTPUpstream(oc.Upstream, httpclient.NewContextClient(c))
}

func (s *Service) serve(w http.ResponseWriter, r *http.Request) {
	resp, err := s.worker.Fetch(r.Context(), r)
	if err != nil {
		s.log.Warn("upstream request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	resp.WriteTo(w)
}

// Worker returns the service's worker.
func (s *Service) Worker() *offline.Worker { return s.worker }

// Handler returns the service's HTTP handler with RawPath clearing.
func (s *Service) Handler() http.Handler {
	return httpwrap.ClearRawPath(s.router)
}

// Prefix returns "": the service owns the site root.
func (s *Service) Prefix() string {
	return ""
}

// Unprotected returns nil; the root is never behind bearer auth.
func (s *Service) Unprotected() []string {
	return nil
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
