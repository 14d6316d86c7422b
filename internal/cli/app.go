package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/identity"
	"github.com/MahdiBaghbani/familyagenda-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/cache"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/config"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/deps"
	httpclient "github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/server"
	tlspkg "github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/tls"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"

	_ "github.com/MahdiBaghbani/familyagenda-go/internal/platform/cache/loader"
	_ "github.com/MahdiBaghbani/familyagenda-go/internal/platform/store/loader"
	_ "github.com/MahdiBaghbani/familyagenda-go/internal/services/loader"
)

// App is a fully wired server with the resources it owns.
type App struct {
	Server *server.Server
	Deps   *deps.Deps
}

// Build opens the store and cache, constructs the identity clients and every
// core service, and returns the server ready to Start. On error everything
// opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app *App, err error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = st.Close()
		}
	}()

	c, err := cache.NewFromConfig(cfg.Cache.Driver, cfg.Cache.Drivers)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	raw, err := httpclient.New(&cfg.OutboundHTTP)
	if err != nil {
		return nil, err
	}
	verifier, err := identity.NewVerifierFromConfig(cfg.Identity, raw, c, logger)
	if err != nil {
		return nil, err
	}
	inviter, err := identity.NewInviterFromConfig(cfg.Identity, cfg.Mail, raw)
	if err != nil {
		return nil, err
	}

	d := &deps.Deps{
		Config:     cfg,
		Store:      st,
		Cache:      c,
		Verifier:   verifier,
		Inviter:    inviter,
		HTTPClient: httpclient.NewContextClient(raw),
		RealIP:     realip.NewTrustedProxies(cfg.Server.TrustedProxies),
	}

	services, err := buildServices(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	srv, err := server.New(cfg, d, logger, services)
	if err != nil {
		_ = service.CloseAll(services)
		return nil, err
	}

	pool, err := tlspkg.BuildRootCAPool(cfg.OutboundHTTP.TLSRootCAFile, cfg.OutboundHTTP.TLSRootCADir)
	if err != nil {
		_ = service.CloseAll(services)
		return nil, err
	}
	srv.SetRootCAPool(pool)

	return &App{Server: srv, Deps: d}, nil
}

// Close releases the cache and the store. Call after Server.Shutdown.
func (a *App) Close() error {
	return errors.Join(a.Deps.Cache.Close(), a.Deps.Store.Close())
}

// buildServices constructs the core services in mount order. Config for
// services that are not core is reported and ignored.
func buildServices(cfg *config.Config, d *deps.Deps, logger *slog.Logger) ([]service.Service, error) {
	services, err := service.Build(service.CoreServices, cfg.BuildServiceConfig, d, logger)
	if err != nil {
		return nil, err
	}
	for name := range cfg.HTTP.Services {
		if !slices.Contains(service.CoreServices, name) {
			logger.Warn("ignoring config for unknown service", "service", name, "registered", service.RegisteredServices())
		}
	}
	return services, nil
}

// openStore creates the configured driver and migrates its schema.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	st, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
		Mirror:  store.MirrorConfig{IncludeInviteEmails: cfg.Store.MirrorInviteEmails},
	})
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init store %s: %w", cfg.Store.Driver, err)
	}
	return st, nil
}
