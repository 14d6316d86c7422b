// Package api provides the /api/* endpoints.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/agenda"
	"github.com/MahdiBaghbani/familyagenda-go/internal/components/api"
	"github.com/MahdiBaghbani/familyagenda-go/internal/components/family"
	"github.com/MahdiBaghbani/familyagenda-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/familyagenda-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/familyagenda-go/internal/frameworks/service/httpwrap"
	"github.com/MahdiBaghbani/familyagenda-go/internal/interceptors"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/deps"
)

func init() {
	service.MustRegister("api", New)
}

// Config holds api service configuration.
type Config struct {
	// Ratelimit holds rate limiting configuration for this service.
	Ratelimit RatelimitConfig `mapstructure:"ratelimit"`

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// RatelimitConfig holds the per-service rate limiting opt-in.
type RatelimitConfig struct {
	// Profile is the name of the ratelimit profile to use from
	// [http.interceptors.ratelimit.profiles.<name>]. It guards /invite.
	Profile string `mapstructure:"profile"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 64 << 10
	}
}

// Service is the API service.
type Service struct {
	router chi.Router
	conf   *Config
	log    *slog.Logger
}

// New creates a new API service.
func New(m map[string]any, d *deps.Deps, log *slog.Logger) (service.Service, error) {
	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "api", "unused_keys", unused)
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	if d.Inviter == nil {
		return nil, errors.New("api: inviter is required")
	}

	settings := family.Settings{
		FamilyID:   d.Config.Family.ID,
		OwnerEmail: d.Config.Family.OwnerEmail,
		SiteURL:    d.Config.Family.SiteURL,
	}
	membership := family.NewHandler(settings, d.Verifier, d.Inviter, d.Store)
	agendaHandler := agenda.NewHandler(agenda.New(settings, d.Store), d.Verifier)

	var inviteMiddleware interceptors.Middleware
	if c.Ratelimit.Profile != "" {
		inviteMiddleware, err = interceptors.Build("ratelimit", c.Ratelimit.Profile, d, log)
		if err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
	}

	r := chi.NewRouter()
	r.Use(httpwrap.LimitBody(c.MaxBodyBytes))

	// Health endpoint (public)
	r.Get("/healthz", api.HealthHandler)

	// Membership endpoints (bearer)
	r.Get("/me", membership.HandleMe)
	r.Post("/accept-invite", membership.HandleAcceptInvite)
	if inviteMiddleware != nil {
		r.With(inviteMiddleware).Post("/invite", membership.HandleInvite)
	} else {
		r.Post("/invite", membership.HandleInvite)
	}
	r.Post("/remove-member", membership.HandleRemoveMember)
	r.Get("/members", membership.HandleMembers)

	// Agenda endpoints (bearer, members only)
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", agendaHandler.HandleListTasks)
		r.Post("/", agendaHandler.HandleCreateTask)
		r.Patch("/{id}", agendaHandler.HandleUpdateTask)
		r.Delete("/{id}", agendaHandler.HandleDeleteTask)
	})
	r.Route("/events", func(r chi.Router) {
		r.Get("/", agendaHandler.HandleListEvents)
		r.Post("/", agendaHandler.HandleCreateEvent)
		r.Patch("/{id}", agendaHandler.HandleUpdateEvent)
		r.Delete("/{id}", agendaHandler.HandleDeleteEvent)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		api.WriteNotFound(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		api.WriteError(w, http.StatusMethodNotAllowed, api.CodeBadRequest)
	})

	return &Service{router: r, conf: &c, log: log}, nil
}

// Handler returns the service's HTTP handler with RawPath clearing.
func (s *Service) Handler() http.Handler {
	return httpwrap.ClearRawPath(s.router)
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "api"
}

// Unprotected returns paths that don't require a bearer token.
func (s *Service) Unprotected() []string {
	return []string{"/healthz"}
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
