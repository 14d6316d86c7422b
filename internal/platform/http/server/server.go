// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/config"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/deps"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/logutil"

	tlspkg "github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/tls"
)

var ErrMissingDeps = errors.New("server: deps are required")

// acmeRenewInterval is how often the ACME certificate is checked for renewal.
const acmeRenewInterval = 12 * time.Hour

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	deps       *deps.Deps
	httpServer *http.Server
	logger     *slog.Logger

	// services in mount order; closed in reverse order on shutdown.
	services []service.Service

	// challengeServer answers ACME HTTP-01 challenges and redirects to
	// HTTPS. Nil except in ACME mode.
	challengeServer *http.Server

	// rootCAs is used to reach the ACME directory.
	rootCAs *x509.CertPool

	stopRenewals context.CancelFunc
	closeOnce    sync.Once
}

// New builds the router and HTTP server. Services are mounted in the given
// order; nil entries are skipped.
func New(cfg *config.Config, d *deps.Deps, logger *slog.Logger, services []service.Service) (*Server, error) {
	if d == nil || d.RealIP == nil {
		return nil, ErrMissingDeps
	}
	s := &Server{
		cfg:    cfg,
		deps:   d,
		logger: logutil.NoopIfNil(logger),
	}
	for _, svc := range services {
		if svc != nil {
			s.services = append(s.services, svc)
		}
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler. Tests drive it through httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// SetRootCAPool sets the pool used for ACME directory requests. Call before Start.
func (s *Server) SetRootCAPool(pool *x509.CertPool) {
	s.rootCAs = pool
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"public_origin", s.cfg.PublicOrigin,
		"tls_mode", s.cfg.TLS.Mode,
	)

	switch s.cfg.TLS.Mode {
	case "off":
		return s.httpServer.ListenAndServe()
	case "acme":
		return s.startACME()
	case "static", "selfsigned":
		tlsConfig, err := tlspkg.NewManager(&s.cfg.TLS, s.logger).ServerConfig(s.cfg.PublicHost())
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
		return s.httpServer.ListenAndServeTLS("", "")
	default:
		return fmt.Errorf("%w: %s", tlspkg.ErrInvalidTLSMode, s.cfg.TLS.Mode)
	}
}

// checkACMEPorts requires both ports and, when public_origin names a port,
// that it matches tls.https_port.
func checkACMEPorts(cfg *config.Config) error {
	if cfg.TLS.HTTPPort == 0 {
		return errors.New("tls.http_port must be set for ACME mode")
	}
	if cfg.TLS.HTTPSPort == 0 {
		return errors.New("tls.https_port must be set for ACME mode")
	}
	u, err := url.Parse(cfg.PublicOrigin)
	if err != nil || u.Port() == "" {
		return nil
	}
	if port, err := strconv.Atoi(u.Port()); err == nil && port != cfg.TLS.HTTPSPort {
		return fmt.Errorf("public_origin port %d does not match tls.https_port %d", port, cfg.TLS.HTTPSPort)
	}
	return nil
}

// startACME runs two listeners: plain HTTP for challenges and redirects,
// HTTPS for the application router.
func (s *Server) startACME() error {
	if err := checkACMEPorts(s.cfg); err != nil {
		return err
	}
	host, _, err := net.SplitHostPort(s.cfg.ListenAddr)
	if err != nil {
		host = s.cfg.ListenAddr
	}

	acme := tlspkg.NewACMEManager(&s.cfg.TLS.ACME, s.logger, s.rootCAs)

	mux := http.NewServeMux()
	mux.Handle("/.well-known/acme-challenge/", acme.ChallengeHandler())
	mux.Handle("/", httpsRedirect(s.cfg.TLS.HTTPSPort))

	httpAddr := net.JoinHostPort(host, strconv.Itoa(s.cfg.TLS.HTTPPort))
	s.challengeServer = &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	challengeLn, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("challenge listener bind failed on %s: %w", httpAddr, err)
	}
	challengeErr := make(chan error, 1)
	go func() { challengeErr <- s.challengeServer.Serve(challengeLn) }()

	stopChallenge := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.challengeServer.Shutdown(ctx); err != nil {
			_ = s.challengeServer.Close()
		}
	}

	if err := acme.Init(context.Background()); err != nil {
		stopChallenge()
		return fmt.Errorf("ACME initialization failed: %w", err)
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	s.stopRenewals = cancel
	go acme.RunRenewals(renewCtx, acmeRenewInterval)

	s.httpServer.Addr = net.JoinHostPort(host, strconv.Itoa(s.cfg.TLS.HTTPSPort))
	s.httpServer.TLSConfig = acme.ServerConfig()
	httpsLn, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		cancel()
		stopChallenge()
		return fmt.Errorf("https listener bind failed on %s: %w", s.httpServer.Addr, err)
	}
	httpsErr := make(chan error, 1)
	go func() { httpsErr <- s.httpServer.ServeTLS(httpsLn, "", "") }()

	s.logger.Info("serving with ACME certificate",
		"http_addr", httpAddr,
		"https_addr", s.httpServer.Addr,
		"domain", s.cfg.TLS.ACME.Domain,
	)

	select {
	case err := <-httpsErr:
		stopChallenge()
		return err
	case err := <-challengeErr:
		if errors.Is(err, http.ErrServerClosed) {
			return <-httpsErr
		}
		ctx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancelShutdown()
		_ = s.httpServer.Shutdown(ctx)
		return fmt.Errorf("challenge server exited unexpectedly: %w", err)
	}
}

// httpsRedirect answers with 308 to the HTTPS form of the request URL.
func httpsRedirect(httpsPort int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
		if httpsPort != 443 {
			host = net.JoinHostPort(host, strconv.Itoa(httpsPort))
		} else if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		http.Redirect(w, r, "https://"+host+r.URL.RequestURI(), http.StatusPermanentRedirect)
	})
}

// Shutdown stops the listeners and closes services in reverse mount order.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	if s.stopRenewals != nil {
		s.stopRenewals()
	}

	var challengeErr error
	if s.challengeServer != nil {
		challengeErr = s.challengeServer.Shutdown(ctx)
	}
	httpErr := s.httpServer.Shutdown(ctx)

	s.closeOnce.Do(func() {
		for i := len(s.services) - 1; i >= 0; i-- {
			svc := s.services[i]
			name := svc.Prefix()
			if name == "" {
				name = "(root)"
			}
			if err := svc.Close(); err != nil {
				s.logger.Warn("service close error", "service", name, "error", err)
				continue
			}
			s.logger.Debug("service closed", "service", name)
		}
	})

	return errors.Join(challengeErr, httpErr)
}
