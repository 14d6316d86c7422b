// Package tls provides TLS certificate management for the HTTP server and
// root CA pools for outbound clients.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/config"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/logutil"
)

var (
	ErrInvalidTLSMode = errors.New("invalid TLS mode")
	ErrMissingCert    = errors.New("missing certificate or key file")
	ErrACMEManaged    = errors.New("tls.mode=acme is served by ACMEManager")
)

const (
	selfSignedCertFile = "server.crt"
	selfSignedKeyFile  = "server.key"
	selfSignedLifetime = 365 * 24 * time.Hour

	// Regenerate self-signed certificates this close to expiry.
	selfSignedRenewBefore = 7 * 24 * time.Hour
)

// Manager loads or generates certificates for the off, static and
// selfsigned modes.
type Manager struct {
	cfg    *config.TLSConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a new TLS manager.
func NewManager(cfg *config.TLSConfig, logger *slog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logutil.NoopIfNil(logger), now: time.Now}
}

// ServerConfig returns the tls.Config for the configured mode, or nil for
// mode "off". ACME configs come from ACMEManager instead.
func (m *Manager) ServerConfig(hostname string) (*cryptotls.Config, error) {
	switch m.cfg.Mode {
	case "off":
		return nil, nil
	case "static":
		return m.static()
	case "selfsigned":
		return m.selfSigned(hostname)
	case "acme":
		return nil, ErrACMEManaged
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidTLSMode, m.cfg.Mode)
	}
}

func serverConfig(cert cryptotls.Certificate) *cryptotls.Config {
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		MinVersion:   cryptotls.VersionTLS12,
	}
}

func (m *Manager) static() (*cryptotls.Config, error) {
	if m.cfg.CertFile == "" || m.cfg.KeyFile == "" {
		return nil, ErrMissingCert
	}
	cert, err := cryptotls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	m.logger.Info("loaded static TLS certificate", "cert_file", m.cfg.CertFile)
	return serverConfig(cert), nil
}

// selfSigned reuses a stored certificate while it is valid for hostname and
// not close to expiry; otherwise it writes a fresh one.
func (m *Manager) selfSigned(hostname string) (*cryptotls.Config, error) {
	dir := m.cfg.SelfSignedDir
	if dir == "" {
		dir = ".familyagenda/certs"
	}
	certFile := filepath.Join(dir, selfSignedCertFile)
	keyFile := filepath.Join(dir, selfSignedKeyFile)

	if cert, err := cryptotls.LoadX509KeyPair(certFile, keyFile); err == nil {
		if m.reusable(cert, hostname) {
			m.logger.Info("loaded existing self-signed certificate", "cert_file", certFile)
			return serverConfig(cert), nil
		}
		m.logger.Info("self-signed certificate expiring or hostname changed, regenerating", "hostname", hostname)
	}

	cert, err := m.generate(hostname, certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return serverConfig(cert), nil
}

func (m *Manager) reusable(cert cryptotls.Certificate, hostname string) bool {
	if len(cert.Certificate) == 0 {
		return false
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return false
	}
	if m.now().Add(selfSignedRenewBefore).After(leaf.NotAfter) {
		return false
	}
	return leaf.VerifyHostname(hostname) == nil
}

func (m *Manager) generate(hostname, certFile, keyFile string) (cryptotls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to generate serial: %w", err)
	}

	now := m.now()
	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Family Agenda (self-signed)"},
			CommonName:   hostname,
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(selfSignedLifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	if ip := net.ParseIP(hostname); ip != nil {
		tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
	} else if hostname != "" && hostname != "localhost" {
		tmpl.DNSNames = append(tmpl.DNSNames, hostname)
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to marshal key: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.MkdirAll(filepath.Dir(certFile), 0o700); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to create cert directory: %w", err)
	}
	if err := os.WriteFile(certFile, certPEM, 0o644); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to write key: %w", err)
	}

	m.logger.Info("generated self-signed certificate", "cert_file", certFile, "expires", tmpl.NotAfter)
	return cryptotls.X509KeyPair(certPEM, keyPEM)
}
