package tls

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/config"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/logutil"
	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
)

const (
	acmeStagingURL    = "https://acme-staging-v02.api.letsencrypt.org/directory"
	acmeProductionURL = "https://acme-v02.api.letsencrypt.org/directory"

	challengePrefix = "/.well-known/acme-challenge/"
	challengeTTL    = 10 * time.Minute

	// RenewBefore is how close to expiry RenewIfDue obtains a new certificate.
	RenewBefore = 30 * 24 * time.Hour

	accountFile    = "account.json"
	accountKeyFile = "account.key"
	certFile       = "cert.pem"
	keyFile        = "key.pem"
)

var ErrNoCertificate = errors.New("no certificate available")

// acmeAccount satisfies lego's registration.User.
type acmeAccount struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration"`
	key          crypto.PrivateKey
}

func (a *acmeAccount) GetEmail() string                        { return a.Email }
func (a *acmeAccount) GetRegistration() *registration.Resource { return a.Registration }
func (a *acmeAccount) GetPrivateKey() crypto.PrivateKey        { return a.key }

type tokenEntry struct {
	keyAuth   string
	expiresAt time.Time
}

// HTTP01Provider keeps HTTP-01 challenge tokens in memory. The server
// listener answers challenges through ACMEManager.ChallengeHandler.
type HTTP01Provider struct {
	tokens sync.Map // token -> tokenEntry
	now    func() time.Time
}

func (p *HTTP01Provider) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Present stores the key authorization for token.
func (p *HTTP01Provider) Present(_, token, keyAuth string) error {
	p.tokens.Store(token, tokenEntry{keyAuth: keyAuth, expiresAt: p.clock().Add(challengeTTL)})
	return nil
}

// CleanUp forgets token.
func (p *HTTP01Provider) CleanUp(_, token, _ string) error {
	p.tokens.Delete(token)
	return nil
}

func (p *HTTP01Provider) lookup(token string) (string, bool) {
	v, ok := p.tokens.Load(token)
	if !ok {
		return "", false
	}
	entry := v.(tokenEntry)
	if p.clock().After(entry.expiresAt) {
		p.tokens.Delete(token)
		return "", false
	}
	return entry.keyAuth, true
}

// ACMEManager obtains and renews a certificate for one domain via lego.
type ACMEManager struct {
	cfg      *config.ACMEConfig
	logger   *slog.Logger
	rootCAs  *x509.CertPool
	provider *HTTP01Provider

	mu     sync.RWMutex
	cert   *cryptotls.Certificate
	leaf   *x509.Certificate
	client *lego.Client
}

// NewACMEManager creates an ACME manager. rootCAs is used to reach the ACME
// directory; nil means system roots.
func NewACMEManager(cfg *config.ACMEConfig, logger *slog.Logger, rootCAs *x509.CertPool) *ACMEManager {
	return &ACMEManager{
		cfg:      cfg,
		logger:   logutil.NoopIfNil(logger),
		rootCAs:  rootCAs,
		provider: &HTTP01Provider{},
	}
}

func (m *ACMEManager) path(name string) string {
	return filepath.Join(m.cfg.StorageDir, name)
}

// Init loads a stored certificate or, when none is usable, registers an
// account and obtains one. The challenge handler must already be serving.
func (m *ACMEManager) Init(ctx context.Context) error {
	if m.cfg.Domain == "" {
		return errors.New("ACME domain is required")
	}
	if m.cfg.Email == "" {
		return errors.New("ACME email is required")
	}
	if err := os.MkdirAll(m.cfg.StorageDir, 0o700); err != nil {
		return fmt.Errorf("failed to create ACME storage dir: %w", err)
	}

	if cert, err := cryptotls.LoadX509KeyPair(m.path(certFile), m.path(keyFile)); err == nil {
		m.setCertificate(&cert)
		m.logger.Info("loaded existing ACME certificate", "domain", m.cfg.Domain)
		return nil
	}

	m.logger.Info("no stored certificate, contacting ACME server", "domain", m.cfg.Domain)
	return m.obtain(ctx)
}

func (m *ACMEManager) directoryURL() string {
	switch {
	case m.cfg.Directory != "":
		return m.cfg.Directory
	case m.cfg.UseStaging:
		return acmeStagingURL
	default:
		return acmeProductionURL
	}
}

// legoClient builds the client lazily so a stored certificate needs no
// network at startup.
func (m *ACMEManager) legoClient() (*lego.Client, error) {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	account, err := m.loadAccount()
	if err != nil {
		return nil, err
	}

	legoCfg := lego.NewConfig(account)
	legoCfg.CADirURL = m.directoryURL()
	legoCfg.Certificate.KeyType = certcrypto.EC256
	if m.rootCAs != nil {
		legoCfg.HTTPClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &cryptotls.Config{RootCAs: m.rootCAs, MinVersion: cryptotls.VersionTLS12},
			},
		}
	}

	client, err = lego.NewClient(legoCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ACME client: %w", err)
	}
	if err := client.Challenge.SetHTTP01Provider(m.provider); err != nil {
		return nil, fmt.Errorf("failed to set HTTP-01 provider: %w", err)
	}

	if account.Registration == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return nil, fmt.Errorf("failed to register ACME account: %w", err)
		}
		account.Registration = reg
		if err := m.saveAccount(account); err != nil {
			m.logger.Warn("failed to save ACME account", "error", err)
		}
	}

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
	return client, nil
}

func (m *ACMEManager) obtain(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := m.legoClient()
	if err != nil {
		return err
	}

	res, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{m.cfg.Domain},
		Bundle:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to obtain certificate: %w", err)
	}

	cert, err := cryptotls.X509KeyPair(res.Certificate, res.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}
	if err := os.WriteFile(m.path(certFile), res.Certificate, 0o644); err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}
	if err := os.WriteFile(m.path(keyFile), res.PrivateKey, 0o600); err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}

	m.setCertificate(&cert)
	m.logger.Info("obtained ACME certificate", "domain", m.cfg.Domain)
	return nil
}

func (m *ACMEManager) setCertificate(cert *cryptotls.Certificate) {
	var leaf *x509.Certificate
	if len(cert.Certificate) > 0 {
		leaf, _ = x509.ParseCertificate(cert.Certificate[0])
	}
	m.mu.Lock()
	m.cert = cert
	m.leaf = leaf
	m.mu.Unlock()
}

// RenewIfDue obtains a fresh certificate when the current one expires
// within RenewBefore.
func (m *ACMEManager) RenewIfDue(ctx context.Context, now time.Time) (bool, error) {
	m.mu.RLock()
	leaf := m.leaf
	m.mu.RUnlock()
	if leaf != nil && now.Add(RenewBefore).Before(leaf.NotAfter) {
		return false, nil
	}
	if err := m.obtain(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// RunRenewals checks for renewal every interval until ctx is done.
func (m *ACMEManager) RunRenewals(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			renewed, err := m.RenewIfDue(ctx, now)
			if err != nil {
				m.logger.Error("ACME renewal failed", "domain", m.cfg.Domain, "error", err)
			} else if renewed {
				m.logger.Info("ACME certificate renewed", "domain", m.cfg.Domain)
			}
		}
	}
}

// GetCertificate is suitable for tls.Config.GetCertificate.
func (m *ACMEManager) GetCertificate(*cryptotls.ClientHelloInfo) (*cryptotls.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cert == nil {
		return nil, ErrNoCertificate
	}
	return m.cert, nil
}

// ServerConfig returns a tls.Config backed by this manager.
func (m *ACMEManager) ServerConfig() *cryptotls.Config {
	return &cryptotls.Config{
		GetCertificate: m.GetCertificate,
		MinVersion:     cryptotls.VersionTLS12,
	}
}

// ChallengeHandler answers /.well-known/acme-challenge/{token}.
func (m *ACMEManager) ChallengeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.URL.Path, challengePrefix)
		if !ok || token == "" || m.provider == nil {
			http.NotFound(w, r)
			return
		}
		keyAuth, found := m.provider.lookup(token)
		if !found {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(keyAuth))
	})
}

func (m *ACMEManager) loadAccount() (*acmeAccount, error) {
	data, err := os.ReadFile(m.path(accountFile))
	if err == nil {
		keyPEM, keyErr := os.ReadFile(m.path(accountKeyFile))
		account := &acmeAccount{}
		if keyErr == nil && json.Unmarshal(data, account) == nil {
			if key, err := certcrypto.ParsePEMPrivateKey(keyPEM); err == nil {
				account.key = key
				return account, nil
			}
		}
		m.logger.Warn("stored ACME account unreadable, creating a new one")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate account key: %w", err)
	}
	return &acmeAccount{Email: m.cfg.Email, key: key}, nil
}

func (m *ACMEManager) saveAccount(account *acmeAccount) error {
	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path(accountFile), data, 0o600); err != nil {
		return err
	}
	return os.WriteFile(m.path(accountKeyFile), certcrypto.PEMEncode(account.key), 0o600)
}
