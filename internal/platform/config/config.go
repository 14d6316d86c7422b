// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// PublicOrigin is the scheme + host + port clients reach this instance at.
	// Example: "https://agenda.example.org"
	PublicOrigin string `toml:"public_origin"`

	// ListenAddr is the address to listen on. Example: ":9300"
	ListenAddr string `toml:"listen_addr"`

	Server       ServerConfig       `toml:"server"`
	TLS          TLSConfig          `toml:"tls"`
	OutboundHTTP OutboundHTTPConfig `toml:"outbound_http"`
	Logging      LoggingConfig      `toml:"logging"`
	Cache        CacheConfig        `toml:"cache"`
	Store        StoreConfig        `toml:"store"`
	Identity     IdentityConfig     `toml:"identity"`
	Family       FamilyConfig       `toml:"family"`
	Mail         MailConfig         `toml:"mail"`
	Offline      OfflineConfig      `toml:"offline"`

	// HTTP holds per-service and per-interceptor raw config maps.
	HTTP HTTPConfig `toml:"http"`
}

// HTTPConfig holds per-service HTTP configuration.
// Services are configured under [http.services.<svcname>].
// Interceptors are configured under [http.interceptors.<name>].
type HTTPConfig struct {
	Services map[string]map[string]any `toml:"services"`

	// Ratelimit profiles live at [http.interceptors.ratelimit.profiles.<name>].
	// Per-service opt-in is [http.services.<svc>.ratelimit] with profile = "<name>".
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// TrustedProxies lists CIDRs whose forwarded client address headers are honored.
	TrustedProxies []string `toml:"trusted_proxies"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `toml:"level"`

	// AllowSensitive permits logging of emails and token fingerprints.
	AllowSensitive bool `toml:"allow_sensitive"`
}

// CacheConfig selects the shared cache driver.
type CacheConfig struct {
	// Driver is "memory" or "redis".
	Driver string `toml:"driver"`

	// Drivers holds per-driver settings, e.g. [cache.drivers.redis].
	Drivers map[string]any `toml:"drivers"`
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	// Driver is one of memory, sqlite, mirror.
	Driver string `toml:"driver"`

	// DataDir holds the database file and the mirror export.
	DataDir string `toml:"data_dir"`

	// MirrorInviteEmails controls whether invite emails appear in the JSON mirror.
	MirrorInviteEmails bool `toml:"mirror_invite_emails"`
}

// IdentityConfig points at the hosted identity provider.
type IdentityConfig struct {
	// URL is the provider base URL (SUPABASE_URL).
	URL string `toml:"url"`

	// AnonKey is the public API key sent as "apikey" on user lookups.
	AnonKey string `toml:"anon_key"`

	// ServiceKey is the privileged key used for admin invites.
	ServiceKey string `toml:"service_key"`

	// JWTSecret verifies HS256 access tokens locally when Verifier is "jwt".
	JWTSecret string `toml:"jwt_secret"`

	// Verifier is "jwt" (local HS256) or "remote" (provider user endpoint).
	Verifier string `toml:"verifier"`

	// Inviter is "remote" (provider admin invite) or "smtp" (mail section).
	Inviter string `toml:"inviter"`

	// VerifyCacheTTLSeconds caches successful verifications; 0 disables.
	VerifyCacheTTLSeconds int `toml:"verify_cache_ttl_seconds"`
}

// FamilyConfig identifies the single family served by this deployment.
type FamilyConfig struct {
	// ID is the configured family identifier (FAMILY_ID).
	ID string `toml:"id"`

	// OwnerEmail is the one identity with invite and removal rights.
	OwnerEmail string `toml:"owner_email"`

	// SiteURL is the redirect target embedded in invite emails.
	SiteURL string `toml:"site_url"`
}

// MailConfig configures the SMTP inviter.
type MailConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

// OfflineConfig configures the offline cache worker fronting the web client.
type OfflineConfig struct {
	Enabled bool `toml:"enabled"`

	// CacheName is the versioned cache name; bump it to retire old caches.
	CacheName string `toml:"cache_name"`

	// CoreAssets are fetched into the cache at install time.
	CoreAssets []string `toml:"core_assets"`

	// Upstream is the origin of the web client (e.g. "http://127.0.0.1:3000").
	Upstream string `toml:"upstream"`

	// WebRoot serves the web client from a directory when Upstream is empty.
	WebRoot string `toml:"web_root"`

	// EntryTTLSeconds bounds how long a cached response is kept.
	EntryTTLSeconds int `toml:"entry_ttl_seconds"`

	// SessionCookie is the presence cookie checked by the route guard.
	SessionCookie string `toml:"session_cookie"`

	// GuardExempt lists path prefixes the route guard never redirects.
	GuardExempt []string `toml:"guard_exempt"`
}

// TLSConfig holds TLS-related settings.
type TLSConfig struct {
	// Mode is one of: off, static, selfsigned, acme
	Mode string `toml:"mode"`

	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`

	// HTTPPort serves ACME challenges and HTTPS redirects in acme mode.
	HTTPPort int `toml:"http_port"`

	HTTPSPort int `toml:"https_port"`

	SelfSignedDir string `toml:"self_signed_dir"`

	ACME ACMEConfig `toml:"acme"`
}

// ACMEConfig holds ACME/Let's Encrypt settings.
type ACMEConfig struct {
	Email      string `toml:"email"`
	Domain     string `toml:"domain"`
	Directory  string `toml:"directory"`
	StorageDir string `toml:"storage_dir"`
	UseStaging bool   `toml:"use_staging"`
}

// OutboundHTTPConfig holds settings for outbound HTTP requests.
type OutboundHTTPConfig struct {
	// SSRFMode is one of: strict, off
	SSRFMode string `toml:"ssrf_mode"`

	TimeoutMS        int   `toml:"timeout_ms"`
	ConnectTimeoutMS int   `toml:"connect_timeout_ms"`
	MaxRedirects     int   `toml:"max_redirects"`
	MaxResponseBytes int64 `toml:"max_response_bytes"`

	// InsecureSkipVerify disables TLS verification (dev-only)
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`

	TLSRootCAFile string `toml:"tls_root_ca_file"`
	TLSRootCADir  string `toml:"tls_root_ca_dir"`
}

// BuildServiceConfig returns a copy of [http.services.<name>], or nil.
func (c *Config) BuildServiceConfig(serviceName string) map[string]any {
	svcCfg, ok := c.HTTP.Services[serviceName]
	if !ok {
		return nil
	}
	result := make(map[string]any, len(svcCfg))
	for k, v := range svcCfg {
		result[k] = v
	}
	return result
}

// Redacted returns a printable form of the config with secrets masked.
func (c *Config) Redacted() string {
	r := *c
	r.Identity.AnonKey = mask(r.Identity.AnonKey)
	r.Identity.ServiceKey = mask(r.Identity.ServiceKey)
	r.Identity.JWTSecret = mask(r.Identity.JWTSecret)
	r.Mail.Password = mask(r.Mail.Password)
	if !r.Logging.AllowSensitive {
		r.Family.OwnerEmail = mask(r.Family.OwnerEmail)
	}
	r.Cache.Drivers = nil
	r.HTTP = HTTPConfig{}

	services := make([]string, 0, len(c.HTTP.Services))
	for name := range c.HTTP.Services {
		services = append(services, name)
	}
	return fmt.Sprintf("%+v services=%v", r, services)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// PublicHost returns the lowercased hostname of PublicOrigin, or "localhost".
func (c *Config) PublicHost() string {
	u, err := url.Parse(c.PublicOrigin)
	if err != nil || u.Hostname() == "" {
		return "localhost"
	}
	return strings.ToLower(u.Hostname())
}
