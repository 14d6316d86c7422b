package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is an optional TOML file. A missing or invalid file fails the load.
	ConfigPath string

	// ModeFlag overrides the mode from the file.
	ModeFlag string

	FlagOverrides FlagOverrides

	// Getenv reads the environment overlay. Defaults to os.Getenv.
	Getenv func(string) string

	// Logger receives warnings such as undecoded keys. Defaults to slog.Default().
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override file and environment values.
// Empty strings are treated as unset.
type FlagOverrides struct {
	ListenAddr   string
	PublicOrigin string
	TLSMode      string
	LoggingLevel string
	StoreDriver  string
	DataDir      string
	CacheDriver  string
	FamilyID     string
	OwnerEmail   string
}

// envBinding maps environment variables onto config fields. Earlier names win.
type envBinding struct {
	names []string
	set   func(*Config, string)
}

var envBindings = []envBinding{
	{[]string{"FAMILY_ID", "NEXT_PUBLIC_FAMILY_ID"}, func(c *Config, v string) { c.Family.ID = v }},
	{[]string{"OWNER_EMAIL"}, func(c *Config, v string) { c.Family.OwnerEmail = v }},
	{[]string{"SITE_URL", "NEXT_PUBLIC_SITE_URL"}, func(c *Config, v string) { c.Family.SiteURL = v }},
	{[]string{"SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL"}, func(c *Config, v string) { c.Identity.URL = v }},
	{[]string{"SUPABASE_ANON_KEY", "NEXT_PUBLIC_SUPABASE_ANON_KEY"}, func(c *Config, v string) { c.Identity.AnonKey = v }},
	{[]string{"SUPABASE_SERVICE_ROLE_KEY"}, func(c *Config, v string) { c.Identity.ServiceKey = v }},
	{[]string{"SUPABASE_JWT_SECRET"}, func(c *Config, v string) { c.Identity.JWTSecret = v }},
}

// Load loads configuration with the following precedence:
//  1. effective mode: --mode flag > mode in config file > strict
//  2. mode preset defaults
//  3. TOML file values
//  4. environment overlay
//  5. CLI flags
//  6. validation
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	var raw string
	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		raw = string(data)
	}

	var head struct {
		Mode string `toml:"mode"`
	}
	if _, err := toml.Decode(raw, &head); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
	}

	modeStr := head.Mode
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}
	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	// Decoding onto the preset only touches keys present in the file.
	md, err := toml.Decode(raw, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			if strings.HasPrefix(k.String(), "http.") || strings.HasPrefix(k.String(), "cache.drivers") {
				continue
			}
			keys = append(keys, k.String())
		}
		if len(keys) > 0 {
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}
	cfg.Mode = string(mode)

	overlayEnv(cfg, getenv)
	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig returns production defaults.
func StrictConfig() *Config {
	return &Config{
		Mode:         string(ModeStrict),
		PublicOrigin: "https://localhost:9300",
		ListenAddr:   ":9300",
		Server: ServerConfig{
			TrustedProxies: []string{"127.0.0.0/8", "::1/128"},
		},
		TLS: TLSConfig{
			Mode:          "selfsigned",
			HTTPPort:      9380,
			HTTPSPort:     9300,
			SelfSignedDir: ".familyagenda/certs",
			ACME: ACMEConfig{
				Directory:  "https://acme-v02.api.letsencrypt.org/directory",
				StorageDir: ".familyagenda/acme",
			},
		},
		OutboundHTTP: OutboundHTTPConfig{
			SSRFMode:         "strict",
			TimeoutMS:        10000,
			ConnectTimeoutMS: 2000,
			MaxRedirects:     1,
			MaxResponseBytes: 1048576,
		},
		Logging: LoggingConfig{Level: "info"},
		Cache:   CacheConfig{Driver: "memory"},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".familyagenda/data",
		},
		Identity: IdentityConfig{
			Verifier:              "remote",
			Inviter:               "remote",
			VerifyCacheTTLSeconds: 60,
		},
		Mail: MailConfig{Port: 587},
		Offline: OfflineConfig{
			Enabled:         true,
			CacheName:       "agenda-familiar-v1",
			CoreAssets:      []string{"/", "/tarefas", "/calendario", "/manifest.webmanifest"},
			WebRoot:         "web",
			EntryTTLSeconds: 7 * 24 * 3600,
			SessionCookie:   "af_session",
			GuardExempt:     []string{"/login", "/_next", "/favicon", "/manifest", "/sw", "/api"},
		},
	}
}

// DevConfig returns development defaults: plain HTTP, no SSRF blocking,
// local JWT verification.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.PublicOrigin = "http://localhost:9300"
	cfg.TLS.Mode = "off"
	cfg.TLS.ACME.Directory = "https://acme-staging-v02.api.letsencrypt.org/directory"
	cfg.TLS.ACME.UseStaging = true
	cfg.OutboundHTTP.SSRFMode = "off"
	cfg.OutboundHTTP.MaxRedirects = 3
	cfg.OutboundHTTP.InsecureSkipVerify = true
	cfg.Logging.Level = "debug"
	cfg.Identity.Verifier = "jwt"
	cfg.Identity.VerifyCacheTTLSeconds = 0
	return cfg
}

func overlayEnv(cfg *Config, getenv func(string) string) {
	for _, b := range envBindings {
		for _, name := range b.names {
			if v := strings.TrimSpace(getenv(name)); v != "" {
				b.set(cfg, v)
				break
			}
		}
	}
}

func overlayFlags(cfg *Config, f FlagOverrides) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.ListenAddr, f.ListenAddr)
	set(&cfg.PublicOrigin, f.PublicOrigin)
	set(&cfg.TLS.Mode, f.TLSMode)
	set(&cfg.Logging.Level, f.LoggingLevel)
	set(&cfg.Store.Driver, f.StoreDriver)
	set(&cfg.Store.DataDir, f.DataDir)
	set(&cfg.Cache.Driver, f.CacheDriver)
	set(&cfg.Family.ID, f.FamilyID)
	set(&cfg.Family.OwnerEmail, f.OwnerEmail)
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q: must be one of %s", field, value, strings.Join(allowed, ", "))
}

// validate checks enum-like fields and URLs. A missing family id is not an
// error here; the membership endpoints report it per request.
func validate(cfg *Config) error {
	checks := []error{
		oneOf("tls.mode", cfg.TLS.Mode, "off", "static", "selfsigned", "acme"),
		oneOf("outbound_http.ssrf_mode", cfg.OutboundHTTP.SSRFMode, "strict", "off"),
		oneOf("logging.level", cfg.Logging.Level, "trace", "debug", "info", "warn", "error"),
		oneOf("cache.driver", cfg.Cache.Driver, "memory", "redis"),
		oneOf("store.driver", cfg.Store.Driver, "memory", "sqlite", "mirror"),
		oneOf("identity.verifier", cfg.Identity.Verifier, "jwt", "remote"),
		oneOf("identity.inviter", cfg.Identity.Inviter, "remote", "smtp"),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if err := validateOrigin("public_origin", cfg.PublicOrigin); err != nil {
		return err
	}
	if cfg.Identity.URL != "" {
		if err := validateOrigin("identity.url", cfg.Identity.URL); err != nil {
			return err
		}
	}
	if cfg.Family.SiteURL != "" {
		if _, err := url.ParseRequestURI(cfg.Family.SiteURL); err != nil {
			return fmt.Errorf("invalid family.site_url %q: %w", cfg.Family.SiteURL, err)
		}
	}
	if cfg.Store.Driver != "memory" && cfg.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required for store.driver %q", cfg.Store.Driver)
	}
	if cfg.Identity.Inviter == "smtp" && (cfg.Mail.Host == "" || cfg.Mail.From == "") {
		return fmt.Errorf("mail.host and mail.from are required when identity.inviter is smtp")
	}

	if cfg.Offline.Enabled {
		if strings.TrimSpace(cfg.Offline.CacheName) == "" {
			return fmt.Errorf("offline.cache_name must not be empty")
		}
		if cfg.Offline.Upstream == "" && cfg.Offline.WebRoot == "" {
			return fmt.Errorf("offline requires either offline.upstream or offline.web_root")
		}
		if cfg.Offline.Upstream != "" {
			if err := validateOrigin("offline.upstream", cfg.Offline.Upstream); err != nil {
				return err
			}
		}
		for _, p := range cfg.Offline.CoreAssets {
			if !strings.HasPrefix(p, "/") {
				return fmt.Errorf("offline.core_assets entry %q must be an absolute path", p)
			}
		}
	}

	return validateRatelimitConfig(cfg)
}

// validateRatelimitConfig checks that every [http.services.<svc>.ratelimit]
// profile reference names a profile under [http.interceptors.ratelimit.profiles].
func validateRatelimitConfig(cfg *Config) error {
	profiles := make(map[string]bool)
	if rlCfg, ok := cfg.HTTP.Interceptors["ratelimit"]; ok {
		if profilesRaw, ok := rlCfg["profiles"]; ok {
			profilesMap, ok := profilesRaw.(map[string]any)
			if !ok {
				return fmt.Errorf("http.interceptors.ratelimit.profiles must be a map")
			}
			for name, profile := range profilesMap {
				if _, ok := profile.(map[string]any); !ok {
					return fmt.Errorf("http.interceptors.ratelimit.profiles.%s must be a map", name)
				}
				profiles[name] = true
			}
		}
	}

	for svcName, svcCfg := range cfg.HTTP.Services {
		rlMap, ok := svcCfg["ratelimit"].(map[string]any)
		if !ok {
			continue
		}
		if profile, ok := rlMap["profile"].(string); ok && !profiles[profile] {
			return fmt.Errorf("http.services.%s.ratelimit references undefined profile %q", svcName, profile)
		}
	}
	return nil
}

// validateOrigin requires an absolute http(s) URL with a host and no
// userinfo, query or fragment.
func validateOrigin(field, origin string) error {
	if origin != strings.TrimSpace(origin) {
		return fmt.Errorf("invalid %s %q: must not contain leading or trailing whitespace", field, origin)
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s %q: scheme must be http or https", field, origin)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s %q: must include a host", field, origin)
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid %s %q: must not include userinfo, query or fragment", field, origin)
	}
	return nil
}
