// Package client provides the outbound HTTP client used to reach the
// identity provider and the web client upstream. In strict mode it refuses
// private, loopback and link-local destinations, both before the request
// and again at dial time.
package client

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/config"
	tlsutil "github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/tls"
)

var (
	ErrSSRFBlocked         = errors.New("request blocked by SSRF protection")
	ErrTooManyRedirects    = errors.New("too many redirects")
	ErrResponseTooLarge    = errors.New("response body too large")
	ErrInvalidURL          = errors.New("invalid URL")
	ErrRedirectBlocked     = errors.New("redirect blocked by policy")
	ErrRedirectNotSameHost = errors.New("redirect to different host blocked")
	ErrRedirectDowngrade   = errors.New("redirect from https to http blocked")
	ErrHostUnresolvable    = errors.New("host could not be resolved")
)

// HTTPClient is the interface consumers depend on.
type HTTPClient interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Resolver abstracts DNS resolution for testing.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Client is an HTTP client with SSRF protection and bounded behavior.
type Client struct {
	cfg        config.OutboundHTTPConfig
	httpClient *http.Client
	resolver   Resolver
}

// DefaultConfig is used when New receives nil.
func DefaultConfig() *config.OutboundHTTPConfig {
	return &config.OutboundHTTPConfig{
		SSRFMode:         "strict",
		TimeoutMS:        10000,
		ConnectTimeoutMS: 2000,
		MaxRedirects:     1,
		MaxResponseBytes: 1048576,
	}
}

// New creates a client. Proxy environment variables are ignored.
// Extra root CAs come from tls_root_ca_file and tls_root_ca_dir.
func New(cfg *config.OutboundHTTPConfig) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &Client{cfg: *cfg}
	if c.cfg.MaxResponseBytes <= 0 {
		c.cfg.MaxResponseBytes = 1048576
	}

	roots, err := tlsutil.BuildRootCAPool(cfg.TLSRootCAFile, cfg.TLSRootCADir)
	if err != nil {
		return nil, fmt.Errorf("outbound http: %w", err)
	}

	dialer := &net.Dialer{
		Timeout: time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
	}

	transport := &http.Transport{
		Proxy: nil,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if c.strict() {
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					host = addr
				}
				if err := c.checkHost(ctx, host); err != nil {
					return nil, err
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &cryptotls.Config{
			RootCAs:            roots,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			MinVersion:         cryptotls.VersionTLS12,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	c.httpClient = &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.TimeoutMS) * time.Millisecond,
		// Redirects are followed manually under the same-host policy.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return c, nil
}

// SetResolver sets a custom DNS resolver (for testing).
func (c *Client) SetResolver(r Resolver) {
	c.resolver = r
}

func (c *Client) strict() bool {
	return c.cfg.SSRFMode == "strict"
}

func (c *Client) lookup(ctx context.Context, host string) ([]net.IPAddr, error) {
	if c.resolver != nil {
		return c.resolver.LookupIPAddr(ctx, host)
	}
	return net.DefaultResolver.LookupIPAddr(ctx, host)
}

// checkHost rejects hosts that are, or resolve to, non-public addresses.
// Unresolvable hosts are rejected.
func (c *Client) checkHost(ctx context.Context, host string) error {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	switch strings.ToLower(host) {
	case "localhost", "localhost.localdomain":
		return fmt.Errorf("%w: localhost is blocked", ErrSSRFBlocked)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if !isPublic(addr) {
			return fmt.Errorf("%w: IP %s is blocked", ErrSSRFBlocked, addr)
		}
		return nil
	}

	ips, err := c.lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrHostUnresolvable, host, err)
	}
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip.IP)
		if !ok || !isPublic(addr.Unmap()) {
			return fmt.Errorf("%w: %s resolves to blocked IP %s", ErrSSRFBlocked, host, ip.IP)
		}
	}
	return nil
}

func isPublic(a netip.Addr) bool {
	a = a.Unmap()
	return a.IsValid() &&
		!a.IsLoopback() &&
		!a.IsPrivate() &&
		!a.IsLinkLocalUnicast() &&
		!a.IsLinkLocalMulticast() &&
		!a.IsUnspecified() &&
		!a.IsMulticast()
}

// Do performs req with SSRF checks. GET and HEAD follow same-host redirects
// up to max_redirects; other methods return the 3xx response as is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.strict() {
		if err := c.checkHost(req.Context(), req.URL.Hostname()); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if isRedirect(resp.StatusCode) && (req.Method == http.MethodGet || req.Method == http.MethodHead) {
		return c.followRedirect(req, resp, 0)
	}
	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, urlStr string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return c.Do(req)
}

func (c *Client) followRedirect(origReq *http.Request, resp *http.Response, depth int) (*http.Response, error) {
	defer resp.Body.Close()
	ctx := origReq.Context()

	maxRedirects := c.cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 1
	}
	if depth >= maxRedirects {
		return nil, fmt.Errorf("%w: exceeded limit of %d", ErrTooManyRedirects, maxRedirects)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("%w: no Location header", ErrRedirectBlocked)
	}
	target, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid Location: %v", ErrRedirectBlocked, err)
	}
	target = origReq.URL.ResolveReference(target)

	if origReq.URL.Scheme == "https" && target.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s -> %s", ErrRedirectDowngrade, origReq.URL.Scheme, target.Scheme)
	}
	if !isSameHost(origReq.URL, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrRedirectNotSameHost, origReq.URL.Host, target.Host)
	}
	if c.strict() {
		if err := c.checkHost(ctx, target.Hostname()); err != nil {
			return nil, err
		}
	}

	next, err := http.NewRequestWithContext(ctx, origReq.Method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedirectBlocked, err)
	}
	// Same host, so credentials may follow.
	for _, h := range []string{"User-Agent", "Accept", "Authorization", "Apikey"} {
		if v := origReq.Header.Get(h); v != "" {
			next.Header.Set(h, v)
		}
	}

	nextResp, err := c.httpClient.Do(next)
	if err != nil {
		return nil, err
	}
	if isRedirect(nextResp.StatusCode) {
		return c.followRedirect(next, nextResp, depth+1)
	}
	return nextResp, nil
}

// isSameHost compares hostnames case-insensitively and effective ports,
// so https://h and https://h:443 match.
func isSameHost(a, b *url.URL) bool {
	return strings.EqualFold(a.Hostname(), b.Hostname()) && effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// ReadBody reads at most max_response_bytes from resp and closes it.
func (c *Client) ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.cfg.MaxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

// GetJSON performs a GET and returns the size-limited body.
func (c *Client) GetJSON(ctx context.Context, urlStr string) ([]byte, *http.Response, error) {
	resp, err := c.Get(ctx, urlStr)
	if err != nil {
		return nil, nil, err
	}
	body, err := c.ReadBody(resp)
	return body, resp, err
}

// IsSSRFError reports whether err came from SSRF blocking.
func IsSSRFError(err error) bool {
	return errors.Is(err, ErrSSRFBlocked) || errors.Is(err, ErrHostUnresolvable)
}

// IsRedirectError reports whether err came from the redirect policy.
func IsRedirectError(err error) bool {
	return errors.Is(err, ErrRedirectBlocked) ||
		errors.Is(err, ErrRedirectNotSameHost) ||
		errors.Is(err, ErrRedirectDowngrade) ||
		errors.Is(err, ErrTooManyRedirects)
}

// ContextClient adapts Client to HTTPClient.
type ContextClient struct {
	client *Client
}

// NewContextClient creates a ContextClient adapter.
func NewContextClient(c *Client) *ContextClient {
	return &ContextClient{client: c}
}

// Do performs req under ctx.
func (c *ContextClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(ctx))
}

// Client returns the wrapped client.
func (c *ContextClient) Client() *Client {
	return c.client
}

var _ HTTPClient = (*ContextClient)(nil)
