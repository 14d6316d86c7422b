// Package realip resolves the client address of a request, honoring
// forwarding headers only when the direct peer is a trusted proxy.
package realip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies holds the prefixes whose forwarding headers are believed.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// NewTrustedProxies parses CIDRs or bare addresses. Unparseable entries are skipped.
func NewTrustedProxies(entries []string) *TrustedProxies {
	tp := &TrustedProxies{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if p, err := netip.ParsePrefix(e); err == nil {
			tp.prefixes = append(tp.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			tp.prefixes = append(tp.prefixes, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return tp
}

// IsTrusted reports whether addr falls inside a trusted prefix.
func (tp *TrustedProxies) IsTrusted(addr netip.Addr) bool {
	if tp == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range tp.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientAddr returns the client address. X-Forwarded-For is walked from the
// right, skipping trusted hops; X-Real-IP is used when XFF is absent.
func (tp *TrustedProxies) ClientAddr(r *http.Request) netip.Addr {
	direct := peerAddr(r.RemoteAddr)
	if !tp.IsTrusted(direct) {
		return direct
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			a, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			a = a.Unmap()
			if !tp.IsTrusted(a) {
				return a
			}
			direct = a
		}
		return direct
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if a, err := netip.ParseAddr(xri); err == nil {
			return a.Unmap()
		}
	}
	return direct
}

// GetClientIPString returns the client address for logging and rate-limit keys.
func (tp *TrustedProxies) GetClientIPString(r *http.Request) string {
	a := tp.ClientAddr(r)
	if !a.IsValid() {
		return "unknown"
	}
	return a.String()
}

func peerAddr(remote string) netip.Addr {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return a.Unmap()
}
