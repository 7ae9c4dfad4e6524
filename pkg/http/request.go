package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig names the proxy ranges whose forwarding headers are believed.
type IPConfig struct {
	TrustedProxies []string // CIDR ranges
}

func (c *IPConfig) trusts(ip string) bool {
	if c == nil || len(c.TrustedProxies) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}

	for _, cidr := range c.TrustedProxies {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the caller's IP for attempt records and rate
// keys. X-Forwarded-For and X-Real-IP are believed only when the immediate
// peer is a configured trusted proxy; otherwise a client could stamp any
// address it likes into its own attempt trail.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := remoteIP(r)

	if !config.trusts(peer) {
		return peer
	}

	// leftmost valid entry is the original client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, candidate := range strings.Split(xff, ",") {
			candidate = strings.TrimSpace(candidate)
			if _, err := netip.ParseAddr(candidate); err == nil {
				return candidate
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}

	return peer
}

func remoteIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
