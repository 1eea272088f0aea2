package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP address from the request.
// X-Forwarded-For and X-Real-IP are only consulted when trustProxy is set;
// otherwise they are attacker-controlled and the direct connection address
// is used.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := leftmostValidIP(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" && net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port (some test servers).
		return r.RemoteAddr
	}
	return host
}

// leftmostValidIP returns the first valid IP in an X-Forwarded-For list
// ("client, proxy1, proxy2"), or "" when none parses.
func leftmostValidIP(xff string) string {
	if xff == "" {
		return ""
	}
	for part := range strings.SplitSeq(xff, ",") {
		ip := strings.TrimSpace(part)
		if net.ParseIP(ip) != nil {
			return ip
		}
	}
	return ""
}
