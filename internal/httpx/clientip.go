package httpx

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address of the client that sent r. When trustProxy is
// set, exactly one proxy hop is trusted: the right-most X-Forwarded-For entry,
// which that proxy appended, takes precedence, then X-Real-IP. Entries to its
// left are written by the client and are never used.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := lastForwarded(r.Header.Values("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// lastForwarded returns the last non-empty entry across all X-Forwarded-For
// header lines, or "" when that entry is not an IP address.
func lastForwarded(values []string) string {
	for i := len(values) - 1; i >= 0; i-- {
		entries := strings.Split(values[i], ",")
		for j := len(entries) - 1; j >= 0; j-- {
			ip := strings.TrimSpace(entries[j])
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) == nil {
				return ""
			}
			return ip
		}
	}
	return ""
}
