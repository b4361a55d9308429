/**
 * @description
 * Request helpers for the HTTP layer. The verifier identity recorded on a
 * completed transaction is the caller's network address, so client IP
 * extraction has to survive the usual proxy headers.
 *
 * @dependencies
 * - net, net/http, strings: Standard Go libraries.
 */

package api

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller's address, preferring proxy headers over the
// socket address. X-Forwarded-For may carry a chain; the first hop is the
// original client.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if net.ParseIP(realIP) != nil {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port, e.g. in tests.
		if net.ParseIP(r.RemoteAddr) != nil {
			return r.RemoteAddr
		}
		return "0.0.0.0"
	}
	if net.ParseIP(host) != nil {
		return host
	}
	return "0.0.0.0"
}
