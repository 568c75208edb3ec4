package middleware

import (
	"net"
	"net/http"
	"strings"
)

// CloudflareClientIP rewrites RemoteAddr from CF-Connecting-IP. Mount it only
// when every request reaches the service through Cloudflare; otherwise any
// caller can pick its own address.
func CloudflareClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); net.ParseIP(ip) != nil {
			r.RemoteAddr = ip
		}
		next.ServeHTTP(w, r)
	})
}
