package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// CrossOrigin rejects state-changing requests that a browser reports as
// sent by another site, using Sec-Fetch-Site or, failing that, Origin.
// GET, HEAD and OPTIONS pass through.
func CrossOrigin(logger *slog.Logger) func(http.Handler) http.Handler {
	cop := http.NewCrossOriginProtection()
	cop.SetDenyHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Warn("cross-origin request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"origin", r.Header.Get("Origin"),
			"sec_fetch_site", r.Header.Get("Sec-Fetch-Site"),
		)
		forbidden(w, r, "Cross-origin request rejected")
	}))
	return cop.Handler
}

// LoopbackHost rejects requests whose Host header does not name this
// machine. A page on a rebound DNS name is same-origin with itself, so
// Origin checks alone do not stop it.
func LoopbackHost(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isLoopbackHost(r.Host) {
				logger.Warn("unexpected host rejected", "host", r.Host, "path", r.URL.Path)
				forbidden(w, r, "Unexpected host")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isLoopbackHost(hostport string) bool {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func forbidden(w http.ResponseWriter, r *http.Request, msg string) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"` + msg + `"}` + "\n"))
		return
	}
	http.Error(w, msg, http.StatusForbidden)
}
