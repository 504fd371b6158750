package server

import (
	"net"
	"net/http"
)

// adminOnly guards the operator endpoints. Callers must be on loopback
// unless AdminAllowRemote is set, and browser requests must come from an
// allowed origin.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.AdminAllowRemote && !isLoopback(r.RemoteAddr) {
			s.log.Warnw("admin", "error", "non-loopback caller", "addr", r.RemoteAddr, "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if r.Header.Get("Origin") != "" && !s.cfg.originAllowed(r) {
			s.log.Warnw("admin", "error", "origin not allowed", "origin", r.Header.Get("Origin"), "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
