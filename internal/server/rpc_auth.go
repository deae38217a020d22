package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/creachadair/jrpc2"
)

// unauthorizedBody is a JSON-RPC 2.0 error response so clients decode the
// rejection the same way as any other call failure.
var unauthorizedBody, _ = json.Marshal(map[string]any{
	"jsonrpc": "2.0",
	"id":      nil,
	"error": map[string]any{
		"code":    jrpc2.InvalidRequest,
		"message": "unauthorized",
	},
})

// authorize admits requests carrying the daemon secret as a bearer token.
// With no secret configured nothing is admitted.
func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !bearerMatches(r.Header.Get("Authorization"), s.cfg.Secret) {
			s.l.Warning("Rejected unauthenticated %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write(unauthorizedBody)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerMatches(header, secret string) bool {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || secret == "" || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) == 1
}
