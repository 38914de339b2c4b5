package web

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/importer/internal/core"
)

// requestInfo records caller details in the request context for audit
// entries. It runs after RequestID and TrustedRealIP.
func requestInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.WithRequestInfo(r.Context(), core.RequestInfo{
			RequestID: middleware.GetReqID(r.Context()),
			IPAddress: r.RemoteAddr,
			UserAgent: r.UserAgent(),
			Source:    "http",
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
