package mw

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the extension's pages to call the API. With no configured
// origins every origin is allowed, which is acceptable only because the
// listener is additionally gated to loopback CIDRs.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}
	if len(allowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return cors.Handler(opts)
}
