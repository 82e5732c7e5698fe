package httputil

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/caravelhq/storefront/pkg/contextkeys"
)

// RequestIDHeader is the inbound/outbound header carrying the request ID
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns every request a UUID (or propagates the caller's)
// and stores it in the request context for logging and auditing.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
