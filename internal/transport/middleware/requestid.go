package middleware

import (
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"

	"github.com/offszn/marketplace/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// RequestID reuses chi's request id when present, otherwise the caller's
// X-Request-ID or a fresh UUID, and adds it to the request-scoped logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		if reqID == "" {
			reqID = r.Header.Get(RequestIDHeader)
		}
		if reqID == "" {
			reqID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "request_id", reqID)

		w.Header().Set(RequestIDHeader, reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
