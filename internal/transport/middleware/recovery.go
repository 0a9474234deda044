package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/offszn/marketplace/internal"
)

// RecoveryMiddleware turns a handler panic into a 500 AppError body.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("panic recovered",
					"request_id", w.Header().Get(RequestIDHeader),
					"panic", rec,
					"route", r.Method+" "+r.URL.Path,
					"stack", string(debug.Stack()))

				status, body := internal.NewInternalError("internal server error", fmt.Errorf("panic: %v", rec)).ToHTTPResponse()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(body)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
