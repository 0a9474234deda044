package rest

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"

	"github.com/offszn/marketplace/api"
	"github.com/offszn/marketplace/internal/auth"
	"github.com/offszn/marketplace/internal/order"
	"github.com/offszn/marketplace/internal/transport/middleware"
	"github.com/offszn/marketplace/internal/transport/swagger"
)

type Handlers struct {
	Auth  *auth.Handler
	RBAC  *auth.RBACAuthorization
	Order *order.Handler
}

type Options struct {
	AllowedOrigins []string
	// RequestLogging logs every request and response body.
	RequestLogging bool
	// HealthChecks run after the postgres check on /api/health.
	HealthChecks []HealthCheck
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, h Handlers, opts Options, logger *slog.Logger) error {
	if _, err := api.Load(context.Background()); err != nil {
		return err
	}

	healthHandler := NewHealthHandler(append([]HealthCheck{PostgresCheck(db)}, opts.HealthChecks...)...)

	// Apply global middleware
	router.Use(corsHandler(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	if opts.RequestLogging {
		router.Use(middleware.LoggingMiddleware(logger))
	}

	router.Get(swagger.SpecURL, swagger.SpecHandler(api.Spec))
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if h.Order == nil {
			return
		}

		r.Route("/orders", func(or chi.Router) {
			// provider callbacks carry no credentials
			or.Post("/mercadopago-webhook", h.Order.MercadoPagoWebhook)

			if h.Auth == nil {
				return
			}

			or.Group(func(pr chi.Router) {
				pr.Use(h.Auth.AuthMiddleware)
				pr.Get("/status/latest", h.Order.LatestStatus)

				if h.RBAC != nil {
					pr.Group(func(ar chi.Router) {
						ar.Use(h.RBAC.RequireAdmin())
						ar.Get("/debug/force/{paymentId}", h.Order.ForceReconcile)
					})
				}
			})
		})
	})

	return nil
}

// corsHandler allows the configured browser origins; none configured means any.
func corsHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins = append(origins, strings.TrimRight(o, "/"))
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	})
}
