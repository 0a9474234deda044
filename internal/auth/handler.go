package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/offszn/marketplace/internal"
	"github.com/offszn/marketplace/internal/transport"
	"github.com/offszn/marketplace/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// AuthMiddleware validates the bearer token and stores the user in the context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.Logger.Debug("auth middleware: missing authorization token", "path", r.URL.Path)
			h.HandleError(w, internal.ErrAuthenticationRequired)
			return
		}

		claims, err := h.Service.ValidateAccessToken(token)
		if err != nil {
			h.Logger.Warn("token validation failed", "error", err, "path", r.URL.Path)
			if errors.Is(err, ErrTokenExpired) {
				h.HandleError(w, internal.ErrTokenExpired)
				return
			}
			h.HandleError(w, internal.ErrInvalidToken)
			return
		}

		user, err := h.Service.LoadUser(r.Context(), claims.UserID())
		if err != nil {
			if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrUserInactive) {
				h.Logger.Warn("auth middleware: user rejected", "user_id", claims.UserID(), "error", err)
				h.HandleError(w, internal.ErrInvalidToken)
				return
			}
			h.Logger.Error("auth middleware: failed to load user", "user_id", claims.UserID(), "error", err)
			h.HandleError(w, internal.NewInternalError("failed to load user", err))
			return
		}

		ctx := internal.ContextWithUser(r.Context(), user)
		ctx = logger.With(ctx, "user_id", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
