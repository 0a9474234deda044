package auth

import (
	"log/slog"
	"net/http"

	"github.com/offszn/marketplace/internal"
	"github.com/offszn/marketplace/internal/transport"
)

type RBACAuthorization struct {
	*transport.BaseHandler
	logger *slog.Logger
}

func NewRBACAuthorization(logger *slog.Logger) *RBACAuthorization {
	base := transport.NewBaseHandler(logger)
	return &RBACAuthorization{
		BaseHandler: base,
		logger:      base.Logger,
	}
}

// RequireRole lets the request through when the user holds any of roles.
func (ra *RBACAuthorization) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := internal.UserFromContext(r.Context())
			if !ok {
				ra.logger.Warn("authorization check failed: user not found in context")
				ra.HandleError(w, internal.ErrAuthenticationRequired)
				return
			}

			for _, role := range roles {
				if user.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}

			ra.logger.WarnContext(r.Context(), "access denied: insufficient role",
				"user_id", user.ID,
				"required_roles", roles,
				"user_role", user.Role)
			ra.HandleError(w, internal.ErrInsufficientRole)
		})
	}
}

func (ra *RBACAuthorization) RequireAdmin() func(http.Handler) http.Handler {
	return ra.RequireRole(internal.RoleAdmin)
}
