package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	errors "github.com/offszn/marketplace/internal"
	"github.com/offszn/marketplace/pkg/logger"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}
	return &BaseHandler{Logger: lg}
}

func (h *BaseHandler) log() *slog.Logger {
	if h == nil || h.Logger == nil {
		return logger.LoggerWrapper()
	}
	return h.Logger
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log().Error("failed to encode JSON response", "error", err)
	}
}

// WriteText writes a plain text body, used for provider acknowledgements.
func (h *BaseHandler) WriteText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		h.log().Error("failed to write response", "error", err)
	}
}

// HandleError renders AppErrors with their own status; anything else is a 500.
func (h *BaseHandler) HandleError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	appErr, ok := errors.IsAppError(err)
	if !ok {
		h.log().Error("unhandled error", "error", err)
		appErr = errors.NewInternalError("internal server error", err)
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		h.log().Error("request failed", "code", appErr.Code, "error", appErr.Error())
	} else {
		h.log().Debug("request rejected", "code", appErr.Code, "message", appErr.GetDetailedMessage())
	}

	status, body := appErr.ToHTTPResponse()
	h.WriteJSON(w, status, body)
}

// ExtractTokenFromHeader extracts Bearer token from Authorization header
func (h *BaseHandler) ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return ""
	}

	return authHeader[7:]
}
