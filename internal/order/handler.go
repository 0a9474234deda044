package order

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/offszn/marketplace/internal"
	"github.com/offszn/marketplace/internal/core/common/validation"
	"github.com/offszn/marketplace/internal/transport"
)

const maxWebhookBody = 64 << 10

// ReconcileSubmitter hands a payment id to the reconciliation queue.
type ReconcileSubmitter interface {
	Submit(ctx context.Context, paymentID, source string) (SubmitStatus, error)
}

type Handler struct {
	*transport.BaseHandler
	Queue   ReconcileSubmitter
	Service ServiceAPI
	Logger  *slog.Logger
}

func NewHandler(queue ReconcileSubmitter, service ServiceAPI, logger *slog.Logger) *Handler {
	base := transport.NewBaseHandler(logger)
	return &Handler{
		BaseHandler: base,
		Queue:       queue,
		Service:     service,
		Logger:      base.Logger,
	}
}

// MercadoPagoWebhook handles POST /api/orders/mercadopago-webhook.
// The provider always gets 200 "OK"; the acknowledgement is written before any
// lookup so a slow provider or database never delays it.
func (h *Handler) MercadoPagoWebhook(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	}
	notification := ParseWebhookNotification(r.URL.Query(), body)

	if !notification.IsPayment() {
		h.Logger.Debug("ignoring webhook notification", "topic", notification.Topic, "id", notification.PaymentID)
		h.WriteText(w, http.StatusOK, "OK")
		return
	}

	if err := notification.Validate(); err != nil {
		h.Logger.Warn("ignoring webhook with malformed payment id", "id", notification.PaymentID)
		h.WriteText(w, http.StatusOK, "OK")
		return
	}

	h.WriteText(w, http.StatusOK, "OK")

	ctx := context.WithoutCancel(r.Context())
	go func(paymentID string) {
		if _, err := h.Queue.Submit(ctx, paymentID, SourceWebhook); err != nil {
			h.Logger.Error("failed to enqueue webhook reconciliation", "payment_id", paymentID, "error", err)
		}
	}(notification.PaymentID)
}

// ForceReconcile handles GET /api/orders/debug/force/{paymentId}.
func (h *Handler) ForceReconcile(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	if err := validation.ValidatePaymentID(paymentID); err != nil {
		h.HandleError(w, err)
		return
	}

	submitted, err := h.Queue.Submit(context.WithoutCancel(r.Context()), paymentID, SourceManual)
	if err != nil {
		h.Logger.Error("ForceReconcile: failed to enqueue", "payment_id", paymentID, "error", err)
		h.HandleError(w, errors.ErrQueueUnavailable.WithCause(err))
		return
	}

	h.Logger.Info("ForceReconcile: request handled",
		"payment_id", paymentID,
		"submit_status", submitted,
		"user_id", errors.UserIDFromContext(r.Context()))

	status, message := forceReconcileReply(submitted)
	h.WriteJSON(w, status, ForceReconcileResponse{
		Message:   message,
		PaymentID: paymentID,
		Status:    submitted,
	})
}

func forceReconcileReply(s SubmitStatus) (int, string) {
	switch s {
	case SubmitAlreadyReconciled:
		return http.StatusOK, "Payment already reconciled"
	case SubmitInFlight:
		return http.StatusAccepted, "Reconciliation already in progress"
	case SubmitDeferred:
		return http.StatusAccepted, "Reconciliation queued; all workers are busy"
	default:
		return http.StatusAccepted, "Reconciliation started"
	}
}

// LatestStatus handles GET /api/orders/status/latest.
func (h *Handler) LatestStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := errors.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, errors.ErrAuthenticationRequired)
		return
	}

	status, err := h.Service.LatestStatus(r.Context(), user.ID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, status)
}
