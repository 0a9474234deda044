package order

import (
	"encoding/json"
	"net/url"
	"strings"

	errors "github.com/offszn/marketplace/internal"
	"github.com/offszn/marketplace/internal/core/common/validation"
)

const TopicPayment = "payment"

// WebhookNotification is the provider's "something happened" ping. Only the
// topic and the resource id are read; the payload is never trusted.
type WebhookNotification struct {
	PaymentID string
	Topic     string
}

type webhookBody struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ParseWebhookNotification accepts the legacy ?id=&topic= form, the newer
// ?data.id=&type= form and, as a fallback, the JSON body {"type", "data": {"id"}}.
func ParseWebhookNotification(query url.Values, body []byte) WebhookNotification {
	n := WebhookNotification{
		PaymentID: firstNonEmpty(query.Get("id"), query.Get("data.id")),
		Topic:     firstNonEmpty(query.Get("topic"), query.Get("type")),
	}

	if (n.PaymentID == "" || n.Topic == "") && len(body) > 0 {
		var b webhookBody
		if err := json.Unmarshal(body, &b); err == nil {
			if n.Topic == "" {
				n.Topic = b.Type
			}
			if n.PaymentID == "" {
				n.PaymentID = strings.Trim(string(b.Data.ID), `"`)
			}
		}
	}

	n.PaymentID = strings.TrimSpace(n.PaymentID)
	n.Topic = strings.ToLower(strings.TrimSpace(n.Topic))
	return n
}

func (n WebhookNotification) IsPayment() bool {
	return n.Topic == TopicPayment && n.PaymentID != ""
}

func (n WebhookNotification) Validate() *errors.AppError {
	return validation.ValidatePaymentID(n.PaymentID)
}

// LatestStatusResponse is returned by GET /api/orders/status/latest.
type LatestStatusResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId,omitempty"`
}

type ForceReconcileResponse struct {
	Message   string       `json:"message"`
	PaymentID string       `json:"paymentId"`
	Status    SubmitStatus `json:"status"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
