package mercadopago

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	types "github.com/offszn/marketplace/internal/core/datamodel/mercadopago"
)

const (
	DefaultBaseURL = "https://api.mercadopago.com"
	paymentPath    = "/v1/payments/{id}"
)

type Config struct {
	BaseURL        string
	AccessToken    string
	RequestTimeout time.Duration
}

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mercadopago returned status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	http   *resty.Client
	logger *slog.Logger
	tracer trace.Tracer
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Accept", "application/json")
	if cfg.RequestTimeout > 0 {
		httpClient.SetTimeout(cfg.RequestTimeout)
	}

	return &Client{
		http:   httpClient,
		logger: logger,
		tracer: otel.Tracer("offszn/mercadopago"),
	}
}

// GetPayment fetches GET /v1/payments/{id}.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*types.Payment, error) {
	ctx, span := c.tracer.Start(ctx, "mercadopago.GetPayment",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("payment.id", paymentID)))
	defer span.End()

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", paymentID).
		Get(paymentPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("failed to fetch payment %s: %w", paymentID, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))

	if !resp.IsSuccess() {
		statusErr := &StatusError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 512)}
		span.SetStatus(codes.Error, "unexpected status")
		c.logger.Debug("mercadopago payment lookup failed",
			"payment_id", paymentID,
			"status_code", resp.StatusCode())
		return nil, statusErr
	}

	var payment types.Payment
	if err := json.Unmarshal(resp.Body(), &payment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, fmt.Errorf("failed to decode payment %s: %w", paymentID, err)
	}
	if err := payment.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid payment")
		return nil, fmt.Errorf("invalid payment %s: %w", paymentID, err)
	}
	if payment.ID.String() != paymentID {
		span.SetStatus(codes.Error, "payment id mismatch")
		return nil, fmt.Errorf("payment id mismatch: requested %s, got %s", paymentID, payment.ID)
	}

	span.SetAttributes(attribute.String("payment.status", string(payment.Status)))
	return &payment, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
