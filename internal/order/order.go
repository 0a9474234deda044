package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	orderDatamodel "github.com/offszn/marketplace/internal/core/datamodel/order"
	productDatamodel "github.com/offszn/marketplace/internal/core/datamodel/product"
	"github.com/offszn/marketplace/internal/core/events"
)

const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
)

// Sources of a reconciliation request.
const (
	SourceWebhook = "webhook"
	SourceManual  = "manual"
	SourceCLI     = "cli"
)

// SubmitStatus says what the queue did with a reconciliation request.
type SubmitStatus string

const (
	SubmitQueued            SubmitStatus = "queued"
	SubmitDeferred          SubmitStatus = "deferred"
	SubmitInFlight          SubmitStatus = "in_flight"
	SubmitAlreadyReconciled SubmitStatus = "already_reconciled"
)

// Outcome is the final state of one reconciliation run.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
)

var (
	ErrInvalidExternalReference = errors.New("invalid external reference")
	ErrNoLineItems              = errors.New("payment has no line items")
)

// IsTerminal reports whether err can never succeed on retry.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrInvalidExternalReference) || errors.Is(err, ErrNoLineItems)
}

// ExternalReference is what checkout stores in the provider's external_reference.
type ExternalReference struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// ParseExternalReference decodes {"userId": ..., "timestamp": ...}. The user id
// may have been encoded as a string or a number.
func ParseExternalReference(raw string) (*ExternalReference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidExternalReference)
	}

	var decoded struct {
		UserID    json.RawMessage `json:"userId"`
		Timestamp json.Number     `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExternalReference, err)
	}

	userID := strings.Trim(strings.TrimSpace(string(decoded.UserID)), `"`)
	if userID == "" || userID == "null" {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidExternalReference)
	}

	ref := &ExternalReference{UserID: userID}
	if decoded.Timestamp != "" {
		if ts, err := decoded.Timestamp.Int64(); err == nil {
			ref.Timestamp = ts
		}
	}
	return ref, nil
}

// Repository persists orders. CreateCompleted must insert the order, its items
// and the sales counter increments atomically, and must report created=false
// (filling o with the stored row) when the transaction id already exists.
type Repository interface {
	CreateCompleted(ctx context.Context, o *orderDatamodel.Order, items []orderDatamodel.OrderItem) (bool, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*orderDatamodel.Order, error)
	LatestCompletedForUser(ctx context.Context, userID string) (*orderDatamodel.Order, error)
	FindProducts(ctx context.Context, ids []string) ([]*productDatamodel.Product, error)
}

type EventPublisher interface {
	PublishSync(ctx context.Context, event events.Event) error
}
