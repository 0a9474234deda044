package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appErrors "github.com/offszn/marketplace/internal"
	mp "github.com/offszn/marketplace/internal/core/datamodel/mercadopago"
	orderDatamodel "github.com/offszn/marketplace/internal/core/datamodel/order"
	"github.com/offszn/marketplace/internal/core/events"
)

// PersistResult is the stored order and whether this call created it.
type PersistResult struct {
	Order   *orderDatamodel.Order
	Created bool
}

type Persister struct {
	repo      Repository
	publisher EventPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewPersister(repo Repository, publisher EventPublisher, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("offszn/order"),
	}
}

// Persist records an approved payment as a completed order. The order, its
// items and the sales counters are written in one transaction keyed on the
// payment id, so calling it again for the same payment is a no-op that returns
// the stored order.
func (p *Persister) Persist(ctx context.Context, paymentID string, payment *mp.Payment) (*PersistResult, error) {
	ctx, span := p.tracer.Start(ctx, "order.Persist", trace.WithAttributes(attribute.String("payment.id", paymentID)))
	defer span.End()

	ref, err := ParseExternalReference(payment.ExternalReference)
	if err != nil {
		p.logger.Warn("approved payment has an unusable external reference",
			"payment_id", paymentID,
			"external_reference", payment.ExternalReference,
			"error", err)
		span.SetStatus(codes.Error, "invalid external reference")
		return nil, err
	}

	items := make([]orderDatamodel.OrderItem, 0, len(payment.AdditionalInfo.Items))
	for _, it := range payment.AdditionalInfo.Items {
		if it.ID == "" {
			p.logger.Warn("skipping line item without product id", "payment_id", paymentID, "title", it.Title)
			continue
		}
		if it.Quantity > 1 {
			p.logger.Warn("provider quantity ignored; marketplace items are sold singly",
				"payment_id", paymentID,
				"product_id", it.ID,
				"quantity", it.Quantity)
		}
		items = append(items, orderDatamodel.OrderItem{
			ProductID:       it.ID,
			Quantity:        1,
			PriceAtPurchase: it.UnitPrice,
		})
	}
	if len(items) == 0 {
		p.logger.Warn("approved payment carries no line items", "payment_id", paymentID)
		span.SetStatus(codes.Error, "no line items")
		return nil, fmt.Errorf("%w: payment %s", ErrNoLineItems, paymentID)
	}

	o := &orderDatamodel.Order{
		UserID:        ref.UserID,
		TransactionID: paymentID,
		Status:        StatusCompleted,
		TotalPrice:    payment.TransactionAmount,
	}

	created, err := p.repo.CreateCompleted(ctx, o, items)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, fmt.Errorf("failed to persist order for payment %s: %w", paymentID, err)
	}
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.Bool("order.created", created))

	if !created {
		p.logger.Info("payment already reconciled", "payment_id", paymentID, "order_id", o.ID)
		return &PersistResult{Order: o, Created: false}, nil
	}

	p.logger.Info("order created",
		"payment_id", paymentID,
		"order_id", o.ID,
		"user_id", o.UserID,
		"items", len(items),
		"total_price", o.TotalPrice)

	p.publishCompleted(ctx, o, items, payment)

	return &PersistResult{Order: o, Created: true}, nil
}

// Lookup returns the order already stored for a payment, if any.
func (p *Persister) Lookup(ctx context.Context, paymentID string) (*orderDatamodel.Order, bool, error) {
	o, err := p.repo.FindByTransactionID(ctx, paymentID)
	if errors.Is(err, appErrors.ErrOrderNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up order for payment %s: %w", paymentID, err)
	}
	return o, true, nil
}

// publishCompleted never fails the persist: the order is already committed.
func (p *Persister) publishCompleted(ctx context.Context, o *orderDatamodel.Order, items []orderDatamodel.OrderItem, payment *mp.Payment) {
	if p.publisher == nil {
		return
	}

	titles := make(map[string]string, len(payment.AdditionalInfo.Items))
	for _, it := range payment.AdditionalInfo.Items {
		titles[it.ID] = it.Title
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}

	owners := make(map[string]string, len(ids))
	products, err := p.repo.FindProducts(ctx, ids)
	if err != nil {
		p.logger.Warn("failed to load products for notifications", "order_id", o.ID, "error", err)
	}
	for _, prod := range products {
		owners[prod.ID] = prod.OwnerID
		if titles[prod.ID] == "" {
			titles[prod.ID] = prod.Title
		}
	}

	eventItems := make([]events.OrderItem, 0, len(items))
	for _, it := range items {
		eventItems = append(eventItems, events.OrderItem{
			ProductID: it.ProductID,
			OwnerID:   owners[it.ProductID],
			Title:     titles[it.ProductID],
			Price:     it.PriceAtPurchase,
		})
	}

	event := events.NewOrderCompletedEvent(o.ID, o.TransactionID, o.UserID, o.TotalPrice, eventItems)
	if err := p.publisher.PublishSync(ctx, event); err != nil {
		p.logger.Warn("order completed side effects failed", "order_id", o.ID, "event_id", event.EventID(), "error", err)
	}
}
