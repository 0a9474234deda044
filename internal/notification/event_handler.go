package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/offszn/marketplace/internal/core/events"
)

type EventHandler struct {
	service ServiceAPI
	logger  *slog.Logger
}

func NewEventHandler(service ServiceAPI, logger *slog.Logger) *EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandler{
		service: service,
		logger:  logger,
	}
}

// HandleOrderCompleted tells every seller about the sale and the buyer about
// the purchase. Individual failures are logged and skipped.
func (h *EventHandler) HandleOrderCompleted(ctx context.Context, event events.Event) error {
	orderEvent, ok := event.(*events.OrderCompletedEvent)
	if !ok {
		h.logger.Error("invalid event type for order completed handler", "event_type", event.EventType())
		return fmt.Errorf("expected OrderCompletedEvent, got %T", event)
	}

	for _, item := range orderEvent.Items {
		if item.OwnerID == "" {
			h.logger.Warn("sold product has no known owner", "order_id", orderEvent.OrderID, "product_id", item.ProductID)
			continue
		}
		h.create(ctx, orderEvent, CreateRequest{
			UserID:  item.OwnerID,
			ActorID: orderEvent.BuyerID,
			Type:    TypeSale,
			Message: saleMessage(item),
			Link:    LinkSales,
		})
	}

	h.create(ctx, orderEvent, CreateRequest{
		UserID:  orderEvent.BuyerID,
		Type:    TypePurchaseComplete,
		Message: purchaseMessage(orderEvent),
		Link:    LinkLibrary,
	})

	return nil
}

func (h *EventHandler) create(ctx context.Context, e *events.OrderCompletedEvent, req CreateRequest) {
	if _, err := h.service.Create(ctx, req); err != nil {
		h.logger.Error("failed to create notification",
			"order_id", e.OrderID,
			"recipient", req.UserID,
			"type", req.Type,
			"error", err)
	}
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypeOrderCompleted, h.HandleOrderCompleted)

	h.logger.Info("notification event handlers registered",
		"handlers", []string{events.EventTypeOrderCompleted})
}

func saleMessage(item events.OrderItem) string {
	if item.Title == "" {
		return "You made a sale!"
	}
	return fmt.Sprintf("You sold \"%s\" for $%.2f", item.Title, item.Price)
}

func purchaseMessage(e *events.OrderCompletedEvent) string {
	if len(e.Items) == 1 && e.Items[0].Title != "" {
		return fmt.Sprintf("Your purchase of \"%s\" is complete. It is now in your library.", e.Items[0].Title)
	}
	return fmt.Sprintf("Your purchase of %d items is complete. They are now in your library.", len(e.Items))
}
