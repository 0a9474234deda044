package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeOrderCompleted = "order.completed"
)

type OrderItem struct {
	ProductID string  `json:"product_id"`
	OwnerID   string  `json:"owner_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
}

// OrderCompletedEvent is published once per newly created order.
type OrderCompletedEvent struct {
	BaseEvent
	OrderID       string      `json:"order_id"`
	TransactionID string      `json:"transaction_id"`
	BuyerID       string      `json:"buyer_id"`
	TotalPrice    float64     `json:"total_price"`
	Items         []OrderItem `json:"items"`
}

func NewOrderCompletedEvent(orderID, transactionID, buyerID string, totalPrice float64, items []OrderItem) *OrderCompletedEvent {
	return &OrderCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOrderCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_id":       orderID,
				"transaction_id": transactionID,
				"buyer_id":       buyerID,
				"total_price":    totalPrice,
				"items_count":    len(items),
			},
		},
		OrderID:       orderID,
		TransactionID: transactionID,
		BuyerID:       buyerID,
		TotalPrice:    totalPrice,
		Items:         items,
	}
}
