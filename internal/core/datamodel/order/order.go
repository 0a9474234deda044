package order

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Order struct {
	ID            string      `gorm:"primaryKey;column:id"`
	UserID        string      `gorm:"column:user_id;not null;index"`
	TransactionID string      `gorm:"column:transaction_id;not null;uniqueIndex"`
	Status        string      `gorm:"column:status;not null"`
	TotalPrice    float64     `gorm:"column:total_price;not null"`
	CreatedAt     time.Time   `gorm:"column:created_at"`
	Items         []OrderItem `gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

type OrderItem struct {
	ID              int64   `gorm:"primaryKey;autoIncrement"`
	OrderID         string  `gorm:"column:order_id;not null;index"`
	ProductID       string  `gorm:"column:product_id;not null"`
	Quantity        int     `gorm:"column:quantity;not null"`
	PriceAtPurchase float64 `gorm:"column:price_at_purchase;not null"`
}

func (OrderItem) TableName() string { return "order_items" }
