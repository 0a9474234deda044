package product

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Product struct {
	ID         string    `gorm:"primaryKey;column:id"`
	OwnerID    string    `gorm:"column:owner_id;not null;index"`
	Title      string    `gorm:"column:title;not null"`
	Kind       string    `gorm:"column:kind"`
	Price      float64   `gorm:"column:price;not null"`
	SalesCount int64     `gorm:"column:sales_count;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (Product) TableName() string { return "products" }

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
