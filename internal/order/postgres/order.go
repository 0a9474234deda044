package postgres

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appErrors "github.com/offszn/marketplace/internal"
	orderDatamodel "github.com/offszn/marketplace/internal/core/datamodel/order"
	productDatamodel "github.com/offszn/marketplace/internal/core/datamodel/product"
	"github.com/offszn/marketplace/internal/order"
)

type OrderRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewOrderRepository(db *gorm.DB, logger *slog.Logger) order.Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// CreateCompleted inserts the order keyed on transaction_id. A conflicting row
// means the payment was already reconciled: o is replaced by the stored order
// and nothing else is written.
func (r *OrderRepository) CreateCompleted(ctx context.Context, o *orderDatamodel.Order, items []orderDatamodel.OrderItem) (bool, error) {
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "transaction_id"}},
				DoNothing: true,
			}).
			Create(o)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			var existing orderDatamodel.Order
			if err := tx.Where("transaction_id = ?", o.TransactionID).First(&existing).Error; err != nil {
				return err
			}
			*o = existing
			return nil
		}

		for i := range items {
			items[i].OrderID = o.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}

		for _, item := range items {
			res := tx.Model(&productDatamodel.Product{}).
				Where("id = ?", item.ProductID).
				UpdateColumn("sales_count", gorm.Expr("sales_count + ?", item.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				r.logger.Warn("sold product not found, sales counter not incremented",
					"product_id", item.ProductID,
					"order_id", o.ID)
			}
		}

		created = true
		o.Items = items
		return nil
	})
	if err != nil {
		return false, err
	}

	return created, nil
}

func (r *OrderRepository) FindByTransactionID(ctx context.Context, transactionID string) (*orderDatamodel.Order, error) {
	var o orderDatamodel.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("transaction_id = ?", transactionID).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) LatestCompletedForUser(ctx context.Context, userID string) (*orderDatamodel.Order, error) {
	var o orderDatamodel.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, order.StatusCompleted).
		Order("created_at DESC").
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) FindProducts(ctx context.Context, ids []string) ([]*productDatamodel.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []*productDatamodel.Product
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error
	return products, err
}
