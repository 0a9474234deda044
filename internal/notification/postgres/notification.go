package postgres

import (
	"context"

	"gorm.io/gorm"

	notificationDatamodel "github.com/offszn/marketplace/internal/core/datamodel/notification"
	"github.com/offszn/marketplace/internal/notification"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) notification.Repository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notificationDatamodel.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}
