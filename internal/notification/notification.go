package notification

import (
	"context"

	notificationDatamodel "github.com/offszn/marketplace/internal/core/datamodel/notification"
)

type Type string

const (
	TypeSale             Type = "sale"
	TypePurchaseComplete Type = "purchase_complete"
	TypeLike             Type = "like"
	TypeFollow           Type = "follow"
	TypeCollabInvite     Type = "collab_invite"
	TypeComment          Type = "comment"
)

func (t Type) Valid() bool {
	switch t {
	case TypeSale, TypePurchaseComplete, TypeLike, TypeFollow, TypeCollabInvite, TypeComment:
		return true
	}
	return false
}

const (
	LinkSales   = "/profile/sales"
	LinkLibrary = "/library"
)

// CreateRequest describes one notification. ActorID is empty for system messages.
type CreateRequest struct {
	UserID  string
	ActorID string
	Type    Type
	Message string
	Link    string
}

type Repository interface {
	Create(ctx context.Context, n *notificationDatamodel.Notification) error
}
