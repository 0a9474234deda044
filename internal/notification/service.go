package notification

import (
	"context"
	"fmt"
	"log/slog"

	errors "github.com/offszn/marketplace/internal"
	"github.com/offszn/marketplace/internal/core/common/validation"
	notificationDatamodel "github.com/offszn/marketplace/internal/core/datamodel/notification"
)

type ServiceAPI interface {
	Create(ctx context.Context, req CreateRequest) (bool, error)
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Create stores a notification unless the actor is notifying themselves.
// It returns false when the insert was skipped.
func (s *Service) Create(ctx context.Context, req CreateRequest) (bool, error) {
	v := validation.NewValidator()
	v.Field("user_id", req.UserID).Required()
	v.Field("message", req.Message).Required().MaxLength(500)
	v.Field("type", string(req.Type)).Required().Custom(func(value interface{}) *errors.AppError {
		if !req.Type.Valid() {
			return errors.NewValidationFieldError("type", fmt.Sprintf("unknown notification type %q", req.Type), errors.ErrCodeValidationFailed)
		}
		return nil
	})
	if err := v.Validate(); err != nil {
		return false, err
	}

	if req.ActorID != "" && req.ActorID == req.UserID {
		s.logger.Debug("skipping self notification", "user_id", req.UserID, "type", req.Type)
		return false, nil
	}

	n := &notificationDatamodel.Notification{
		UserID:  req.UserID,
		Type:    string(req.Type),
		Message: req.Message,
		Link:    req.Link,
	}
	if req.ActorID != "" {
		actor := req.ActorID
		n.ActorID = &actor
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return false, fmt.Errorf("failed to create %s notification for %s: %w", req.Type, req.UserID, err)
	}
	return true, nil
}
