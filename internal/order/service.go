package order

import (
	"context"
	"errors"
	"log/slog"
	"time"

	appErrors "github.com/offszn/marketplace/internal"
	orderDatamodel "github.com/offszn/marketplace/internal/core/datamodel/order"
)

const DefaultStatusWindow = 5 * time.Minute

type StatusRepository interface {
	LatestCompletedForUser(ctx context.Context, userID string) (*orderDatamodel.Order, error)
}

type ServiceAPI interface {
	LatestStatus(ctx context.Context, userID string) (*LatestStatusResponse, error)
}

type Service struct {
	repo   StatusRepository
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

type ServiceOption func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(repo StatusRepository, window time.Duration, logger *slog.Logger, opts ...ServiceOption) *Service {
	if window <= 0 {
		window = DefaultStatusWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:   repo,
		window: window,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LatestStatus reports "completed" only when the buyer's newest completed order
// was created inside the status window. It is a checkout-session heuristic, not a
// per-payment lookup.
func (s *Service) LatestStatus(ctx context.Context, userID string) (*LatestStatusResponse, error) {
	if userID == "" {
		return nil, appErrors.ErrAuthenticationRequired
	}

	latest, err := s.repo.LatestCompletedForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, appErrors.ErrOrderNotFound) {
			return &LatestStatusResponse{Status: StatusPending}, nil
		}
		s.logger.Error("failed to load latest order", "user_id", userID, "error", err)
		return nil, appErrors.NewInternalError("failed to load order status", err)
	}

	if s.now().Sub(latest.CreatedAt) < s.window {
		return &LatestStatusResponse{Status: StatusCompleted, OrderID: latest.ID}, nil
	}
	return &LatestStatusResponse{Status: StatusPending}, nil
}
