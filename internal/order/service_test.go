package order_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	appErrors "github.com/offszn/marketplace/internal"
	orderDatamodel "github.com/offszn/marketplace/internal/core/datamodel/order"
	"github.com/offszn/marketplace/internal/order"
	"github.com/offszn/marketplace/pkg/logger"
)

type stubStatusRepo struct {
	latest *orderDatamodel.Order
	err    error
	asked  string
}

func (s *stubStatusRepo) LatestCompletedForUser(ctx context.Context, userID string) (*orderDatamodel.Order, error) {
	s.asked = userID
	return s.latest, s.err
}

var _ = Describe("Order Service", func() {
	var (
		repo    *stubStatusRepo
		service *order.Service
		now     time.Time
	)

	BeforeEach(func() {
		now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		repo = &stubStatusRepo{}
		service = order.NewService(repo, 5*time.Minute, logger.Discard(), order.WithClock(func() time.Time { return now }))
	})

	Describe("LatestStatus", func() {
		It("reports completed for an order created 4m59s ago", func() {
			repo.latest = &orderDatamodel.Order{ID: "order-1", CreatedAt: now.Add(-(4*time.Minute + 59*time.Second))}

			status, err := service.LatestStatus(context.Background(), "buyer-1")

			Expect(err).NotTo(HaveOccurred())
			Expect(status.Status).To(Equal(order.StatusCompleted))
			Expect(status.OrderID).To(Equal("order-1"))
			Expect(repo.asked).To(Equal("buyer-1"))
		})

		It("reports pending for an order created 5m01s ago", func() {
			repo.latest = &orderDatamodel.Order{ID: "order-1", CreatedAt: now.Add(-(5*time.Minute + time.Second))}

			status, err := service.LatestStatus(context.Background(), "buyer-1")

			Expect(err).NotTo(HaveOccurred())
			Expect(status.Status).To(Equal(order.StatusPending))
			Expect(status.OrderID).To(BeEmpty())
		})

		It("reports pending when the buyer has no completed order", func() {
			repo.err = appErrors.ErrOrderNotFound

			status, err := service.LatestStatus(context.Background(), "buyer-1")

			Expect(err).NotTo(HaveOccurred())
			Expect(status.Status).To(Equal(order.StatusPending))
		})

		It("requires a user", func() {
			_, err := service.LatestStatus(context.Background(), "")
			Expect(err).To(MatchError(appErrors.ErrAuthenticationRequired))
		})

		It("wraps storage failures as internal errors", func() {
			repo.err = errors.New("connection refused")

			_, err := service.LatestStatus(context.Background(), "buyer-1")

			appErr, ok := appErrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusInternalServerError))
		})

		It("uses the default window when none is configured", func() {
			svc := order.NewService(repo, 0, nil, order.WithClock(func() time.Time { return now }))
			repo.latest = &orderDatamodel.Order{ID: "order-1", CreatedAt: now.Add(-4 * time.Minute)}

			status, err := svc.LatestStatus(context.Background(), "buyer-1")

			Expect(err).NotTo(HaveOccurred())
			Expect(status.Status).To(Equal(order.StatusCompleted))
		})
	})
})
