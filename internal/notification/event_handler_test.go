package notification_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/offszn/marketplace/internal/core/events"
	"github.com/offszn/marketplace/internal/notification"
	"github.com/offszn/marketplace/pkg/logger"
)

var _ = Describe("Notification EventHandler", func() {
	var (
		repo *MockRepository
		bus  *events.EventBus
	)

	BeforeEach(func() {
		repo = &MockRepository{}
		bus = events.NewEventBus(logger.Discard())
		handler := notification.NewEventHandler(notification.NewService(repo, logger.Discard()), logger.Discard())
		handler.RegisterEventHandlers(bus)
	})

	orderEvent := func(items ...events.OrderItem) *events.OrderCompletedEvent {
		return events.NewOrderCompletedEvent("order-1", "pay-1", "buyer-1", 39.99, items)
	}

	It("subscribes to order.completed", func() {
		Expect(bus.HandlerCount(events.EventTypeOrderCompleted)).To(Equal(1))
	})

	It("notifies every seller and the buyer", func() {
		// Given
		event := orderEvent(
			events.OrderItem{ProductID: "prod-1", OwnerID: "seller-1", Title: "Night Drive", Price: 29.99},
			events.OrderItem{ProductID: "prod-2", OwnerID: "seller-2", Title: "Drum Kit", Price: 10},
		)

		// When
		Expect(bus.PublishSync(context.Background(), event)).To(Succeed())

		// Then
		sales := repo.ForUser("seller-1")
		Expect(sales).To(HaveLen(1))
		Expect(sales[0].Type).To(Equal(string(notification.TypeSale)))
		Expect(sales[0].ActorID).To(HaveValue(Equal("buyer-1")))
		Expect(sales[0].Message).To(Equal(`You sold "Night Drive" for $29.99`))
		Expect(sales[0].Link).To(Equal(notification.LinkSales))

		other := repo.ForUser("seller-2")
		Expect(other).To(HaveLen(1))

		purchases := repo.ForUser("buyer-1")
		Expect(purchases).To(HaveLen(1))
		Expect(purchases[0].Type).To(Equal(string(notification.TypePurchaseComplete)))
		Expect(purchases[0].ActorID).To(BeNil())
		Expect(purchases[0].Link).To(Equal(notification.LinkLibrary))
		Expect(purchases[0].Message).To(ContainSubstring("2 items"))
	})

	It("does not send a sale notification to a buyer purchasing their own product", func() {
		event := orderEvent(events.OrderItem{ProductID: "prod-1", OwnerID: "buyer-1", Title: "Mine", Price: 1})

		Expect(bus.PublishSync(context.Background(), event)).To(Succeed())

		created := repo.Created()
		Expect(created).To(HaveLen(1))
		Expect(created[0].Type).To(Equal(string(notification.TypePurchaseComplete)))
		Expect(created[0].Message).To(ContainSubstring(`"Mine"`))
	})

	It("skips items whose owner is unknown", func() {
		event := orderEvent(events.OrderItem{ProductID: "ghost", Price: 5})

		Expect(bus.PublishSync(context.Background(), event)).To(Succeed())

		Expect(repo.Created()).To(HaveLen(1))
	})

	It("swallows individual failures and keeps going", func() {
		// Given
		repo.failFor = "seller-1"
		event := orderEvent(
			events.OrderItem{ProductID: "prod-1", OwnerID: "seller-1", Title: "A", Price: 1},
			events.OrderItem{ProductID: "prod-2", OwnerID: "seller-2", Title: "B", Price: 1},
		)

		// When
		err := bus.PublishSync(context.Background(), event)

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Created()).To(HaveLen(2))
	})

	It("rejects events of the wrong type", func() {
		handler := notification.NewEventHandler(notification.NewService(repo, nil), nil)

		err := handler.HandleOrderCompleted(context.Background(), events.BaseEvent{Type: events.EventTypeOrderCompleted})

		Expect(err).To(HaveOccurred())
	})
})
