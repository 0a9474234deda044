package order_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	appErrors "github.com/offszn/marketplace/internal"
	mp "github.com/offszn/marketplace/internal/core/datamodel/mercadopago"
	orderDatamodel "github.com/offszn/marketplace/internal/core/datamodel/order"
	productDatamodel "github.com/offszn/marketplace/internal/core/datamodel/product"
	"github.com/offszn/marketplace/internal/core/events"
	"github.com/offszn/marketplace/internal/order"
	"github.com/offszn/marketplace/pkg/logger"
)

// memoryRepository is an order.Repository keyed on transaction id.
type memoryRepository struct {
	mu        sync.Mutex
	orders    map[string]*orderDatamodel.Order
	items     map[string][]orderDatamodel.OrderItem
	products  map[string]*productDatamodel.Product
	createErr error
	seq       int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		orders:   make(map[string]*orderDatamodel.Order),
		items:    make(map[string][]orderDatamodel.OrderItem),
		products: make(map[string]*productDatamodel.Product),
	}
}

func (m *memoryRepository) CreateCompleted(ctx context.Context, o *orderDatamodel.Order, items []orderDatamodel.OrderItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return false, m.createErr
	}
	if existing, ok := m.orders[o.TransactionID]; ok {
		*o = *existing
		return false, nil
	}

	m.seq++
	o.ID = fmt.Sprintf("order-%d", m.seq)
	stored := *o
	m.orders[o.TransactionID] = &stored
	m.items[o.ID] = append([]orderDatamodel.OrderItem(nil), items...)
	for _, it := range items {
		if p, ok := m.products[it.ProductID]; ok {
			p.SalesCount += int64(it.Quantity)
		}
	}
	return true, nil
}

func (m *memoryRepository) FindByTransactionID(ctx context.Context, transactionID string) (*orderDatamodel.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[transactionID]; ok {
		return o, nil
	}
	return nil, appErrors.ErrOrderNotFound
}

func (m *memoryRepository) LatestCompletedForUser(ctx context.Context, userID string) (*orderDatamodel.Order, error) {
	return nil, appErrors.ErrOrderNotFound
}

func (m *memoryRepository) FindProducts(ctx context.Context, ids []string) ([]*productDatamodel.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*productDatamodel.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

var _ = Describe("Persister", func() {
	var (
		repo      *memoryRepository
		bus       *events.EventBus
		published []*events.OrderCompletedEvent
		persister *order.Persister
	)

	BeforeEach(func() {
		repo = newMemoryRepository()
		repo.products["prod-1"] = &productDatamodel.Product{ID: "prod-1", OwnerID: "seller-1", Title: "Night Drive", Price: 29.99}
		repo.products["prod-2"] = &productDatamodel.Product{ID: "prod-2", OwnerID: "seller-2", Title: "Drum Kit", Price: 10}

		published = nil
		bus = events.NewEventBus(logger.Discard())
		bus.Subscribe(events.EventTypeOrderCompleted, func(ctx context.Context, event events.Event) error {
			published = append(published, event.(*events.OrderCompletedEvent))
			return nil
		})

		persister = order.NewPersister(repo, bus, logger.Discard())
	})

	twoItemPayment := func() *mp.Payment {
		return &mp.Payment{
			ID:                "555",
			Status:            mp.PaymentStatusApproved,
			TransactionAmount: 39.99,
			ExternalReference: `{"userId":"buyer-1","timestamp":1700000000000}`,
			AdditionalInfo: mp.AdditionalInfo{Items: []mp.Item{
				{ID: "prod-1", Title: "Night Drive", Quantity: 3, UnitPrice: 29.99},
				{ID: "prod-2", UnitPrice: 10},
			}},
		}
	}

	It("creates a completed order with one unit per line item", func() {
		// When
		result, err := persister.Persist(context.Background(), "555", twoItemPayment())

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Created).To(BeTrue())
		Expect(result.Order.UserID).To(Equal("buyer-1"))
		Expect(result.Order.TransactionID).To(Equal("555"))
		Expect(result.Order.Status).To(Equal(order.StatusCompleted))
		Expect(result.Order.TotalPrice).To(Equal(39.99))

		items := repo.items[result.Order.ID]
		Expect(items).To(HaveLen(2))
		for _, it := range items {
			Expect(it.Quantity).To(Equal(1))
		}
		Expect(repo.products["prod-1"].SalesCount).To(BeEquivalentTo(1))
	})

	It("publishes order.completed with product owners and titles", func() {
		_, err := persister.Persist(context.Background(), "555", twoItemPayment())
		Expect(err).NotTo(HaveOccurred())

		Expect(published).To(HaveLen(1))
		event := published[0]
		Expect(event.BuyerID).To(Equal("buyer-1"))
		Expect(event.TransactionID).To(Equal("555"))
		Expect(event.Items).To(ConsistOf(
			events.OrderItem{ProductID: "prod-1", OwnerID: "seller-1", Title: "Night Drive", Price: 29.99},
			events.OrderItem{ProductID: "prod-2", OwnerID: "seller-2", Title: "Drum Kit", Price: 10},
		))
	})

	It("is a no-op for a payment that was already persisted", func() {
		// Given
		first, err := persister.Persist(context.Background(), "555", twoItemPayment())
		Expect(err).NotTo(HaveOccurred())

		// When
		second, err := persister.Persist(context.Background(), "555", twoItemPayment())

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Created).To(BeFalse())
		Expect(second.Order.ID).To(Equal(first.Order.ID))
		Expect(repo.orders).To(HaveLen(1))
		Expect(repo.products["prod-1"].SalesCount).To(BeEquivalentTo(1))
		Expect(published).To(HaveLen(1))
	})

	It("rejects a malformed external reference without touching storage", func() {
		p := twoItemPayment()
		p.ExternalReference = "not-json"

		_, err := persister.Persist(context.Background(), "555", p)

		Expect(err).To(MatchError(order.ErrInvalidExternalReference))
		Expect(order.IsTerminal(err)).To(BeTrue())
		Expect(repo.orders).To(BeEmpty())
		Expect(published).To(BeEmpty())
	})

	It("rejects a payment without usable line items", func() {
		p := twoItemPayment()
		p.AdditionalInfo.Items = []mp.Item{{Title: "no id"}}

		_, err := persister.Persist(context.Background(), "555", p)

		Expect(err).To(MatchError(order.ErrNoLineItems))
		Expect(order.IsTerminal(err)).To(BeTrue())
		Expect(repo.orders).To(BeEmpty())
	})

	It("wraps storage failures as retryable", func() {
		repo.createErr = errors.New("connection refused")

		_, err := persister.Persist(context.Background(), "555", twoItemPayment())

		Expect(err).To(MatchError(ContainSubstring("connection refused")))
		Expect(order.IsTerminal(err)).To(BeFalse())
	})

	It("keeps the order when a side effect fails", func() {
		bus.Subscribe(events.EventTypeOrderCompleted, func(ctx context.Context, event events.Event) error {
			return errors.New("notifications down")
		})

		result, err := persister.Persist(context.Background(), "555", twoItemPayment())

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Created).To(BeTrue())
		Expect(repo.orders).To(HaveKey("555"))
	})

	It("logs provider quantities it does not honor", func() {
		// Given
		var buf bytes.Buffer
		p := order.NewPersister(repo, nil, slog.New(slog.NewJSONHandler(&buf, nil)))

		// When
		_, err := p.Persist(context.Background(), "555", twoItemPayment())

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("provider quantity ignored"))
		Expect(buf.String()).To(ContainSubstring(`"product_id":"prod-1"`))
		Expect(buf.String()).To(ContainSubstring(`"quantity":3`))
		Expect(buf.String()).NotTo(ContainSubstring(`"product_id":"prod-2"`))
	})

	It("looks up the order stored for a payment", func() {
		// Given
		created, err := persister.Persist(context.Background(), "555", twoItemPayment())
		Expect(err).NotTo(HaveOccurred())

		// When
		found, ok, err := persister.Lookup(context.Background(), "555")

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(found.ID).To(Equal(created.Order.ID))
	})

	It("reports a payment without an order as not found", func() {
		found, ok, err := persister.Lookup(context.Background(), "404")

		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(found).To(BeNil())
	})

	It("works without a publisher", func() {
		p := order.NewPersister(repo, nil, nil)

		result, err := p.Persist(context.Background(), "777", twoItemPayment())

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Created).To(BeTrue())
	})
})
