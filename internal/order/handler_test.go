package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	appErrors "github.com/offszn/marketplace/internal"
	"github.com/offszn/marketplace/internal/order"
	"github.com/offszn/marketplace/pkg/logger"
)

type submission struct {
	PaymentID string
	Source    string
}

// recordingQueue records submissions; with block set, Submit waits until release is closed.
type recordingQueue struct {
	mu          sync.Mutex
	submissions []submission
	block       bool
	release     chan struct{}
	status      order.SubmitStatus
	err         error
}

func (q *recordingQueue) Submit(ctx context.Context, paymentID, source string) (order.SubmitStatus, error) {
	if q.block {
		<-q.release
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submissions = append(q.submissions, submission{PaymentID: paymentID, Source: source})
	if q.err != nil {
		return "", q.err
	}
	if q.status == "" {
		return order.SubmitQueued, nil
	}
	return q.status, nil
}

func (q *recordingQueue) Submissions() []submission {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]submission(nil), q.submissions...)
}

type stubService struct {
	status *order.LatestStatusResponse
	err    error
	userID string
}

func (s *stubService) LatestStatus(ctx context.Context, userID string) (*order.LatestStatusResponse, error) {
	s.userID = userID
	return s.status, s.err
}

var _ = Describe("Order Handler", func() {
	var (
		queue   *recordingQueue
		service *stubService
		handler *order.Handler
		router  *chi.Mux
	)

	BeforeEach(func() {
		queue = &recordingQueue{release: make(chan struct{})}
		service = &stubService{status: &order.LatestStatusResponse{Status: order.StatusPending}}
		handler = order.NewHandler(queue, service, logger.Discard())

		router = chi.NewRouter()
		router.Post("/api/orders/mercadopago-webhook", handler.MercadoPagoWebhook)
		router.Get("/api/orders/status/latest", handler.LatestStatus)
		router.Get("/api/orders/debug/force/{paymentId}", handler.ForceReconcile)
	})

	AfterEach(func() {
		close(queue.release)
	})

	Describe("MercadoPagoWebhook", func() {
		It("acknowledges within 50ms even when the queue blocks", func() {
			// Given
			queue.block = true
			req := httptest.NewRequest(http.MethodPost, "/api/orders/mercadopago-webhook?id=123456&topic=payment", nil)
			rec := httptest.NewRecorder()

			// When
			start := time.Now()
			router.ServeHTTP(rec, req)
			elapsed := time.Since(start)

			// Then
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("OK"))
			Expect(elapsed).To(BeNumerically("<", 50*time.Millisecond))
		})

		It("hands payment notifications to the queue", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/orders/mercadopago-webhook?id=123456&topic=payment", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Eventually(queue.Submissions).Should(ConsistOf(submission{PaymentID: "123456", Source: order.SourceWebhook}))
		})

		It("accepts the data.id and type query form", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/orders/mercadopago-webhook?data.id=987&type=payment", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Eventually(queue.Submissions).Should(ConsistOf(submission{PaymentID: "987", Source: order.SourceWebhook}))
		})

		It("falls back to the JSON body", func() {
			body := strings.NewReader(`{"action":"payment.created","type":"payment","data":{"id":"4242"}}`)
			req := httptest.NewRequest(http.MethodPost, "/api/orders/mercadopago-webhook", body)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Eventually(queue.Submissions).Should(ConsistOf(submission{PaymentID: "4242", Source: order.SourceWebhook}))
		})

		It("ignores other topics", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/orders/mercadopago-webhook?id=55&topic=merchant_order", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("OK"))
			Consistently(queue.Submissions, 50*time.Millisecond).Should(BeEmpty())
		})

		It("ignores malformed payment ids", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/orders/mercadopago-webhook?id=12%3B%20DROP&topic=payment", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Consistently(queue.Submissions, 50*time.Millisecond).Should(BeEmpty())
		})
	})

	Describe("ForceReconcile", func() {
		It("queues the payment and answers 202", func() {
			// Given
			req := httptest.NewRequest(http.MethodGet, "/api/orders/debug/force/123456", nil)
			rec := httptest.NewRecorder()

			// When
			router.ServeHTTP(rec, req)

			// Then
			Expect(rec.Code).To(Equal(http.StatusAccepted))
			var body order.ForceReconcileResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Message).To(Equal("Reconciliation started"))
			Expect(body.PaymentID).To(Equal("123456"))
			Expect(body.Status).To(Equal(order.SubmitQueued))
			Expect(queue.Submissions()).To(ConsistOf(submission{PaymentID: "123456", Source: order.SourceManual}))
		})

		DescribeTable("tells the operator what the queue did",
			func(submitted order.SubmitStatus, code int, message string) {
				queue.status = submitted
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/debug/force/123456", nil))

				Expect(rec.Code).To(Equal(code))
				var body order.ForceReconcileResponse
				Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
				Expect(body.Status).To(Equal(submitted))
				Expect(body.Message).To(Equal(message))
			},
			Entry("already reconciled", order.SubmitAlreadyReconciled, http.StatusOK, "Payment already reconciled"),
			Entry("already running", order.SubmitInFlight, http.StatusAccepted, "Reconciliation already in progress"),
			Entry("workers busy", order.SubmitDeferred, http.StatusAccepted, "Reconciliation queued; all workers are busy"),
		)

		It("rejects an invalid payment id", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/orders/debug/force/12$34", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(queue.Submissions()).To(BeEmpty())
		})

		It("answers 503 when the queue refuses the job", func() {
			queue.err = errors.New("reconciliation queue closed")
			req := httptest.NewRequest(http.MethodGet, "/api/orders/debug/force/123456", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("LatestStatus", func() {
		It("returns the status for the authenticated user", func() {
			// Given
			service.status = &order.LatestStatusResponse{Status: order.StatusCompleted, OrderID: "order-9"}
			req := httptest.NewRequest(http.MethodGet, "/api/orders/status/latest", nil)
			req = req.WithContext(appErrors.ContextWithUser(req.Context(), &appErrors.User{ID: "buyer-1", Role: "buyer"}))
			rec := httptest.NewRecorder()

			// When
			router.ServeHTTP(rec, req)

			// Then
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"status":"completed","orderId":"order-9"}`))
			Expect(service.userID).To(Equal("buyer-1"))
		})

		It("omits the order id while pending", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/orders/status/latest", nil)
			req = req.WithContext(appErrors.ContextWithUser(req.Context(), &appErrors.User{ID: "buyer-1"}))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Body.String()).To(MatchJSON(`{"status":"pending"}`))
		})

		It("requires authentication", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/orders/status/latest", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})
})
