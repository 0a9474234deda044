package order_test

import (
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/offszn/marketplace/internal/order"
)

var _ = Describe("ParseExternalReference", func() {
	DescribeTable("valid references",
		func(raw, userID string, timestamp int64) {
			ref, err := order.ParseExternalReference(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(ref.UserID).To(Equal(userID))
			Expect(ref.Timestamp).To(Equal(timestamp))
		},
		Entry("string user id", `{"userId":"9b2f","timestamp":1700000000000}`, "9b2f", int64(1700000000000)),
		Entry("numeric user id", `{"userId":42,"timestamp":1}`, "42", int64(1)),
		Entry("missing timestamp", `{"userId":"u-1"}`, "u-1", int64(0)),
	)

	DescribeTable("invalid references",
		func(raw string) {
			_, err := order.ParseExternalReference(raw)
			Expect(err).To(MatchError(order.ErrInvalidExternalReference))
		},
		Entry("empty", ""),
		Entry("not json", "user-1"),
		Entry("no user id", `{"timestamp":1}`),
		Entry("null user id", `{"userId":null}`),
		Entry("blank user id", `{"userId":""}`),
	)
})

var _ = Describe("ParseWebhookNotification", func() {
	It("prefers the legacy query form", func() {
		n := order.ParseWebhookNotification(url.Values{"id": {"1"}, "topic": {"payment"}, "data.id": {"2"}}, nil)
		Expect(n).To(Equal(order.WebhookNotification{PaymentID: "1", Topic: "payment"}))
		Expect(n.IsPayment()).To(BeTrue())
	})

	It("normalizes the topic", func() {
		n := order.ParseWebhookNotification(url.Values{"data.id": {" 77 "}, "type": {"Payment"}}, nil)
		Expect(n.PaymentID).To(Equal("77"))
		Expect(n.IsPayment()).To(BeTrue())
	})

	It("reads numeric ids from the body", func() {
		n := order.ParseWebhookNotification(url.Values{}, []byte(`{"type":"payment","data":{"id":123}}`))
		Expect(n.PaymentID).To(Equal("123"))
		Expect(n.IsPayment()).To(BeTrue())
	})

	It("is not a payment without an id", func() {
		n := order.ParseWebhookNotification(url.Values{"topic": {"payment"}}, []byte("garbage"))
		Expect(n.IsPayment()).To(BeFalse())
	})

	It("validates the payment id", func() {
		Expect(order.WebhookNotification{PaymentID: "123", Topic: "payment"}.Validate()).To(BeNil())
		Expect(order.WebhookNotification{PaymentID: "1 2", Topic: "payment"}.Validate()).NotTo(BeNil())
	})
})
