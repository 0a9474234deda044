package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/offszn/marketplace/internal"
	"github.com/offszn/marketplace/internal/auth"
	"github.com/offszn/marketplace/pkg/logger"
)

func errorCode(rec *httptest.ResponseRecorder) internal.ErrorCode {
	var body struct {
		Error struct {
			Code internal.ErrorCode `json:"code"`
		} `json:"error"`
	}
	Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body.Error.Code
}

var _ = Describe("Auth Middleware", func() {
	var (
		repo     *MockUserRepository
		service  *auth.Service
		handler  *auth.Handler
		rbac     *auth.RBACAuthorization
		seenUser *internal.User
		next     http.Handler
	)

	BeforeEach(func() {
		repo = NewMockUserRepository(
			&auth.UserRecord{ID: "admin-1", Email: "admin@offszn.com", Role: internal.RoleAdmin, IsActive: true},
			&auth.UserRecord{ID: "buyer-1", Email: "buyer@offszn.com", Role: "buyer", IsActive: true},
			&auth.UserRecord{ID: "banned-1", Email: "banned@offszn.com", Role: "buyer", IsActive: false},
		)
		service = auth.NewService(repo, auth.NewJWTTokenGenerator(testSecret, time.Hour))
		handler = auth.NewHandler(service, logger.Discard())
		rbac = auth.NewRBACAuthorization(logger.Discard())

		seenUser = nil
		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenUser, _ = internal.UserFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})
	})

	request := func(h http.Handler, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/orders/status/latest", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	tokenFor := func(idOrEmail string) string {
		token, _, err := service.IssueToken(context.Background(), idOrEmail)
		Expect(err).NotTo(HaveOccurred())
		return token
	}

	It("puts the authenticated user in the context", func() {
		rec := request(handler.AuthMiddleware(next), tokenFor("buyer-1"))

		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(seenUser).NotTo(BeNil())
		Expect(seenUser.ID).To(Equal("buyer-1"))
		Expect(seenUser.Role).To(Equal("buyer"))
	})

	It("requires a token", func() {
		rec := request(handler.AuthMiddleware(next), "")

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(seenUser).To(BeNil())
	})

	It("rejects a bad token", func() {
		rec := request(handler.AuthMiddleware(next), "garbage")

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(errorCode(rec)).To(Equal(internal.ErrCodeInvalidToken))
	})

	It("tells the client when the token expired", func() {
		past := time.Now().Add(-2 * time.Hour)
		token := signed(&auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "buyer-1",
			ExpiresAt: jwt.NewNumericDate(past),
		}}, jwt.SigningMethodHS256, []byte(testSecret))

		rec := request(handler.AuthMiddleware(next), token)

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(errorCode(rec)).To(Equal(internal.ErrCodeTokenExpired))
	})

	It("rejects tokens of deactivated users", func() {
		token, err := auth.NewJWTTokenGenerator(testSecret, time.Hour).GenerateAccessToken("banned-1", "banned@offszn.com", "buyer")
		Expect(err).NotTo(HaveOccurred())

		rec := request(handler.AuthMiddleware(next), token)

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("answers 500 when the user store fails", func() {
		token := tokenFor("buyer-1")
		repo.err = errors.New("db down")

		rec := request(handler.AuthMiddleware(next), token)

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
	})

	Describe("RequireAdmin", func() {
		var protected http.Handler

		BeforeEach(func() {
			protected = handler.AuthMiddleware(rbac.RequireAdmin()(next))
		})

		It("lets admins through", func() {
			rec := request(protected, tokenFor("admin-1"))

			Expect(rec.Code).To(Equal(http.StatusNoContent))
		})

		It("forbids other roles", func() {
			rec := request(protected, tokenFor("buyer-1"))

			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(errorCode(rec)).To(Equal(internal.ErrCodeInsufficientRole))
		})

		It("requires an authenticated user", func() {
			rec := request(rbac.RequireAdmin()(next), "")

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("RequireRole", func() {
		It("accepts any of the listed roles", func() {
			h := handler.AuthMiddleware(rbac.RequireRole("seller", "buyer")(next))

			rec := request(h, tokenFor("buyer-1"))

			Expect(rec.Code).To(Equal(http.StatusNoContent))
		})
	})
})
