package postgres_test

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/offszn/marketplace/internal/auth"
	authPostgres "github.com/offszn/marketplace/internal/auth/postgres"
	userDatamodel "github.com/offszn/marketplace/internal/core/datamodel/user"
)

func TestAuthPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Postgres Suite")
}

var _ = Describe("User Repository", func() {
	var (
		repo   *authPostgres.Repository
		active userDatamodel.User
		ctx    context.Context
	)

	BeforeEach(func() {
		gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		sqlDB, err := gdb.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)

		Expect(gdb.AutoMigrate(&userDatamodel.User{})).To(Succeed())

		active = userDatamodel.User{Email: "admin@offszn.com", Username: "offszn", Role: "admin", IsActive: true}
		Expect(gdb.Create(&active).Error).To(Succeed())

		// sqlx shares the pool gorm opened, like the server does
		repo = authPostgres.NewRepository(sqlx.NewDb(sqlDB, "sqlite3"))
		ctx = context.Background()
	})

	It("finds a user by id", func() {
		rec, err := repo.GetUserByID(ctx, active.ID)

		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Email).To(Equal("admin@offszn.com"))
		Expect(rec.Role).To(Equal("admin"))
		Expect(rec.IsActive).To(BeTrue())
	})

	It("finds a user by email", func() {
		rec, err := repo.GetUserByEmail(ctx, "admin@offszn.com")

		Expect(err).NotTo(HaveOccurred())
		Expect(rec.ID).To(Equal(active.ID))
	})

	It("reports unknown users", func() {
		_, err := repo.GetUserByID(ctx, "5f1b3c52-8d4e-4c8f-9a51-0c1d2e3f4a5b")
		Expect(err).To(MatchError(auth.ErrUserNotFound))

		_, err = repo.GetUserByEmail(ctx, "nobody@offszn.com")
		Expect(err).To(MatchError(auth.ErrUserNotFound))
	})

	It("treats ids that are not UUIDs as unknown", func() {
		_, err := repo.GetUserByID(ctx, "admin@offszn.com")
		Expect(err).To(MatchError(auth.ErrUserNotFound))
	})
})
