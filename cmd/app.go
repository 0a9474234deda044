package cmd

import (
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/offszn/marketplace/internal"
	"github.com/offszn/marketplace/internal/core/events"
	"github.com/offszn/marketplace/internal/mercadopago"
	"github.com/offszn/marketplace/internal/notification"
	notificationPostgres "github.com/offszn/marketplace/internal/notification/postgres"
	"github.com/offszn/marketplace/internal/order"
	orderPostgres "github.com/offszn/marketplace/internal/order/postgres"
	"github.com/offszn/marketplace/internal/reconciliation"
	reconciliationPostgres "github.com/offszn/marketplace/internal/reconciliation/postgres"
)

// reconciliationStack is everything needed to turn a payment id into an order.
type reconciliationStack struct {
	Bus        *events.EventBus
	OrderRepo  order.Repository
	Persister  *order.Persister
	Reconciler *order.Reconciler
	JobStore   reconciliation.JobStore
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx pool with gorm so both see the same connections.
func initGorm(db *sqlx.DB, env string) (*gorm.DB, error) {
	level := gormLogger.Warn
	if env != "production" {
		level = gormLogger.Info
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gdb, nil
}

func buildReconciliationStack(cfg *internal.Config, gdb *gorm.DB, lg *slog.Logger) *reconciliationStack {
	bus := events.NewEventBus(lg)

	notificationService := notification.NewService(notificationPostgres.NewNotificationRepository(gdb), lg)
	notification.NewEventHandler(notificationService, lg).RegisterEventHandlers(bus)

	orderRepo := orderPostgres.NewOrderRepository(gdb, lg)
	persister := order.NewPersister(orderRepo, bus, lg)

	client := mercadopago.NewClient(mercadopago.Config{
		BaseURL:        cfg.Payment.APIURL,
		AccessToken:    cfg.Payment.AccessToken,
		RequestTimeout: cfg.Payment.RequestTimeout,
	}, lg)

	reconciler := order.NewReconciler(client, persister, order.ReconcileConfig{
		MaxAttempts: cfg.Payment.MaxAttempts,
		RetryDelay:  cfg.Payment.RetryDelay,
	}, lg)

	return &reconciliationStack{
		Bus:        bus,
		OrderRepo:  orderRepo,
		Persister:  persister,
		Reconciler: reconciler,
		JobStore:   reconciliationPostgres.NewJobRepository(gdb),
	}
}

func queueConfig(cfg internal.PaymentConfig) reconciliation.Config {
	return reconciliation.Config{
		MaxWorkers:     cfg.MaxWorkers,
		JobQueueSize:   cfg.JobQueueSize,
		WorkerPoolSize: cfg.WorkerPoolSize,
		ResumeInterval: cfg.ResumeInterval,
	}
}
