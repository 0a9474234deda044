package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	reconciliationDatamodel "github.com/offszn/marketplace/internal/core/datamodel/reconciliation"
	"github.com/offszn/marketplace/internal/reconciliation"
)

var ErrJobNotFound = errors.New("reconciliation job not found")

type JobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewJobRepository(db *gorm.DB) reconciliation.JobStore {
	return &JobRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *JobRepository) Upsert(ctx context.Context, paymentID, source string) (*reconciliationDatamodel.Job, error) {
	db := r.db.WithContext(ctx)

	job := &reconciliationDatamodel.Job{
		PaymentID: paymentID,
		Source:    source,
		Status:    string(reconciliation.StatusPending),
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}},
		DoNothing: true,
	}).Create(job)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		return job, nil
	}

	// re-arm finished jobs that did not produce an order
	err := db.Model(&reconciliationDatamodel.Job{}).
		Where("payment_id = ? AND status IN ?", paymentID, []string{
			string(reconciliation.StatusExhausted),
			string(reconciliation.StatusRejected),
		}).
		Updates(map[string]interface{}{
			"status":      string(reconciliation.StatusPending),
			"source":      source,
			"finished_at": nil,
		}).Error
	if err != nil {
		return nil, err
	}

	return r.FindByPaymentID(ctx, paymentID)
}

func (r *JobRepository) MarkRunning(ctx context.Context, paymentID string) error {
	return r.setStatus(ctx, paymentID, reconciliation.StatusRunning, reconciliation.StatusPending, reconciliation.StatusRunning)
}

func (r *JobRepository) MarkPending(ctx context.Context, paymentID string) error {
	return r.setStatus(ctx, paymentID, reconciliation.StatusPending, reconciliation.StatusRunning)
}

func (r *JobRepository) setStatus(ctx context.Context, paymentID string, to reconciliation.Status, from ...reconciliation.Status) error {
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}
	return r.db.WithContext(ctx).
		Model(&reconciliationDatamodel.Job{}).
		Where("payment_id = ? AND status IN ?", paymentID, allowed).
		Update("status", string(to)).Error
}

func (r *JobRepository) MarkFinished(ctx context.Context, paymentID string, status reconciliation.Status, attempts int, lastErr string) error {
	updates := map[string]interface{}{
		"status":      string(status),
		"attempts":    gorm.Expr("attempts + ?", attempts),
		"finished_at": r.now(),
		"last_error":  nil,
	}
	if lastErr != "" {
		updates["last_error"] = lastErr
	}

	res := r.db.WithContext(ctx).
		Model(&reconciliationDatamodel.Job{}).
		Where("payment_id = ?", paymentID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *JobRepository) ResetRunning(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&reconciliationDatamodel.Job{}).
		Where("status = ?", string(reconciliation.StatusRunning)).
		Update("status", string(reconciliation.StatusPending))
	return res.RowsAffected, res.Error
}

func (r *JobRepository) ListPending(ctx context.Context, limit int) ([]*reconciliationDatamodel.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	var jobs []*reconciliationDatamodel.Job
	err := r.db.WithContext(ctx).
		Where("status = ?", string(reconciliation.StatusPending)).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *JobRepository) FindByPaymentID(ctx context.Context, paymentID string) (*reconciliationDatamodel.Job, error) {
	var job reconciliationDatamodel.Job
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}
