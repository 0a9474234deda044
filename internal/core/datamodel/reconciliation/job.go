package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Job struct {
	ID         string     `gorm:"primaryKey;column:id"`
	PaymentID  string     `gorm:"column:payment_id;not null;uniqueIndex"`
	Source     string     `gorm:"column:source;not null"`
	Status     string     `gorm:"column:status;not null;index"`
	Attempts   int        `gorm:"column:attempts;not null;default:0"`
	LastError  *string    `gorm:"column:last_error"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
}

func (Job) TableName() string { return "reconciliation_jobs" }

func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}
