package notification

import "time"

type Notification struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	UserID    string    `gorm:"column:user_id;not null;index"`
	ActorID   *string   `gorm:"column:actor_id"`
	Type      string    `gorm:"column:type;not null"`
	Message   string    `gorm:"column:message;not null"`
	Link      string    `gorm:"column:link"`
	IsRead    bool      `gorm:"column:is_read;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Notification) TableName() string { return "notifications" }
