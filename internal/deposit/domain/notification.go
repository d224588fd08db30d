package domain

import "time"

type NotificationKind string

const (
	NotifyAccepted       NotificationKind = "accepted"
	NotifyEscrowReleased NotificationKind = "escrow_released"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	// NotificationDropped 超过最大重试次数，不再投递
	NotificationDropped NotificationStatus = "dropped"
)

// Notification 通知意图，和 accept 在同一个事务里落库；提交后再投递
type Notification struct {
	ID        int64              `gorm:"column:id;primaryKey;autoIncrement"`
	DepositID int64              `gorm:"column:deposit_id;not null;index"`
	Kind      NotificationKind   `gorm:"column:kind;type:varchar(32);not null"`
	Status    NotificationStatus `gorm:"column:status;type:varchar(16);not null;index:idx_notifications_status_created,priority:1"`
	Attempts  int                `gorm:"column:attempts;not null;default:0"`
	LastError string             `gorm:"column:last_error;type:varchar(255)"`
	SentAt    *time.Time         `gorm:"column:sent_at"`
	CreatedAt time.Time          `gorm:"column:created_at;index:idx_notifications_status_created,priority:2"`
	UpdatedAt time.Time          `gorm:"column:updated_at"`
}

func (Notification) TableName() string { return "deposit_notifications" }
