package mysql

import (
	"context"
	"time"

	"coinvault.com/internal/deposit/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repo) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if n.Status == "" {
		n.Status = domain.NotificationPending
	}
	return mapErr(r.getDb(ctx).Create(n).Error)
}

// MarkNotificationSent 幂等：只允许 pending -> sent
func (r *Repo) MarkNotificationSent(ctx context.Context, id int64) error {
	now := r.db.NowFunc()
	err := r.getDb(ctx).Model(&domain.Notification{}).
		Where("id = ? AND status = ?", id, domain.NotificationPending).
		Updates(map[string]any{
			"status":     domain.NotificationSent,
			"sent_at":    now,
			"updated_at": now,
		}).Error
	return mapErr(err)
}

func (r *Repo) MarkNotificationFailed(ctx context.Context, id int64, reason string, maxAttempts int) error {
	if len(reason) > 255 {
		reason = reason[:255]
	}
	db := r.getDb(ctx)
	err := db.Model(&domain.Notification{}).
		Where("id = ? AND status = ?", id, domain.NotificationPending).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
			"updated_at": r.db.NowFunc(),
		}).Error
	if err != nil {
		return mapErr(err)
	}
	if maxAttempts <= 0 {
		return nil
	}
	err = db.Model(&domain.Notification{}).
		Where("id = ? AND status = ? AND attempts >= ?", id, domain.NotificationPending, maxAttempts).
		Update("status", domain.NotificationDropped).Error
	return mapErr(err)
}

func (r *Repo) ClaimPendingNotifications(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Notification, error) {
	var rows []*domain.Notification

	// FOR UPDATE SKIP LOCKED：多个 relay 实例并发抢批次不会互相阻塞
	err := r.getDb(ctx).
		Model(&domain.Notification{}).
		Where("status = ? AND updated_at <= ?", domain.NotificationPending, olderThan).
		Order("id ASC").
		Limit(limit).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Find(&rows).Error
	return rows, mapErr(err)
}
