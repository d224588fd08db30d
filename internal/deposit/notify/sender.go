package notify

import (
	"context"

	"coinvault.com/internal/deposit/domain"
	"coinvault.com/internal/deposit/repo"
	"coinvault.com/pkg/logger"
	"coinvault.com/pkg/metrics"
	"go.uber.org/zap"
)

// Sender 投递一条 outbox 记录并回写结果。失败只记日志，交给 Relay 重试
type Sender struct {
	repo        repo.NotificationRepo
	deliverer   Deliverer
	maxAttempts int
}

func NewSender(r repo.NotificationRepo, d Deliverer, maxAttempts int) *Sender {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Sender{repo: r, deliverer: d, maxAttempts: maxAttempts}
}

// Send 返回是否投递成功
func (s *Sender) Send(ctx context.Context, n *domain.Notification) bool {
	kind := string(n.Kind)
	if err := s.deliverer.Deliver(ctx, n.Kind, n.DepositID); err != nil {
		metrics.Notifications.WithLabelValues(kind, "failed").Inc()
		logger.Error(ctx, "deposit notification failed",
			zap.Int64("notification_id", n.ID),
			zap.Int64("deposit_id", n.DepositID),
			zap.String("kind", kind),
			zap.Int("attempts", n.Attempts+1),
			zap.Error(err))
		if mErr := s.repo.MarkNotificationFailed(ctx, n.ID, err.Error(), s.maxAttempts); mErr != nil {
			logger.Error(ctx, "mark notification failed", zap.Int64("notification_id", n.ID), zap.Error(mErr))
		}
		return false
	}

	metrics.Notifications.WithLabelValues(kind, "sent").Inc()
	if err := s.repo.MarkNotificationSent(ctx, n.ID); err != nil {
		// 已经发出去了，relay 可能会再发一次；邮件服务按 deposit id + kind 去重
		logger.Warn(ctx, "mark notification sent failed", zap.Int64("notification_id", n.ID), zap.Error(err))
	}
	return true
}
