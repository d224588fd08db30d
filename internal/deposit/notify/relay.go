package notify

import (
	"context"
	"time"

	"coinvault.com/internal/deposit/domain"
	"coinvault.com/internal/deposit/repo"
	"coinvault.com/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type RelayStore interface {
	repo.Transactor
	repo.NotificationRepo
}

type RelayConfig struct {
	Interval time.Duration
	Batch    int
	// Grace 刚提交的记录由提交方自己投递，relay 只捡超过 Grace 还没发出去的
	Grace time.Duration
	// Rate 每秒最多投递条数
	Rate float64
}

// Relay 重投 outbox 里没有发出去的通知
type Relay struct {
	store   RelayStore
	sender  *Sender
	cfg     RelayConfig
	limiter *rate.Limiter
}

func NewRelay(store RelayStore, sender *Sender, cfg RelayConfig) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 30 * time.Second
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 50
	}
	return &Relay{
		store:   store,
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), int(cfg.Rate)+1),
	}
}

func (r *Relay) Run(ctx context.Context) error {
	tk := time.NewTicker(r.cfg.Interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tk.C:
			n, err := r.RunOnce(ctx)
			if err != nil {
				logger.Error(ctx, "notification relay failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info(ctx, "notification relay delivered", zap.Int("count", n))
			}
		}
	}
}

// RunOnce 处理一批，返回成功投递的条数。
// 行锁持有到投递结束，其他实例 SKIP LOCKED 跳过
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	sent := 0
	err := r.store.Transaction(ctx, func(txCtx context.Context) error {
		rows, err := r.store.ClaimPendingNotifications(txCtx, time.Now().UTC().Add(-r.cfg.Grace), r.cfg.Batch)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			logger.Debug(txCtx, "claimed notifications", zap.Int64s("ids", notificationIDs(rows)))
		}
		for _, n := range rows {
			if err := r.limiter.Wait(txCtx); err != nil {
				return err
			}
			if r.sender.Send(txCtx, n) {
				sent++
			}
		}
		return nil
	})
	return sent, err
}

func notificationIDs(rows []*domain.Notification) []int64 {
	ids := make([]int64, 0, len(rows))
	for _, n := range rows {
		ids = append(ids, n.ID)
	}
	return ids
}
