package repo

import (
	"context"
	"time"

	"coinvault.com/internal/deposit/domain"
	"github.com/shopspring/decimal"
)

// Transactor 事务边界；fn 里的所有仓储调用通过 txCtx 复用同一个事务
type Transactor interface {
	Transaction(ctx context.Context, fn func(txCtx context.Context) error) error
}

type DepositRepo interface {
	CreateDeposit(ctx context.Context, d *domain.Deposit) error
	GetDeposit(ctx context.Context, id int64) (*domain.Deposit, error)
	// LockDeposit 事务内 SELECT ... FOR UPDATE
	LockDeposit(ctx context.Context, id int64) (*domain.Deposit, error)
	// UpdateState 乐观条件 state = from；没命中返回 domain.ErrBusy
	UpdateState(ctx context.Context, d *domain.Deposit, from domain.State) error
	ExistsChainRef(ctx context.Context, currencyID, txid string, txout int) (bool, error)
	ExistsTID(ctx context.Context, tid string) (bool, error)
	ListRecent(ctx context.Context, memberID int64, limit int) ([]*domain.Deposit, error)
	ListByCurrencies(ctx context.Context, currencyIDs []string, limit int) ([]*domain.Deposit, error)
}

type MemberRepo interface {
	GetMember(ctx context.Context, id int64) (*domain.Member, error)
	MemberBySN(ctx context.Context, sn string) (*domain.Member, error)
}

// AccountRepo 账本；AddFunds 是唯一的加钱入口
type AccountRepo interface {
	AddFunds(ctx context.Context, memberID int64, currencyID string, amount decimal.Decimal) error
	GetAccount(ctx context.Context, memberID int64, currencyID string) (*domain.Account, error)
}

type NotificationRepo interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	MarkNotificationSent(ctx context.Context, id int64) error
	// MarkNotificationFailed attempts+1，达到 maxAttempts 置为 dropped
	MarkNotificationFailed(ctx context.Context, id int64, reason string, maxAttempts int) error
	// ClaimPendingNotifications 必须在事务里调用，多实例并发抢批次互不阻塞
	ClaimPendingNotifications(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Notification, error)
}

type Repo interface {
	Transactor
	DepositRepo
	MemberRepo
	AccountRepo
	NotificationRepo
}
