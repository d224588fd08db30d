package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"coinvault.com/internal/deposit/domain"
	"coinvault.com/internal/deposit/lock"
	"coinvault.com/internal/deposit/notify"
	"coinvault.com/internal/deposit/repo"
	"coinvault.com/pkg/logger"
	"coinvault.com/pkg/metrics"
	"coinvault.com/pkg/safe"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Policies 币种策略来源，由 currency.Registry 实现
type Policies interface {
	Policy(id string) (domain.Currency, bool)
	EscrowCurrencies() []string
}

type Deps struct {
	Repo     repo.Repo
	Policies Policies
	Locker   lock.Locker
	// 以下可为 nil
	Notifier *notify.Sender
	Exporter *Exporter
	Now      func() time.Time
}

// Machine 充值状态机：所有 state / completed_at 的修改都走这里
type Machine struct {
	repo     repo.Repo
	policies Policies
	locker   lock.Locker
	notifier *notify.Sender
	exporter *Exporter
	settler  *settler
	now      func() time.Time
	tracer   trace.Tracer
}

func NewMachine(d Deps) *Machine {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Machine{
		repo:     d.Repo,
		policies: d.Policies,
		locker:   d.Locker,
		notifier: d.Notifier,
		exporter: d.Exporter,
		settler:  &settler{accounts: d.Repo, policies: d.Policies},
		now:      d.Now,
		tracer:   otel.Tracer("coinvault.com/internal/deposit/service"),
	}
}

// NewDeposit 入库请求。MemberID 为 0 时按 MemberSN 查会员；TID 为空自动生成
type NewDeposit struct {
	TID         string
	MemberID    int64
	MemberSN    string
	CurrencyID  string
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	Address     *string
	TxID        *string
	TxOut       *int
	BlockNumber *int64
	Comment     string
}

// Create 校验后以 submitted 状态落库
func (m *Machine) Create(ctx context.Context, in NewDeposit) (*domain.Deposit, error) {
	c, ok := m.policies.Policy(in.CurrencyID)
	if !ok {
		return nil, &domain.ValidationError{Field: "currency_id", Rule: domain.RuleUnknown, Detail: in.CurrencyID}
	}

	memberID := in.MemberID
	if memberID == 0 && in.MemberSN != "" {
		mem, err := m.repo.MemberBySN(ctx, in.MemberSN)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, &domain.ValidationError{Field: "sn", Rule: domain.RuleUnknown, Detail: in.MemberSN}
			}
			return nil, err
		}
		memberID = mem.ID
	}

	tid := strings.TrimSpace(in.TID)
	if tid == "" {
		tid = domain.NewTID()
	}
	subtype := domain.SubtypeFiat
	if c.Type == domain.CurrencyCoin {
		subtype = domain.SubtypeCoin
	}

	now := m.now().UTC()
	d := &domain.Deposit{
		TID:         tid,
		MemberID:    memberID,
		CurrencyID:  c.ID,
		Amount:      in.Amount,
		Fee:         in.Fee,
		Address:     in.Address,
		TxID:        in.TxID,
		TxOut:       in.TxOut,
		BlockNumber: in.BlockNumber,
		Subtype:     subtype,
		State:       domain.StateSubmitted,
		Comment:     in.Comment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.Validate(c); err != nil {
		return nil, err
	}
	taken, err := m.repo.ExistsTID(ctx, d.TID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, &domain.ValidationError{Field: "tid", Rule: domain.RuleUnique, Detail: d.TID + " already exists"}
	}
	if d.HasChainRef() {
		exists, err := m.repo.ExistsChainRef(ctx, d.CurrencyID, *d.TxID, *d.TxOut)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &domain.ValidationError{Field: "txid", Rule: domain.RuleUnique, Detail: "(currency, txid, txout) already exists"}
		}
	}
	// 并发插入由唯一索引兜底
	if err := m.repo.CreateDeposit(ctx, d); err != nil {
		return nil, err
	}

	logger.Info(ctx, "deposit created",
		zap.Int64("deposit_id", d.ID),
		zap.String("tid", d.TID),
		zap.String("currency", d.CurrencyID),
		zap.String("amount", d.Amount.String()))
	m.afterCommit(ctx, EventCreated, d, nil)
	return d, nil
}

// Result 一次成功迁移
type Result struct {
	Deposit *domain.Deposit
	From    domain.State
	To      domain.State
}

// Fire 持记录锁、在一个事务里完成 守卫 -> 改状态 -> (accept) 入账 + 通知意图。
// 失败时记录不变，错误可用 errors.Is 区分：
// ErrInvalidTransition / ErrBusy / ErrSettlement / ErrNotFound
func (m *Machine) Fire(ctx context.Context, depositID int64, e domain.Event) (*Result, error) {
	ctx, span := m.tracer.Start(ctx, "deposit.fire", trace.WithAttributes(
		attribute.Int64("deposit.id", depositID),
		attribute.String("deposit.event", e.String()),
	))
	defer span.End()

	res, err := m.fire(ctx, depositID, e)
	outcome := outcomeOf(err)
	metrics.DepositTransitions.WithLabelValues(e.String(), outcome).Inc()
	span.SetAttributes(attribute.String("deposit.outcome", outcome))

	fields := []zap.Field{zap.Int64("deposit_id", depositID), zap.String("event", e.String())}
	switch outcome {
	case "ok":
		logger.Info(ctx, "deposit transition",
			append(fields, zap.String("from", string(res.From)), zap.String("to", string(res.To)))...)
	case "invalid_transition", "busy", "not_found":
		logger.Warn(ctx, "deposit transition refused", append(fields, zap.Error(err))...)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		logger.Error(ctx, "deposit transition failed", append(fields, zap.Error(err))...)
	}
	return res, err
}

func (m *Machine) fire(ctx context.Context, depositID int64, e domain.Event) (*Result, error) {
	if !e.Valid() {
		return nil, &domain.TransitionError{Event: e}
	}

	release, err := m.locker.Acquire(ctx, depositID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		res    *Result
		intent *domain.Notification
	)
	err = m.repo.Transaction(ctx, func(txCtx context.Context) error {
		d, err := m.repo.LockDeposit(txCtx, depositID)
		if err != nil {
			return err
		}
		from, err := d.Fire(e, m.now())
		if err != nil {
			return err
		}
		if err := m.repo.UpdateState(txCtx, d, from); err != nil {
			return err
		}

		if e == domain.EventAccept {
			kind, err := m.settler.settle(txCtx, d)
			if err != nil {
				return err
			}
			intent = &domain.Notification{DepositID: d.ID, Kind: kind, Status: domain.NotificationPending}
			if err := m.repo.CreateNotification(txCtx, intent); err != nil {
				return err
			}
		}
		res = &Result{Deposit: d, From: from, To: d.State}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.afterCommit(ctx, EventUpdated, res.Deposit, intent)
	return res, nil
}

// afterCommit 已提交之后的尽力而为：通知和事件导出，失败只记日志
func (m *Machine) afterCommit(ctx context.Context, event string, d *domain.Deposit, intent *domain.Notification) {
	if m.exporter == nil && (intent == nil || m.notifier == nil) {
		return
	}
	snap := *d
	safe.GoCtx(ctx, func(ctx context.Context) {
		if intent != nil && m.notifier != nil {
			m.notifier.Send(ctx, intent)
		}
		if m.exporter != nil {
			if err := m.exporter.Publish(ctx, event, &snap); err != nil {
				logger.Error(ctx, "deposit event export failed",
					zap.Int64("deposit_id", snap.ID), zap.String("event", event), zap.Error(err))
			}
		}
	})
}

func (m *Machine) Cancel(ctx context.Context, id int64) (*Result, error) {
	return m.Fire(ctx, id, domain.EventCancel)
}

func (m *Machine) Reject(ctx context.Context, id int64) (*Result, error) {
	return m.Fire(ctx, id, domain.EventReject)
}

func (m *Machine) Receive(ctx context.Context, id int64) (*Result, error) {
	return m.Fire(ctx, id, domain.EventReceive)
}

func (m *Machine) Accept(ctx context.Context, id int64) (*Result, error) {
	return m.Fire(ctx, id, domain.EventAccept)
}

func (m *Machine) Skip(ctx context.Context, id int64) (*Result, error) {
	return m.Fire(ctx, id, domain.EventSkip)
}

func (m *Machine) Dispatch(ctx context.Context, id int64) (*Result, error) {
	return m.Fire(ctx, id, domain.EventDispatch)
}

func (m *Machine) Get(ctx context.Context, id int64) (*domain.Deposit, error) {
	return m.repo.GetDeposit(ctx, id)
}

func (m *Machine) ListRecent(ctx context.Context, memberID int64, limit int) ([]*domain.Deposit, error) {
	return m.repo.ListRecent(ctx, memberID, clampLimit(limit))
}

// ListEscrow escrow 币种上的充值，新的在前
func (m *Machine) ListEscrow(ctx context.Context, limit int) ([]*domain.Deposit, error) {
	return m.repo.ListByCurrencies(ctx, m.policies.EscrowCurrencies(), clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrSettlement):
		return "settlement_failure"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	}
	return "error"
}
