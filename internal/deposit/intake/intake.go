package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coinvault.com/internal/deposit/domain"
	"coinvault.com/internal/deposit/service"
	"coinvault.com/pkg/common"
	"coinvault.com/pkg/logger"
	"coinvault.com/pkg/safe"
	"coinvault.com/pkg/xerr"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SubjectCommands 扫链程序 / 支付回调 / 运维后台都往这里发请求
const SubjectCommands = "deposit.commands"

const (
	OpCreate  = "create"
	OpCollect = "collect"
	OpGet     = "get"
	// OpMemberState 运维封禁/解封会员，同步到账户状态服务，结果不影响回包
	OpMemberState = "member_state"
)

// Command 请求体；op 为 create / collect / get 或任意迁移事件名
type Command struct {
	Op          string          `json:"op"`
	ID          int64           `json:"id,omitempty"`
	TID         string          `json:"tid,omitempty"`
	MemberID    int64           `json:"member_id,omitempty"`
	MemberSN    string          `json:"sn,omitempty"`
	CurrencyID  string          `json:"currency_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Address     *string         `json:"address,omitempty"`
	TxID        *string         `json:"txid,omitempty"`
	TxOut       *int            `json:"txout,omitempty"`
	BlockNumber *int64          `json:"block_number,omitempty"`
	Comment     string          `json:"comment,omitempty"`
	UID         string          `json:"uid,omitempty"`
	Disabled    bool            `json:"disabled,omitempty"`
}

type Reply struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	ID    int64  `json:"id,omitempty"`
	TID   string `json:"tid,omitempty"`
	State string `json:"state,omitempty"`
	Route string `json:"route,omitempty"`
	// Retry 只有 busy 为 true
	Retry bool `json:"retry,omitempty"`
}

// Toggler 账户状态服务，见 accountstatus.Client
type Toggler interface {
	ToggleQuietly(ctx context.Context, uid string, disabled bool)
}

const defaultWorkers = 64

type Handler struct {
	machine    *service.Machine
	dispatcher *service.Dispatcher
	accounts   Toggler
	timeout    time.Duration
	// workers 同时处理的命令数上限；单条记录排队等锁不能堵住其它记录
	workers int
}

func NewHandler(m *service.Machine, d *service.Dispatcher, accounts Toggler, timeout time.Duration, workers int) *Handler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Handler{machine: m, dispatcher: d, accounts: accounts, timeout: timeout, workers: workers}
}

// Handle 解码 -> 执行 -> 编码，永远返回一个 Reply
func (h *Handler) Handle(ctx context.Context, data []byte) []byte {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		cmd   Command
		reply Reply
	)
	if err := json.Unmarshal(data, &cmd); err != nil {
		reply = fail(xerr.New(xerr.RequestParamsError, fmt.Sprintf("bad command: %v", err)))
	} else {
		reply = h.exec(ctx, cmd)
	}
	out, _ := json.Marshal(reply)
	return out
}

func (h *Handler) exec(ctx context.Context, cmd Command) Reply {
	switch cmd.Op {
	case OpCreate:
		d, err := h.machine.Create(ctx, service.NewDeposit{
			TID:         cmd.TID,
			MemberID:    cmd.MemberID,
			MemberSN:    cmd.MemberSN,
			CurrencyID:  cmd.CurrencyID,
			Amount:      cmd.Amount,
			Fee:         cmd.Fee,
			Address:     cmd.Address,
			TxID:        cmd.TxID,
			TxOut:       cmd.TxOut,
			BlockNumber: cmd.BlockNumber,
			Comment:     cmd.Comment,
		})
		if err != nil {
			return fail(service.ToCodeError(err))
		}
		return ok(d)

	case OpGet:
		d, err := h.machine.Get(ctx, cmd.ID)
		if err != nil {
			return fail(service.ToCodeError(err))
		}
		return ok(d)

	case OpCollect:
		route, err := h.dispatcher.Collect(ctx, cmd.ID)
		if err != nil {
			r := fail(service.ToCodeError(err))
			r.ID, r.Route = cmd.ID, string(route)
			return r
		}
		return Reply{Code: xerr.OK, Msg: xerr.MapErrMsg(xerr.OK), ID: cmd.ID, Route: string(route)}

	case OpMemberState:
		if cmd.UID == "" {
			return fail(xerr.New(xerr.RequestParamsError, "uid required"))
		}
		if h.accounts != nil {
			h.accounts.ToggleQuietly(ctx, cmd.UID, cmd.Disabled)
		}
		return Reply{Code: xerr.OK, Msg: xerr.MapErrMsg(xerr.OK)}
	}

	e, err := domain.ParseEvent(cmd.Op)
	if err != nil {
		return fail(xerr.Wrap(err, xerr.RequestParamsError, err.Error()))
	}
	res, err := h.machine.Fire(ctx, cmd.ID, e)
	if err != nil {
		r := fail(service.ToCodeError(err))
		r.ID = cmd.ID
		return r
	}
	return ok(res.Deposit)
}

func ok(d *domain.Deposit) Reply {
	return Reply{Code: xerr.OK, Msg: xerr.MapErrMsg(xerr.OK), ID: d.ID, TID: d.TID, State: string(d.State)}
}

func fail(err error) Reply {
	var ce *xerr.CodeError
	if !errors.As(err, &ce) {
		ce = &xerr.CodeError{Code: xerr.ServerCommonError, Msg: xerr.MapErrMsg(xerr.ServerCommonError)}
	}
	return Reply{Code: ce.Code, Msg: ce.Msg, Retry: xerr.Retryable(err)}
}

// Serve queue group 订阅，多实例分摊请求；ctx 结束时先 drain 订阅再等在途命令处理完
func (h *Handler) Serve(ctx context.Context, nc *nats.Conn, queueGroup string) error {
	pool := h.newPool()
	sub, err := nc.QueueSubscribe(SubjectCommands, queueGroup, func(msg *nats.Msg) {
		respond := msg.Respond
		if msg.Reply == "" {
			respond = nil
		}
		h.dispatch(ctx, pool, msg.Header.Get(common.HeaderRequestID), msg.Data, respond)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectCommands, err)
	}
	logger.Info(ctx, "intake listening",
		zap.String("subject", SubjectCommands), zap.String("queue", queueGroup), zap.Int("workers", h.workers))

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		logger.Warn(ctx, "intake drain failed", zap.Error(err))
	}
	// drain 结束后订阅失效，不会再有回调往池里加任务
	deadline := time.Now().Add(30 * time.Second)
	for sub.IsValid() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	return pool.Wait()
}

func (h *Handler) newPool() *errgroup.Group {
	pool := &errgroup.Group{}
	pool.SetLimit(h.workers)
	return pool
}

// dispatch 把命令交给工作池；池满时阻塞 nats 投递协程，形成背压。
// respond 为 nil 表示发送方不要回包
func (h *Handler) dispatch(ctx context.Context, pool *errgroup.Group, rid string, data []byte, respond func([]byte) error) {
	reqCtx := logger.WithRequestID(ctx, common.RequestIDOr(rid))
	pool.Go(func() error {
		defer safe.Recover(reqCtx, "intake")

		out := h.Handle(reqCtx, data)
		if respond == nil {
			return nil
		}
		if err := respond(out); err != nil {
			logger.Warn(reqCtx, "intake respond failed", zap.Error(err))
		}
		return nil
	})
}
