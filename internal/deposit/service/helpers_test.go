package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"coinvault.com/internal/currency"
	"coinvault.com/internal/deposit/domain"
	"coinvault.com/internal/deposit/lock"
	"coinvault.com/internal/deposit/notify"
	"coinvault.com/internal/deposit/queue"
	depositmysql "coinvault.com/internal/deposit/repo/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testCurrencies = []currency.Entry{
	{ID: "btc", Type: "coin", MinDepositAmount: "0.0001"},
	{ID: "usdt", Type: "coin", MinDepositAmount: "1", FeeAware: true},
	{ID: "ngn", Type: "fiat", MinDepositAmount: "100"},
	{ID: "afcash", Type: "fiat", MinDepositAmount: "0"},
	{ID: "xusd", Type: "fiat", MinDepositAmount: "10", Escrow: true, SettlementCurrency: "afcash"},
}

type harness struct {
	db       *gorm.DB
	store    *depositmysql.Repo
	policies *currency.Registry
	locker   *lock.MemLocker
	broker   *queue.MemBroker
	mailer   *recordingMailer
	machine  *Machine
	member   *domain.Member
}

type option func(*Deps)

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// :memory: 每个连接是一个独立的库
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, depositmysql.AutoMigrate(db))

	policies, err := currency.NewRegistry(context.Background(),
		currency.StaticLoader(func() []currency.Entry { return testCurrencies }), 0)
	require.NoError(t, err)

	h := &harness{
		db:       db,
		store:    depositmysql.New(db),
		policies: policies,
		locker:   lock.NewMemLocker(2 * time.Second),
		broker:   queue.NewMemBroker(),
		mailer:   &recordingMailer{},
	}
	h.member = &domain.Member{UID: "ID1A2B3C4D5E", SN: "SN00000001", Email: "alice@example.com"}
	require.NoError(t, db.Create(h.member).Error)

	deps := Deps{
		Repo:     h.store,
		Policies: policies,
		Locker:   h.locker,
		Notifier: notify.NewSender(h.store, h.mailer, 5),
		Exporter: NewExporter(h.store, h.broker),
	}
	for _, o := range opts {
		o(&deps)
	}
	h.machine = NewMachine(deps)
	return h
}

func (h *harness) create(t *testing.T, currencyID, amount string) *domain.Deposit {
	t.Helper()
	in := NewDeposit{
		MemberID:   h.member.ID,
		CurrencyID: currencyID,
		Amount:     decimal.RequireFromString(amount),
	}
	c, ok := h.policies.Policy(currencyID)
	require.True(t, ok)
	if c.Type == domain.CurrencyCoin {
		txid := "0x" + domain.NewTID()
		txout := 0
		addr := "0x52908400098527886E0F7030069857D2E4169EE7"
		in.TxID, in.TxOut, in.Address = &txid, &txout, &addr
	}
	d, err := h.machine.Create(context.Background(), in)
	require.NoError(t, err)
	return d
}

func (h *harness) balance(t *testing.T, currencyID string) decimal.Decimal {
	t.Helper()
	acc, err := h.store.GetAccount(context.Background(), h.member.ID, currencyID)
	require.NoError(t, err)
	return acc.Balance
}

func (h *harness) reload(t *testing.T, id int64) *domain.Deposit {
	t.Helper()
	d, err := h.machine.Get(context.Background(), id)
	require.NoError(t, err)
	return d
}

func (h *harness) notifications(t *testing.T, depositID int64) []domain.Notification {
	t.Helper()
	var rows []domain.Notification
	require.NoError(t, h.db.Where("deposit_id = ?", depositID).Find(&rows).Error)
	return rows
}

type delivery struct {
	Kind      domain.NotificationKind
	DepositID int64
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []delivery
}

func (m *recordingMailer) Deliver(ctx context.Context, kind domain.NotificationKind, depositID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, delivery{Kind: kind, DepositID: depositID})
	return nil
}

func (m *recordingMailer) Sent() []delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]delivery(nil), m.sent...)
}
