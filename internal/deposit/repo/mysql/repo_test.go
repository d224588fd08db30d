package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"coinvault.com/internal/deposit/domain"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) (*Repo, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// :memory: 每个连接一个库
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return New(db), db
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func newCoinDeposit(memberID int64, txid string, txout int) *domain.Deposit {
	return &domain.Deposit{
		TID:        domain.NewTID(),
		MemberID:   memberID,
		CurrencyID: "btc",
		Amount:     decimal.RequireFromString("0.5"),
		Fee:        decimal.Zero,
		Address:    strPtr("bcrt1qga52l9u6hre8wu6r6rh8a8xgexyzf6f7kcfl2v"),
		TxID:       strPtr(txid),
		TxOut:      intPtr(txout),
		Subtype:    domain.SubtypeCoin,
		State:      domain.StateSubmitted,
	}
}

func TestRepo_CreateAndGetDeposit(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	d := newCoinDeposit(1, "tx-1", 0)
	require.NoError(t, r.CreateDeposit(ctx, d))
	require.NotZero(t, d.ID)

	got, err := r.GetDeposit(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.TID, got.TID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, domain.StateSubmitted, got.State)
	assert.Nil(t, got.CompletedAt)

	_, err = r.GetDeposit(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepo_ChainRefUnique(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateDeposit(ctx, newCoinDeposit(1, "tx-dup", 1)))

	err := r.CreateDeposit(ctx, newCoinDeposit(2, "tx-dup", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, domain.RuleUnique, ve.Rule)

	// 不同 txout 不冲突
	require.NoError(t, r.CreateDeposit(ctx, newCoinDeposit(2, "tx-dup", 2)))

	ok, err := r.ExistsChainRef(ctx, "btc", "tx-dup", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.ExistsChainRef(ctx, "btc", "tx-dup", 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepo_TIDUnique(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	first := newCoinDeposit(1, "tx-a", 0)
	first.TID = "TIDWEBHOOK01"
	require.NoError(t, r.CreateDeposit(ctx, first))

	ok, err := r.ExistsTID(ctx, "TIDWEBHOOK01")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.ExistsTID(ctx, "TIDOTHER0001")
	require.NoError(t, err)
	assert.False(t, ok)

	again := newCoinDeposit(1, "tx-b", 0)
	again.TID = "TIDWEBHOOK01"
	err = r.CreateDeposit(ctx, again)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "tid", ve.Field)
	assert.Equal(t, domain.RuleUnique, ve.Rule)

	sameTx := newCoinDeposit(2, "tx-a", 0)
	err = r.CreateDeposit(ctx, sameTx)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "txid", ve.Field)
}

func TestDupErr_NamesIndex(t *testing.T) {
	tests := []struct {
		msg   string
		field string
	}{
		{"Duplicate entry 'TID1' for key 'deposits.uk_deposits_tid'", "tid"},
		{"Duplicate entry 'btc-tx-0' for key 'deposits.uk_deposits_currency_txid_txout'", "txid"},
		{"Duplicate entry 'x' for key 'PRIMARY'", ""},
	}
	for _, tt := range tests {
		err := mapErr(&mysqldrv.MySQLError{Number: errDupEntry, Message: tt.msg})
		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve), tt.msg)
		assert.Equal(t, tt.field, ve.Field, tt.msg)
		assert.Equal(t, domain.RuleUnique, ve.Rule)
	}
}

func TestRepo_UpdateStateIsConditional(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	d := newCoinDeposit(1, "tx-2", 0)
	require.NoError(t, r.CreateDeposit(ctx, d))

	from, err := d.Fire(domain.EventReceive, time.Now())
	require.NoError(t, err)
	require.NoError(t, r.UpdateState(ctx, d, from))

	got, err := r.GetDeposit(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReceived, got.State)
	assert.NotNil(t, got.CompletedAt)

	// 同一个 from 再写一次，条件不再满足
	stale := *got
	stale.State = domain.StateCanceled
	err = r.UpdateState(ctx, &stale, domain.StateSubmitted)
	assert.ErrorIs(t, err, domain.ErrBusy)
}

func TestRepo_AddFunds(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	acc, err := r.GetAccount(ctx, 7, "usdt")
	require.NoError(t, err)
	assert.True(t, acc.Balance.IsZero())

	require.NoError(t, r.AddFunds(ctx, 7, "usdt", decimal.RequireFromString("1.5")))
	require.NoError(t, r.AddFunds(ctx, 7, "usdt", decimal.RequireFromString("2")))
	require.NoError(t, r.AddFunds(ctx, 7, "btc", decimal.RequireFromString("0.1")))

	acc, err = r.GetAccount(ctx, 7, "usdt")
	require.NoError(t, err)
	assert.Equal(t, "3.5", acc.Balance.String())
	assert.Equal(t, int64(1), acc.Version)

	acc, err = r.GetAccount(ctx, 7, "btc")
	require.NoError(t, err)
	assert.Equal(t, "0.1", acc.Balance.String())
}

func TestRepo_TransactionRollsBack(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := r.Transaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, r.AddFunds(txCtx, 9, "btc", decimal.NewFromInt(1)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acc, err := r.GetAccount(ctx, 9, "btc")
	require.NoError(t, err)
	assert.True(t, acc.Balance.IsZero())
}

func TestRepo_Members(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	m := &domain.Member{UID: "ID0000000001", SN: "SN0001", Email: "a@example.com"}
	require.NoError(t, db.Create(m).Error)

	got, err := r.MemberBySN(ctx, "SN0001")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	got, err = r.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "ID0000000001", got.UID)

	_, err = r.MemberBySN(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepo_Listing(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := newCoinDeposit(1, "tx-list", i)
		require.NoError(t, r.CreateDeposit(ctx, d))
	}
	fiat := &domain.Deposit{
		TID: domain.NewTID(), MemberID: 2, CurrencyID: "xusd",
		Amount: decimal.NewFromInt(100), Subtype: domain.SubtypeFiat, State: domain.StateSubmitted,
	}
	require.NoError(t, r.CreateDeposit(ctx, fiat))

	rows, err := r.ListRecent(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Greater(t, rows[0].ID, rows[1].ID, "newest first")

	rows, err = r.ListByCurrencies(ctx, []string{"xusd"}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, fiat.ID, rows[0].ID)

	rows, err = r.ListByCurrencies(ctx, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepo_NotificationOutbox(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	n := &domain.Notification{DepositID: 1, Kind: domain.NotifyAccepted}
	require.NoError(t, r.CreateNotification(ctx, n))
	assert.Equal(t, domain.NotificationPending, n.Status)

	future := time.Now().UTC().Add(time.Minute)
	var claimed []*domain.Notification
	require.NoError(t, r.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		claimed, err = r.ClaimPendingNotifications(txCtx, future, 10)
		return err
	}))
	require.Len(t, claimed, 1)

	// 宽限期内的不会被抢
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, r.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		claimed, err = r.ClaimPendingNotifications(txCtx, past, 10)
		return err
	}))
	assert.Empty(t, claimed)

	require.NoError(t, r.MarkNotificationFailed(ctx, n.ID, "nats down", 2))
	require.NoError(t, r.MarkNotificationFailed(ctx, n.ID, "nats down", 2))

	var got domain.Notification
	require.NoError(t, r.getDb(ctx).First(&got, n.ID).Error)
	assert.Equal(t, domain.NotificationDropped, got.Status)
	assert.Equal(t, 2, got.Attempts)

	n2 := &domain.Notification{DepositID: 2, Kind: domain.NotifyEscrowReleased}
	require.NoError(t, r.CreateNotification(ctx, n2))
	require.NoError(t, r.MarkNotificationSent(ctx, n2.ID))
	var sent domain.Notification
	require.NoError(t, r.getDb(ctx).First(&sent, n2.ID).Error)
	assert.Equal(t, domain.NotificationSent, sent.Status)
	assert.NotNil(t, sent.SentAt)
}
