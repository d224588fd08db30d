package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Subtype 链上(coin) / 链下(fiat) 处理路径，创建后不可变
type Subtype string

const (
	SubtypeCoin Subtype = "coin"
	SubtypeFiat Subtype = "fiat"
)

func (s Subtype) Valid() bool { return s == SubtypeCoin || s == SubtypeFiat }

type Deposit struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	TID        string          `gorm:"column:tid;type:varchar(64);not null;uniqueIndex:uk_deposits_tid"`
	MemberID   int64           `gorm:"column:member_id;not null;index:idx_deposits_member_txid,priority:1"`
	CurrencyID string          `gorm:"column:currency_id;type:varchar(10);not null;uniqueIndex:uk_deposits_currency_txid_txout,priority:1"`
	Amount     decimal.Decimal `gorm:"column:amount;type:decimal(32,16);not null"`
	Fee        decimal.Decimal `gorm:"column:fee;type:decimal(32,16);not null"`

	// 链上字段，fiat 为空
	Address     *string `gorm:"column:address;type:varchar(95)"`
	TxID        *string `gorm:"column:txid;type:varchar(128);uniqueIndex:uk_deposits_currency_txid_txout,priority:2;index:idx_deposits_member_txid,priority:2"`
	TxOut       *int    `gorm:"column:txout;uniqueIndex:uk_deposits_currency_txid_txout,priority:3"`
	BlockNumber *int64  `gorm:"column:block_number"`

	Subtype Subtype `gorm:"column:type;type:varchar(30);not null;index:idx_deposits_type"`
	State   State   `gorm:"column:state;type:varchar(30);not null;index:idx_deposits_state_member_currency,priority:1"`
	Comment string  `gorm:"column:comment;type:varchar(255)"`

	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

func (Deposit) TableName() string {
	return "deposits"
}

// Completed 除 submitted 以外都算完成
func (d *Deposit) Completed() bool { return !d.State.Initial() }

func (d *Deposit) Coin() bool { return d.Subtype == SubtypeCoin }

// Fire 守卫 + 改状态；completed_at 只在第一次离开 submitted 时写入。
// 只有状态机在持有记录锁的事务里调用。
func (d *Deposit) Fire(e Event, now time.Time) (State, error) {
	from := d.State
	to, err := Next(from, e)
	if err != nil {
		return from, err
	}
	d.State = to
	if d.Completed() && d.CompletedAt == nil {
		t := now.UTC()
		d.CompletedAt = &t
	}
	d.UpdatedAt = now.UTC()
	return from, nil
}

// Validate 写库前的校验，c 为该充值币种的策略
func (d *Deposit) Validate(c Currency) error {
	if strings.TrimSpace(d.TID) == "" {
		return invalid("tid", RuleRequired, "")
	}
	if d.MemberID <= 0 {
		return invalid("member_id", RuleRequired, "")
	}
	if d.CurrencyID == "" {
		return invalid("currency_id", RuleRequired, "")
	}
	if d.CurrencyID != c.ID {
		return invalid("currency_id", RuleUnknown, d.CurrencyID)
	}
	if !d.Subtype.Valid() {
		return invalid("type", RuleRequired, string(d.Subtype))
	}
	if string(d.Subtype) != string(c.Type) {
		return invalid("type", RuleUnknown, "subtype "+string(d.Subtype)+" on "+string(c.Type)+" currency")
	}
	if !d.State.Valid() {
		return invalid("state", RuleRequired, string(d.State))
	}
	if d.Amount.LessThan(c.MinDepositAmount) {
		return invalid("amount", RuleMinAmount, d.Amount.String()+" < "+c.MinDepositAmount.String())
	}
	if d.Fee.IsNegative() {
		return invalid("fee", RuleNonNeg, d.Fee.String())
	}
	if d.BlockNumber != nil && *d.BlockNumber < 0 {
		return invalid("block_number", RuleNonNeg, "")
	}
	if d.TxOut != nil && d.TxID == nil {
		return invalid("txout", RuleChainRef, "txout without txid")
	}
	// 链上充值 txid / txout / address 必填
	if d.Coin() {
		if d.TxID == nil || strings.TrimSpace(*d.TxID) == "" {
			return invalid("txid", RuleRequired, "on-chain deposit")
		}
		if d.TxOut == nil {
			return invalid("txout", RuleChainRef, "on-chain deposit without txout")
		}
		if *d.TxOut < 0 {
			return invalid("txout", RuleNonNeg, "")
		}
		if d.Address == nil || strings.TrimSpace(*d.Address) == "" {
			return invalid("address", RuleRequired, "on-chain deposit")
		}
	}
	if d.Completed() != (d.CompletedAt != nil) {
		return invalid("completed_at", RuleRequired, "must be set exactly when state is not submitted")
	}
	return nil
}

// HasChainRef (currency, txid, txout) 唯一约束是否适用
func (d *Deposit) HasChainRef() bool { return d.TxID != nil && d.TxOut != nil }

// NewTID 生成外部引用号：TID + 10 位大写十六进制
func NewTID() string {
	id := uuid.New()
	return "TID" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10])
}
