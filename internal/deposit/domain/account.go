package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Member struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UID         string    `gorm:"column:uid;type:varchar(32);not null;uniqueIndex"`
	SN          string    `gorm:"column:sn;type:varchar(32);not null;uniqueIndex"`
	Email       string    `gorm:"column:email;type:varchar(255)"`
	Disabled    bool      `gorm:"column:disabled;not null;default:false"`
	APIDisabled bool      `gorm:"column:api_disabled;not null;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (Member) TableName() string { return "members" }

// Account 每个会员每个币种一条
type Account struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	MemberID   int64           `gorm:"column:member_id;not null;uniqueIndex:uk_accounts_member_currency,priority:1"`
	CurrencyID string          `gorm:"column:currency_id;type:varchar(10);not null;uniqueIndex:uk_accounts_member_currency,priority:2"`
	Balance    decimal.Decimal `gorm:"column:balance;type:decimal(32,16);not null"`
	Locked     decimal.Decimal `gorm:"column:locked;type:decimal(32,16);not null"`
	Version    int64           `gorm:"column:version;not null;default:0"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
}

func (Account) TableName() string { return "accounts" }
