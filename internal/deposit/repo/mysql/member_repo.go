package mysql

import (
	"context"

	"coinvault.com/internal/deposit/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repo) GetMember(ctx context.Context, id int64) (*domain.Member, error) {
	var m domain.Member
	if err := r.getDb(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (r *Repo) MemberBySN(ctx context.Context, sn string) (*domain.Member, error) {
	var m domain.Member
	if err := r.getDb(ctx).Where("sn = ?", sn).First(&m).Error; err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

// AddFunds 原子加钱：账户不存在就建，存在就 balance += amount
func (r *Repo) AddFunds(ctx context.Context, memberID int64, currencyID string, amount decimal.Decimal) error {
	acc := domain.Account{
		MemberID:   memberID,
		CurrencyID: currencyID,
		Balance:    amount,
		Locked:     decimal.Zero,
	}
	err := r.getDb(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "member_id"}, {Name: "currency_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount),
			"version":    gorm.Expr("version + 1"),
			"updated_at": r.db.NowFunc(),
		}),
	}).Create(&acc).Error
	return mapErr(err)
}

// GetAccount 没有账户时返回零余额，不算错误
func (r *Repo) GetAccount(ctx context.Context, memberID int64, currencyID string) (*domain.Account, error) {
	var acc domain.Account
	err := r.getDb(ctx).
		Where("member_id = ? AND currency_id = ?", memberID, currencyID).
		Limit(1).
		Find(&acc).Error
	if err != nil {
		return nil, mapErr(err)
	}
	if acc.ID == 0 {
		return &domain.Account{MemberID: memberID, CurrencyID: currencyID}, nil
	}
	return &acc, nil
}
