package mysql

import (
	"context"
	"errors"

	"coinvault.com/internal/deposit/domain"
	"gorm.io/gorm/clause"
)

func (r *Repo) CreateDeposit(ctx context.Context, d *domain.Deposit) error {
	err := mapErr(r.getDb(ctx).Create(d).Error)
	var ve *domain.ValidationError
	if errors.As(err, &ve) && ve.Rule == domain.RuleUnique && ve.Field == "" {
		// 驱动没带索引名 (sqlite 翻译后的错误)，回查一次定位冲突的键
		if taken, _ := r.ExistsTID(ctx, d.TID); taken {
			return errors.Join(tidTaken(d.TID), err)
		}
		return errors.Join(chainRefTaken(), err)
	}
	return err
}

func (r *Repo) GetDeposit(ctx context.Context, id int64) (*domain.Deposit, error) {
	var d domain.Deposit
	if err := r.getDb(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

// LockDeposit 行锁一直持有到事务结束（sqlite 驱动会忽略 FOR UPDATE）
func (r *Repo) LockDeposit(ctx context.Context, id int64) (*domain.Deposit, error) {
	var d domain.Deposit
	err := r.getDb(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&d).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

func (r *Repo) UpdateState(ctx context.Context, d *domain.Deposit, from domain.State) error {
	res := r.getDb(ctx).Model(&domain.Deposit{}).
		Where("id = ? AND state = ?", d.ID, from).
		Updates(map[string]any{
			"state":        d.State,
			"completed_at": d.CompletedAt,
			"updated_at":   d.UpdatedAt,
		})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		// 锁外有人改了状态
		return domain.ErrBusy
	}
	return nil
}

func (r *Repo) ExistsChainRef(ctx context.Context, currencyID, txid string, txout int) (bool, error) {
	var n int64
	err := r.getDb(ctx).Model(&domain.Deposit{}).
		Where("currency_id = ? AND txid = ? AND txout = ?", currencyID, txid, txout).
		Count(&n).Error
	return n > 0, mapErr(err)
}

func (r *Repo) ExistsTID(ctx context.Context, tid string) (bool, error) {
	var n int64
	err := r.getDb(ctx).Model(&domain.Deposit{}).Where("tid = ?", tid).Count(&n).Error
	return n > 0, mapErr(err)
}

func (r *Repo) ListRecent(ctx context.Context, memberID int64, limit int) ([]*domain.Deposit, error) {
	var rows []*domain.Deposit
	err := r.getDb(ctx).
		Where("member_id = ?", memberID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, mapErr(err)
}

func (r *Repo) ListByCurrencies(ctx context.Context, currencyIDs []string, limit int) ([]*domain.Deposit, error) {
	if len(currencyIDs) == 0 {
		return nil, nil
	}
	var rows []*domain.Deposit
	err := r.getDb(ctx).
		Where("currency_id IN ?", currencyIDs).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, mapErr(err)
}
