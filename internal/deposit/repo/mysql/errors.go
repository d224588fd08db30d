package mysql

import (
	"errors"
	"strings"

	"coinvault.com/internal/deposit/domain"
	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// MySQL 错误号
const (
	errDupEntry     = 1062
	errLockWaitTime = 1205
	errDeadlock     = 1213
)

// mapErr 把驱动错误翻译成领域错误，原始错误保留在链上
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Join(domain.ErrNotFound, err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return dupErr(err)
	}
	var me *mysqldrv.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry:
			return dupErr(err)
		case errLockWaitTime, errDeadlock:
			return errors.Join(domain.ErrBusy, err)
		}
	}
	return err
}

// 唯一索引名，与 domain.Deposit 的 gorm tag 保持一致
const (
	keyTID      = "uk_deposits_tid"
	keyChainRef = "uk_deposits_currency_txid_txout"
)

// dupErr 按违反的索引给出字段；拿不到索引名时 Field 为空，由调用方回查
func dupErr(err error) error {
	var me *mysqldrv.MySQLError
	if errors.As(err, &me) {
		switch {
		case strings.Contains(me.Message, keyTID):
			return errors.Join(tidTaken(""), err)
		case strings.Contains(me.Message, keyChainRef):
			return errors.Join(chainRefTaken(), err)
		}
	}
	return errors.Join(&domain.ValidationError{Rule: domain.RuleUnique, Detail: "duplicate key"}, err)
}

func tidTaken(tid string) *domain.ValidationError {
	return &domain.ValidationError{Field: "tid", Rule: domain.RuleUnique, Detail: strings.TrimSpace(tid + " already exists")}
}

func chainRefTaken() *domain.ValidationError {
	return &domain.ValidationError{Field: "txid", Rule: domain.RuleUnique, Detail: "(currency, txid, txout) already exists"}
}
