package mysql

import (
	"context"

	"coinvault.com/internal/deposit/domain"
	"coinvault.com/pkg/orm"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo { return &Repo{db: db} }

// AutoMigrate 测试和本地开发用；生产走迁移脚本
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Member{},
		&domain.Account{},
		&domain.Deposit{},
		&domain.Notification{},
	)
}

func (r *Repo) Transaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return mapErr(orm.Transaction(ctx, r.db, fn))
}

func (r *Repo) getDb(ctx context.Context) *gorm.DB {
	return orm.Conn(ctx, r.db)
}
