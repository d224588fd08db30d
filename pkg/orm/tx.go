package orm

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// Transaction 开启事务，并把 tx 注入到 context 中；fn 内部通过 Conn(ctx, db) 拿到同一个 tx。
// 已经在事务里时直接复用外层事务。
func Transaction(ctx context.Context, db *gorm.DB, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn 优先返回 context 中的事务
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// InTx 当前 context 是否处于事务中
func InTx(ctx context.Context) bool {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok && tx != nil
}
