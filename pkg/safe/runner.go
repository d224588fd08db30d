package safe

import (
	"context"
	"runtime/debug"

	"coinvault.com/pkg/logger"
	"go.uber.org/zap"
)

// GoCtx 安全启动协程：recover 之后只记日志，不把整个进程带崩。
// ctx 会被 context.WithoutCancel 包一层，调用方请求结束不会打断后台任务，但保留链路字段。
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	bg := context.WithoutCancel(ctx)

	go func() {
		defer Recover(bg, "goroutine")
		fn(bg)
	}()
}

// Recover 在 defer 中使用
func Recover(ctx context.Context, where string) {
	if r := recover(); r != nil {
		logger.Error(ctx, "🚨 PANIC RECOVERED",
			zap.String("where", where),
			zap.Any("panic", r),
			zap.String("stack", string(debug.Stack())),
		)
	}
}
