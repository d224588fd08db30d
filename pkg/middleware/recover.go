package middleware

import (
	"runtime/debug"

	"coinvault.com/pkg/common"
	"coinvault.com/pkg/logger"
	"coinvault.com/pkg/xerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recover panic 记日志后回 500，不让单个请求拖垮进程
func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "http panic",
					zap.String("path", c.FullPath()),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				common.Fail(c, xerr.NewErrCode(xerr.ServerCommonError))
				c.Abort()
			}
		}()
		c.Next()
	}
}
