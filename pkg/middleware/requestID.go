package middleware

import (
	"coinvault.com/pkg/common"
	"coinvault.com/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ReqId 透传或生成 request id，同时放进 gin 上下文、响应头和 request context
func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := common.RequestIDOr(c.GetHeader(common.HeaderRequestID))
		c.Set(common.CtxKeyRequestID, rid)
		c.Header(common.HeaderRequestID, rid)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), rid))
		c.Next()
	}
}
