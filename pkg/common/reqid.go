package common

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID http 与 nats 消息头共用
const (
	HeaderRequestID = "X-Request-Id"
	CtxKeyRequestID = "request_id"
)

// RequestIDOr 上游带了就沿用，否则新生成
func RequestIDOr(rid string) string {
	if rid != "" {
		return rid
	}
	return uuid.NewString()
}

func RequestIDFromGin(c *gin.Context) string {
	return c.GetString(CtxKeyRequestID)
}
