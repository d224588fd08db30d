package common

import (
	"errors"
	"net/http"

	"coinvault.com/pkg/xerr"
	"github.com/gin-gonic/gin"
)

// Response 运维端口统一返回格式，code 取 xerr 错误码
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: xerr.OK, Msg: xerr.MapErrMsg(xerr.OK), Data: data})
}

// Fail 按错误链上的 CodeError 输出；非 CodeError 一律 500
func Fail(c *gin.Context, err error) {
	ce := &xerr.CodeError{Code: xerr.ServerCommonError, Msg: xerr.MapErrMsg(xerr.ServerCommonError)}
	errors.As(err, &ce)
	c.JSON(HTTPStatus(ce.Code), Response{Code: ce.Code, Msg: ce.Msg})
}

// HTTPStatus 错误码到 http 状态码
func HTTPStatus(code int) int {
	switch code {
	case xerr.OK:
		return http.StatusOK
	case xerr.RequestParamsError:
		return http.StatusBadRequest
	case xerr.RecordNotFound:
		return http.StatusNotFound
	case xerr.InvalidTransition:
		return http.StatusConflict
	case xerr.Busy:
		return http.StatusLocked
	case xerr.SettlementFailure:
		return http.StatusBadGateway
	case xerr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
