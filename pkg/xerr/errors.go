package xerr

import (
	"errors"
	"fmt"
)

// 常用错误码定义
const (
	OK                 = 200
	RequestParamsError = 400
	RecordNotFound     = 404
	InvalidTransition  = 409
	Busy               = 423
	ServerCommonError  = 500
	DbError            = 501
	SettlementFailure  = 502
	Unavailable        = 503
)

type CodeError struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	cause error
}

func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("ErrCode:%d, Msg:%s: %v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func (e *CodeError) Unwrap() error { return e.cause }

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// Wrap 保留原始错误链，errors.Is / errors.As 仍然可用
func Wrap(err error, code int, msg string) error {
	if err == nil {
		return nil
	}
	if msg == "" {
		msg = MapErrMsg(code)
	}
	return &CodeError{Code: code, Msg: msg, cause: err}
}

// CodeOf 取出错误链上最外层的错误码，nil 返回 OK，非 CodeError 返回 ServerCommonError
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ServerCommonError
}

// Retryable 只有 Busy 值得调用方重试
func Retryable(err error) bool {
	return CodeOf(err) == Busy
}

func MapErrMsg(code int) string {
	switch code {
	case OK:
		return "ok"
	case ServerCommonError:
		return "服务器开小差了"
	case RequestParamsError:
		return "参数错误"
	case DbError:
		return "数据库繁忙"
	case RecordNotFound:
		return "记录不存在"
	case InvalidTransition:
		return "状态不允许该操作"
	case Busy:
		return "记录正在处理中，请重试"
	case SettlementFailure:
		return "入账失败"
	case Unavailable:
		return "依赖服务不可用"
	default:
		return "未知错误"
	}
}
