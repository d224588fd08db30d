package service

import (
	"errors"

	"coinvault.com/internal/deposit/domain"
	"coinvault.com/pkg/xerr"
)

// ToCodeError 领域错误 -> 对外状态码
func ToCodeError(err error) error {
	if err == nil {
		return nil
	}
	var ve *domain.ValidationError
	switch {
	// 入账失败可能包着 Busy (ledger 死锁)，必须按入账失败上报
	case errors.Is(err, domain.ErrSettlement):
		return xerr.Wrap(err, xerr.SettlementFailure, err.Error())
	case errors.As(err, &ve):
		return xerr.Wrap(err, xerr.RequestParamsError, ve.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return xerr.Wrap(err, xerr.InvalidTransition, "")
	case errors.Is(err, domain.ErrBusy):
		return xerr.Wrap(err, xerr.Busy, "")
	case errors.Is(err, domain.ErrNotFound):
		return xerr.Wrap(err, xerr.RecordNotFound, "")
	}
	return xerr.Wrap(err, xerr.ServerCommonError, "")
}
