package service

import (
	"context"
	"fmt"

	"coinvault.com/internal/deposit/domain"
	"coinvault.com/internal/deposit/repo"
	"coinvault.com/pkg/metrics"
)

// settler accept 的副作用，只在 Machine 持锁的事务里调用
type settler struct {
	accounts repo.AccountRepo
	policies Policies
}

// settle 非 escrow 币种进自己的同币种账户，escrow 币种进该会员的结算币种账户。
// 返回应当发送的通知类型。
func (s *settler) settle(txCtx context.Context, d *domain.Deposit) (domain.NotificationKind, error) {
	c, ok := s.policies.Policy(d.CurrencyID)
	if !ok {
		return "", &domain.SettlementError{
			DepositID:  d.ID,
			CurrencyID: d.CurrencyID,
			Err:        fmt.Errorf("no policy for currency %s", d.CurrencyID),
		}
	}

	target := c.CreditCurrency()
	if err := s.accounts.AddFunds(txCtx, d.MemberID, target, d.Amount); err != nil {
		return "", &domain.SettlementError{DepositID: d.ID, CurrencyID: target, Err: err}
	}

	if c.Escrow {
		metrics.DepositSettlements.WithLabelValues(d.CurrencyID, "settlement").Inc()
		return domain.NotifyEscrowReleased, nil
	}
	metrics.DepositSettlements.WithLabelValues(d.CurrencyID, "own").Inc()
	return domain.NotifyAccepted, nil
}
