package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type CurrencyType string

const (
	CurrencyCoin CurrencyType = "coin"
	CurrencyFiat CurrencyType = "fiat"
)

// Currency 币种策略：静态元数据，由配置注入
type Currency struct {
	ID               string
	Type             CurrencyType
	MinDepositAmount decimal.Decimal
	// Escrow 币种不进自己的账户，而是进 SettlementCurrency 对应的结算账户
	Escrow             bool
	SettlementCurrency string
	// FeeAware 链上 token（ERC20 一类），归集时需要单独准备手续费
	FeeAware bool
}

func (c Currency) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("currency: empty id")
	}
	if c.Type != CurrencyCoin && c.Type != CurrencyFiat {
		return fmt.Errorf("currency %s: unknown type %q", c.ID, c.Type)
	}
	if c.MinDepositAmount.IsNegative() {
		return fmt.Errorf("currency %s: negative min_deposit_amount", c.ID)
	}
	if c.Escrow {
		if c.SettlementCurrency == "" {
			return fmt.Errorf("currency %s: escrow currency needs settlement_currency", c.ID)
		}
		if c.SettlementCurrency == c.ID {
			return fmt.Errorf("currency %s: settlement_currency must differ from itself", c.ID)
		}
	}
	return nil
}

// CreditCurrency accept 时实际入账的币种账户
func (c Currency) CreditCurrency() string {
	if c.Escrow {
		return c.SettlementCurrency
	}
	return c.ID
}
