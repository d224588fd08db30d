package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("deposit: validation failed")
	ErrInvalidTransition = errors.New("deposit: invalid transition")
	ErrBusy              = errors.New("deposit: record busy")
	ErrSettlement        = errors.New("deposit: settlement failed")
	ErrNotFound          = errors.New("deposit: not found")
)

// 校验规则名，ValidationError.Rule 取值
const (
	RuleRequired  = "required"
	RuleMinAmount = "min_deposit_amount"
	RuleNonNeg    = "non_negative"
	RuleUnique    = "unique"
	RuleUnknown   = "unknown"
	RuleChainRef  = "chain_reference"
)

// ValidationError 带上具体失败的字段和规则，便于排查
type ValidationError struct {
	Field  string
	Rule   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("deposit: %s violates %s", e.Field, e.Rule)
	}
	return fmt.Sprintf("deposit: %s violates %s: %s", e.Field, e.Rule, e.Detail)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, rule, detail string) error {
	return &ValidationError{Field: field, Rule: rule, Detail: detail}
}

// TransitionError 守卫拒绝；记录不变
type TransitionError struct {
	Event Event
	From  State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("deposit: cannot %s from %s", e.Event, e.From)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// SettlementError 入账失败，整个迁移已回滚
type SettlementError struct {
	DepositID  int64
	CurrencyID string
	Err        error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("deposit %d: credit %s failed: %v", e.DepositID, e.CurrencyID, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }

func (e *SettlementError) Is(target error) bool { return target == ErrSettlement }
