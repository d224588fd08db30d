package notify

import (
	"context"
	"sync"

	"coinvault.com/internal/deposit/domain"
)

type Delivery struct {
	Kind      domain.NotificationKind
	DepositID int64
}

// MemMailer 记录投递，SetError 后全部失败
type MemMailer struct {
	mu   sync.Mutex
	sent []Delivery
	err  error
}

func NewMemMailer() *MemMailer { return &MemMailer{} }

func (m *MemMailer) Deliver(ctx context.Context, kind domain.NotificationKind, depositID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, Delivery{Kind: kind, DepositID: depositID})
	return nil
}

func (m *MemMailer) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MemMailer) Sent() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.sent...)
}
