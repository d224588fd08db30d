package notify

import (
	"context"
	"time"

	"coinvault.com/internal/deposit/domain"
	"coinvault.com/internal/deposit/queue"
	"coinvault.com/pkg/breaker"
	"github.com/segmentio/encoding/json"
)

// Deliverer deliver(templateKind, depositId)；模板渲染和发送由邮件服务负责
type Deliverer interface {
	Deliver(ctx context.Context, kind domain.NotificationKind, depositID int64) error
}

const breakerMailer = "mailer"

type mailPayload struct {
	Kind      domain.NotificationKind `json:"kind"`
	DepositID int64                   `json:"deposit_id"`
	At        time.Time               `json:"at"`
}

// BrokerMailer 把通知意图投到 deposit.mail.<kind>，下游熔断时快速失败
type BrokerMailer struct {
	broker   queue.Broker
	breakers *breaker.Manager
}

func NewBrokerMailer(b queue.Broker, breakers *breaker.Manager) *BrokerMailer {
	return &BrokerMailer{broker: b, breakers: breakers}
}

func (m *BrokerMailer) Deliver(ctx context.Context, kind domain.NotificationKind, depositID int64) error {
	data, err := json.Marshal(mailPayload{Kind: kind, DepositID: depositID, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	return m.breakers.Do(breakerMailer, func() error {
		return m.broker.Publish(ctx, queue.SubjectPrefixMail+string(kind), data)
	})
}
