package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coinvault.com/internal/deposit/domain"
	"coinvault.com/internal/deposit/queue"
	"coinvault.com/internal/deposit/repo"
	"coinvault.com/pkg/metrics"
	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
)

const (
	EventCreated = "created"
	EventUpdated = "updated"
)

// Snapshot 对外审计事件格式，字段名和格式是契约，不能随便改
type Snapshot struct {
	TID         string  `json:"tid"`
	MemberID    string  `json:"memberId"`
	CurrencyID  string  `json:"currencyId"`
	Amount      string  `json:"amount"`
	State       string  `json:"state"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
	CompletedAt *string `json:"completedAt"`
	Address     *string `json:"address"`
	TxID        *string `json:"txid"`
}

type Exporter struct {
	members repo.MemberRepo
	broker  queue.Broker
}

func NewExporter(members repo.MemberRepo, broker queue.Broker) *Exporter {
	return &Exporter{members: members, broker: broker}
}

// Export memberId 永远是会员 UID，由调用方查好传入
func (e *Exporter) Export(d *domain.Deposit, memberUID string) Snapshot {
	s := Snapshot{
		TID:        d.TID,
		MemberID:   memberUID,
		CurrencyID: d.CurrencyID,
		Amount:     FormatAmount(d.Amount),
		State:      string(d.State),
		CreatedAt:  formatTime(d.CreatedAt),
		UpdatedAt:  formatTime(d.UpdatedAt),
		Address:    d.Address,
		TxID:       d.TxID,
	}
	if d.CompletedAt != nil {
		t := formatTime(*d.CompletedAt)
		s.CompletedAt = &t
	}
	return s
}

// Publish 发到 deposit.events.<event>；提交之后调用，失败只返回错误不回滚。
// 查不到会员 UID 时不发，避免 memberId 换成别的格式
func (e *Exporter) Publish(ctx context.Context, event string, d *domain.Deposit) error {
	m, err := e.members.GetMember(ctx, d.MemberID)
	if err == nil && m.UID == "" {
		err = fmt.Errorf("member %d has no uid", d.MemberID)
	}
	if err != nil {
		metrics.EventsExported.WithLabelValues(event, "failed").Inc()
		return fmt.Errorf("export deposit %d: member lookup: %w", d.ID, err)
	}

	data, err := json.Marshal(e.Export(d, m.UID))
	if err != nil {
		metrics.EventsExported.WithLabelValues(event, "failed").Inc()
		return err
	}
	if err := e.broker.Publish(ctx, queue.SubjectPrefixEvents+event, data); err != nil {
		metrics.EventsExported.WithLabelValues(event, "failed").Inc()
		return err
	}
	metrics.EventsExported.WithLabelValues(event, "ok").Inc()
	return nil
}

// FormatAmount 定点小数，整数也带 ".0"，不会出现科学计数法
func FormatAmount(v decimal.Decimal) string {
	s := v.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
