package currency

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"coinvault.com/internal/deposit/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Entry 配置文件里的一条币种策略
type Entry struct {
	ID                 string `yaml:"id" mapstructure:"id"`
	Type               string `yaml:"type" mapstructure:"type"`
	MinDepositAmount   string `yaml:"min_deposit_amount" mapstructure:"min_deposit_amount"`
	Escrow             bool   `yaml:"escrow" mapstructure:"escrow"`
	SettlementCurrency string `yaml:"settlement_currency" mapstructure:"settlement_currency"`
	FeeAware           bool   `yaml:"fee_aware" mapstructure:"fee_aware"`
}

func (e Entry) Currency() (domain.Currency, error) {
	min := decimal.Zero
	if e.MinDepositAmount != "" {
		v, err := decimal.NewFromString(e.MinDepositAmount)
		if err != nil {
			return domain.Currency{}, fmt.Errorf("currency %s: bad min_deposit_amount: %w", e.ID, err)
		}
		min = v
	}
	c := domain.Currency{
		ID:                 strings.ToLower(e.ID),
		Type:               domain.CurrencyType(strings.ToLower(e.Type)),
		MinDepositAmount:   min,
		Escrow:             e.Escrow,
		SettlementCurrency: strings.ToLower(e.SettlementCurrency),
		FeeAware:           e.FeeAware,
	}
	return c, c.Validate()
}

type Loader func(ctx context.Context) (map[string]domain.Currency, error)

// StaticLoader 从配置条目构建；entries 用函数取，配置热更新后重新加载即可拿到新值
func StaticLoader(entries func() []Entry) Loader {
	return func(ctx context.Context) (map[string]domain.Currency, error) {
		list := entries()
		out := make(map[string]domain.Currency, len(list))
		for _, e := range list {
			c, err := e.Currency()
			if err != nil {
				return nil, err
			}
			if _, dup := out[c.ID]; dup {
				return nil, fmt.Errorf("currency %s: duplicated", c.ID)
			}
			out[c.ID] = c
		}
		return out, nil
	}
}

// Registry 内存缓存 + 定时刷新；读路径只拿读锁
type Registry struct {
	mu     sync.RWMutex
	cache  map[string]domain.Currency
	loader Loader
	ttl    time.Duration
	sf     singleflight.Group
	lastAt time.Time
}

// NewRegistry 立即加载一次，失败直接返回错误
func NewRegistry(ctx context.Context, loader Loader, ttl time.Duration) (*Registry, error) {
	r := &Registry{cache: make(map[string]domain.Currency), loader: loader, ttl: ttl}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Policy 查币种策略
func (r *Registry) Policy(id string) (domain.Currency, bool) {
	r.mu.RLock()
	c, ok := r.cache[strings.ToLower(id)]
	r.mu.RUnlock()
	return c, ok
}

// EscrowCurrencies 所有 escrow 币种 id，有序
func (r *Registry) EscrowCurrencies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, c := range r.cache {
		if c.Escrow {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Reload 强制重新加载；并发调用合并成一次
func (r *Registry) Reload(ctx context.Context) error {
	_, err, _ := r.sf.Do("reload", func() (any, error) {
		m, err := r.loader(ctx)
		if err != nil {
			return nil, err
		}
		// 结算币种本身也必须有策略
		for id, c := range m {
			if c.Escrow {
				if _, ok := m[c.SettlementCurrency]; !ok {
					return nil, fmt.Errorf("currency %s: settlement currency %s not configured", id, c.SettlementCurrency)
				}
			}
		}
		r.mu.Lock()
		r.cache = m
		r.lastAt = time.Now()
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// EnsureFresh 超过 ttl 才重新加载
func (r *Registry) EnsureFresh(ctx context.Context) error {
	r.mu.RLock()
	need := r.ttl > 0 && time.Since(r.lastAt) > r.ttl
	r.mu.RUnlock()
	if !need {
		return nil
	}
	return r.Reload(ctx)
}

// StartAutoRefresh 阻塞直到 ctx 结束；加载失败保留旧缓存并交给 onErr
func (r *Registry) StartAutoRefresh(ctx context.Context, interval time.Duration, onErr func(error)) {
	if interval <= 0 {
		return
	}
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if err := r.EnsureFresh(ctx); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
