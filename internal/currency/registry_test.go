package currency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coinvault.com/internal/deposit/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries() []Entry {
	return []Entry{
		{ID: "BTC", Type: "coin", MinDepositAmount: "0.0001"},
		{ID: "usdt", Type: "coin", MinDepositAmount: "1", FeeAware: true},
		{ID: "afcash", Type: "fiat", MinDepositAmount: "0"},
		{ID: "xusd", Type: "fiat", MinDepositAmount: "10", Escrow: true, SettlementCurrency: "afcash"},
	}
}

func TestRegistry_Policy(t *testing.T) {
	r, err := NewRegistry(context.Background(), StaticLoader(sampleEntries), 0)
	require.NoError(t, err)

	btc, ok := r.Policy("btc")
	require.True(t, ok)
	assert.Equal(t, domain.CurrencyCoin, btc.Type)
	assert.Equal(t, "0.0001", btc.MinDepositAmount.String())

	usdt, ok := r.Policy("USDT")
	require.True(t, ok)
	assert.True(t, usdt.FeeAware)

	xusd, ok := r.Policy("xusd")
	require.True(t, ok)
	assert.True(t, xusd.Escrow)
	assert.Equal(t, "afcash", xusd.CreditCurrency())

	_, ok = r.Policy("doge")
	assert.False(t, ok)

	assert.Equal(t, []string{"xusd"}, r.EscrowCurrencies())
}

func TestRegistry_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"bad amount", []Entry{{ID: "btc", Type: "coin", MinDepositAmount: "abc"}}},
		{"escrow without settlement", []Entry{{ID: "xusd", Type: "fiat", Escrow: true}}},
		{"settlement currency missing", []Entry{{ID: "xusd", Type: "fiat", Escrow: true, SettlementCurrency: "afcash"}}},
		{"duplicated", []Entry{{ID: "btc", Type: "coin"}, {ID: "BTC", Type: "coin"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := tt.entries
			_, err := NewRegistry(context.Background(), StaticLoader(func() []Entry { return entries }), 0)
			assert.Error(t, err)
		})
	}
}

func TestRegistry_ReloadKeepsOldCacheOnError(t *testing.T) {
	var fail atomic.Bool
	loader := func(ctx context.Context) (map[string]domain.Currency, error) {
		if fail.Load() {
			return nil, errors.New("config broken")
		}
		return StaticLoader(sampleEntries)(ctx)
	}
	r, err := NewRegistry(context.Background(), loader, time.Nanosecond)
	require.NoError(t, err)

	fail.Store(true)
	time.Sleep(time.Millisecond)
	assert.Error(t, r.EnsureFresh(context.Background()))

	_, ok := r.Policy("btc")
	assert.True(t, ok, "previous policies survive a failed reload")
}

func TestRegistry_ConcurrentReloadIsCoalesced(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(ctx context.Context) (map[string]domain.Currency, error) {
		if calls.Add(1) > 1 {
			<-release
		}
		return StaticLoader(sampleEntries)(ctx)
	}
	r, err := NewRegistry(context.Background(), loader, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Reload(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Less(t, calls.Load(), int32(11))
}
