package queue

import (
	"context"
	"sync"
)

// MemBroker 单进程/测试用；记录所有已发布的消息
type MemBroker struct {
	mu   sync.RWMutex
	subs map[string][]chan Message
	sent []Message
	err  error
}

func NewMemBroker() *MemBroker {
	return &MemBroker{subs: make(map[string][]chan Message)}
}

func (b *MemBroker) Publish(ctx context.Context, subject string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	msg := Message{Subject: subject, Payload: append([]byte(nil), payload...)}
	b.sent = append(b.sent, msg)

	// 投递在锁内完成，退订方拿到锁后才会 close；慢订阅者直接丢
	for _, ch := range b.subs[subject] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, subjects []string) (<-chan Message, error) {
	ch := make(chan Message, 1024)
	b.mu.Lock()
	for _, s := range subjects {
		b.subs[s] = append(b.subs[s], ch)
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, s := range subjects {
			kept := make([]chan Message, 0, len(b.subs[s]))
			for _, c := range b.subs[s] {
				if c != ch {
					kept = append(kept, c)
				}
			}
			if len(kept) == 0 {
				delete(b.subs, s)
			} else {
				b.subs[s] = kept
			}
		}
		close(ch)
	}()
	return ch, nil
}

// SetError 之后的 Publish 都返回 err；nil 恢复
func (b *MemBroker) SetError(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// Sent 已发布消息的快照；subject 为空返回全部
func (b *MemBroker) Sent(subject string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Message
	for _, m := range b.sent {
		if subject == "" || m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

func (b *MemBroker) Close() error { return nil }
