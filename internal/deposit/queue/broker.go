package queue

import "context"

type Message struct {
	Subject string
	Payload []byte
}

// Broker 投递通道，at-least-once，不保证跨 deposit 的顺序
type Broker interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Close() error
}
