package queue

import (
	"context"
	"fmt"

	"github.com/segmentio/encoding/json"
)

// 归集队列名
const (
	QueueCollectionFees = "deposit_collection_fees"
	QueueCollection     = "deposit_collection"
	QueueFiat           = "deposit_fiat"
)

const (
	SubjectPrefixCollection = "deposit.collection."
	SubjectPrefixEvents     = "deposit.events."
	SubjectPrefixMail       = "deposit.mail."
)

// Payload 只带 id；消费方自己回查最新状态，按 id 幂等
type Payload struct {
	ID int64 `json:"id"`
}

// Enqueuer enqueue(queueName, {depositId})
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, depositID int64) error
}

type Publisher struct {
	broker Broker
}

func NewPublisher(b Broker) *Publisher { return &Publisher{broker: b} }

func (p *Publisher) Enqueue(ctx context.Context, queue string, depositID int64) error {
	data, err := json.Marshal(Payload{ID: depositID})
	if err != nil {
		return err
	}
	if err := p.broker.Publish(ctx, CollectionSubject(queue), data); err != nil {
		return fmt.Errorf("enqueue %s deposit %d: %w", queue, depositID, err)
	}
	return nil
}

func CollectionSubject(queue string) string { return SubjectPrefixCollection + queue }

func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	err := json.Unmarshal(data, &p)
	return p, err
}
