package queue

import (
	"context"
	"fmt"
	"time"

	"coinvault.com/pkg/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	StreamCollection = "DEPOSIT_COLLECTION"
	StreamEvents     = "DEPOSIT_EVENTS"
	StreamMail       = "DEPOSIT_MAIL"
)

// Connect 建立 NATS 连接和 JetStream 上下文，断线无限重连
func Connect(url, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn(context.Background(), "nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(context.Background(), "nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}

// EnsureStreams 建好持久化 stream；消费方靠 durable consumer 拿 at-least-once
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      StreamCollection,
			Subjects:  []string{SubjectPrefixCollection + ">"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.WorkQueuePolicy,
			Replicas:  1,
		},
		{
			Name:      StreamEvents,
			Subjects:  []string{SubjectPrefixEvents + ">"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      StreamMail,
			Subjects:  []string{SubjectPrefixMail + ">"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.WorkQueuePolicy,
			Replicas:  1,
		},
	}
	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info(ctx, "ensured stream", zap.String("stream", cfg.Name))
	}
	return nil
}

// JetStreamBroker 发布后等服务端 ack，失败返回错误交给调用方记录
type JetStreamBroker struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewJetStreamBroker(nc *nats.Conn, js jetstream.JetStream) *JetStreamBroker {
	return &JetStreamBroker{nc: nc, js: js}
}

func (b *JetStreamBroker) Publish(ctx context.Context, subject string, payload []byte) error {
	_, err := b.js.Publish(ctx, subject, payload)
	return err
}

func (b *JetStreamBroker) Close() error {
	if b.nc != nil {
		_ = b.nc.Drain()
	}
	return nil
}

// NatsBroker core NATS，无持久化，本地联调用
type NatsBroker struct {
	nc *nats.Conn
}

func NewNatsBroker(nc *nats.Conn) *NatsBroker { return &NatsBroker{nc: nc} }

func (b *NatsBroker) Publish(ctx context.Context, subject string, payload []byte) error {
	return b.nc.Publish(subject, payload)
}

func (b *NatsBroker) Close() error {
	if b.nc != nil {
		_ = b.nc.Drain()
	}
	return nil
}
