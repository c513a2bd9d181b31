package kafka

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the part of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaGoPublisher publishes with segmentio/kafka-go. Keys are hashed so
// every event for one order lands on the same partition.
type KafkaGoPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaGoPublisher(brokers []string, topic string, log *zap.Logger) *KafkaGoPublisher {
	sugar := log.Named("kafka-go").Sugar()
	return &KafkaGoPublisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			ErrorLogger:  kafkago.LoggerFunc(sugar.Errorf),
		},
		now: time.Now,
	}
}

func (p *KafkaGoPublisher) Publish(ctx context.Context, key, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafkago.Message{
		Key:     key,
		Value:   value,
		Time:    p.now(),
		Headers: []kafkago.Header{{Key: "content-type", Value: []byte("application/json")}},
	})
	return errors.Wrap(err, "kafka-go write")
}

func (p *KafkaGoPublisher) Close() error {
	return p.writer.Close()
}
