// Package kafka carries outbox payloads to a broker. Two client libraries are
// supported so a deployment can pick whichever its platform team runs.
package kafka

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	DriverNone    = "none"
	DriverSarama  = "sarama"
	DriverKafkaGo = "kafka-go"
)

// Publisher delivers one message and returns once the broker has it.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// New builds the publisher named by driver.
func New(driver string, brokers []string, topic string, log *zap.Logger) (Publisher, error) {
	switch strings.ToLower(driver) {
	case "", DriverNone:
		return NewLogPublisher(log), nil
	case DriverSarama:
		return NewSaramaPublisher(brokers, topic)
	case DriverKafkaGo:
		if len(brokers) == 0 {
			return nil, errors.New("kafka-go publisher needs at least one broker")
		}
		return NewKafkaGoPublisher(brokers, topic, log), nil
	default:
		return nil, errors.Newf("unknown broker driver %q", driver)
	}
}

// LogPublisher is used when no broker is configured; events are only logged.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("publisher")}
}

func (p *LogPublisher) Publish(_ context.Context, key, value []byte) error {
	p.log.Debug("event", zap.ByteString("key", key), zap.ByteString("value", value))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
