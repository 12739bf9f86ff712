package audit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

//go:generate mockgen -source ./producer.go -destination=./mocks/producer.go -package=mock_audit

// Producer ships serialized audit entries to the trail.
type Producer interface {
	SendMessage(ctx context.Context, key []byte, value []byte) error
	Close() error
}

// KafkaProducer writes audit entries to a Kafka topic.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 100 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *KafkaProducer) SendMessage(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// ConsoleProducer prints entries to stdout. Used when no brokers are
// configured, typically in local development.
type ConsoleProducer struct{}

func NewConsoleProducer() *ConsoleProducer {
	log.Println("No Kafka brokers configured, audit trail goes to console")
	return &ConsoleProducer{}
}

func (p *ConsoleProducer) SendMessage(ctx context.Context, key, value []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("\n--- AUDIT ---\nKey: %s\nValue: %s\n--- END AUDIT ---\n", key, value)
	return nil
}

func (p *ConsoleProducer) Close() error {
	return nil
}
