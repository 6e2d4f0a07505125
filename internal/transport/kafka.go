package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/rs/zerolog/log"
)

type KafkaOptions struct {
	Brokers string
	GroupID string
	Topic   string
}

// KafkaSource reads a topic with auto commit disabled. Ack commits the
// message offset.
type KafkaSource struct {
	c     *kafka.Consumer
	topic string
}

func NewKafkaSource(opts KafkaOptions) (*KafkaSource, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  opts.Brokers,
		"group.id":           opts.GroupID,
		"enable.auto.commit": false,
		"auto.offset.reset":  "latest",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &KafkaSource{c: c, topic: opts.Topic}, nil
}

func (s *KafkaSource) Consume(ctx context.Context, h Handler) error {
	if err := s.c.SubscribeTopics([]string{s.topic}, nil); err != nil {
		return fmt.Errorf("subscribe to topic %s: %w", s.topic, err)
	}
	log.Info().Str("topic", s.topic).Msg("consuming from kafka")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		m, err := s.c.ReadMessage(100 * time.Millisecond)
		if err != nil {
			// Timeouts and transient errors are handled by the client.
			if kerr, ok := err.(kafka.Error); ok && kerr.IsFatal() {
				return fmt.Errorf("kafka consumer: %w", err)
			}
			continue
		}
		h(kafkaMessage{c: s.c, m: m})
	}
}

func (s *KafkaSource) Close() error { return s.c.Close() }

type kafkaMessage struct {
	c *kafka.Consumer
	m *kafka.Message
}

func (k kafkaMessage) Schema() string {
	for _, hdr := range k.m.Headers {
		if hdr.Key == SchemaHeader {
			return string(hdr.Value)
		}
	}
	return ""
}

func (k kafkaMessage) Data() []byte { return k.m.Value }

func (k kafkaMessage) Ack() error {
	_, err := k.c.CommitMessage(k.m)
	return err
}
