package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/ethresponder/internal/config"
	"firestige.xyz/ethresponder/internal/metrics"
)

const (
	defaultKafkaBatchTimeout = 100 * time.Millisecond
	defaultKafkaMaxAttempts  = 3
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by the event key.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// WriterConfig maps cfg onto a kafka-go writer configuration.
func WriterConfig(cfg config.KafkaConfig) (kafka.WriterConfig, error) {
	wc := kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    max(cfg.BatchSize, 1),
		BatchTimeout: defaultKafkaBatchTimeout,
		MaxAttempts:  defaultKafkaMaxAttempts,
		Async:        false,
	}
	switch cfg.Compression {
	case "none", "":
		wc.CompressionCodec = nil
	case "gzip":
		wc.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		wc.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		wc.CompressionCodec = compress.Lz4.Codec()
	case "zstd":
		wc.CompressionCodec = compress.Zstd.Codec()
	default:
		return wc, fmt.Errorf("invalid compression type: %s", cfg.Compression)
	}
	return wc, nil
}

// NewKafkaPublisher creates a synchronous writer for cfg.Topic. The
// connection is established lazily on the first write.
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	wc, err := WriterConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{writer: kafka.NewWriter(wc), topic: cfg.Topic}, nil
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Publish(ctx context.Context, e *Event) error {
	body, err := e.Encode()
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(e.Key),
		Value: body,
		Headers: []kafka.Header{
			{Key: "id", Value: []byte(e.ID)},
			{Key: "topic", Value: []byte(e.Topic)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.EventsDroppedTotal.WithLabelValues(p.Name()).Inc()
		return fmt.Errorf("kafka write to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
