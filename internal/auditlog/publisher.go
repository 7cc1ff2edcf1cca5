// Package auditlog ships decision records to a Kafka topic for durable
// audit trails.
package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"regime-trading-bot/config"
)

// Publisher writes one keyed record.
type Publisher interface {
	Publish(ctx context.Context, key string, record any) error
	Close() error
}

// New returns a Kafka publisher when enabled, otherwise a Nop.
func New(cfg config.KafkaConfig, logger zerolog.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	return NewKafka(cfg, logger)
}

// Nop drops every record.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close() error                               { return nil }

// messageWriter is the part of kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes JSON records keyed by symbol so one symbol's decisions
// stay ordered within a partition.
type Kafka struct {
	writer messageWriter
	topic  string
	logger zerolog.Logger
}

func NewKafka(cfg config.KafkaConfig, logger zerolog.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: 5 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafka(w, cfg.Topic, logger), nil
}

func newKafka(w messageWriter, topic string, logger zerolog.Logger) *Kafka {
	return &Kafka{
		writer: w,
		topic:  topic,
		logger: logger.With().Str("component", "AuditLog").Str("topic", topic).Logger(),
	}
}

func (k *Kafka) Publish(ctx context.Context, key string, record any) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	msg := kafka.Message{Key: []byte(key), Value: value, Time: time.Now().UTC()}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish audit record: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Memory keeps records in order; used for dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	Records []Record
}

// Record is one captured publish.
type Record struct {
	Key   string
	Value json.RawMessage
}

func (m *Memory) Publish(_ context.Context, key string, record any) error {
	value, err := json.Marshal(record)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.Records = append(m.Records, Record{Key: key, Value: value})
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// Snapshot returns a copy of the captured records.
func (m *Memory) Snapshot() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.Records...)
}
