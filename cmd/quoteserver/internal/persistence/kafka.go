package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/quote-relay/pkg/models"
)

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the value of every record published to Kafka.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewAsyncKafkaWriter builds a batching, fire-and-forget producer.
func NewAsyncKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // symbol key keeps per-symbol ordering
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
}

// KafkaRecordWriter publishes records keyed by symbol.
type KafkaRecordWriter struct {
	writer KafkaWriter
}

func NewKafkaRecordWriter(writer KafkaWriter) *KafkaRecordWriter {
	return &KafkaRecordWriter{writer: writer}
}

func (w *KafkaRecordWriter) WriteTick(ctx context.Context, rec models.TickRecord) error {
	return w.publish(ctx, KindTick, rec.Symbol, rec)
}

func (w *KafkaRecordWriter) WritePriceChange(ctx context.Context, rec models.PriceChangeRecord) error {
	return w.publish(ctx, KindPriceChange, rec.Symbol, rec)
}

func (w *KafkaRecordWriter) publish(ctx context.Context, kind, symbol string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Envelope{Type: kind, Data: data})
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(symbol),
		Value: payload,
	})
}

// Close flushes buffered messages.
func (w *KafkaRecordWriter) Close() error { return w.writer.Close() }

// NopWriter discards records. Used when no sink driver is configured.
type NopWriter struct{}

func (NopWriter) WriteTick(context.Context, models.TickRecord) error               { return nil }
func (NopWriter) WritePriceChange(context.Context, models.PriceChangeRecord) error { return nil }
func (NopWriter) Close() error                                                     { return nil }
