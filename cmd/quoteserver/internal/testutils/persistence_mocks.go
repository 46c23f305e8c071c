package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/persistence"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Mu         sync.Mutex
	ShouldFail bool
	Closed     bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

// MockRecordWriter is a persistence.Writer that can be told to fail.
type MockRecordWriter struct {
	Mu      sync.Mutex
	Ticks   []models.TickRecord
	Changes []models.PriceChangeRecord
	Fail    bool
	Closed  bool
	Block   chan struct{} // when non-nil, writes wait on it
}

func (m *MockRecordWriter) WriteTick(ctx context.Context, rec models.TickRecord) error {
	if m.Block != nil {
		<-m.Block
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Fail {
		return errors.New("disk full")
	}
	m.Ticks = append(m.Ticks, rec)
	return nil
}

func (m *MockRecordWriter) WritePriceChange(ctx context.Context, rec models.PriceChangeRecord) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Fail {
		return errors.New("disk full")
	}
	m.Changes = append(m.Changes, rec)
	return nil
}

func (m *MockRecordWriter) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

type MockSleeper struct {
	Slept time.Duration
}

func (m *MockSleeper) Sleep(d time.Duration) { m.Slept += d }

type MockKafkaConn struct {
	CreatedTopics []string
	NoPartitions  bool
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}

func (m *MockKafkaConn) Close() error { return nil }

func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		m.CreatedTopics = append(m.CreatedTopics, t.Topic)
	}
	return nil
}

func (m *MockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.NoPartitions {
		return nil, nil
	}
	return []kafka.Partition{{ID: 0}}, nil
}

type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
	Fail    bool
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (persistence.KafkaConn, error) {
	if m.Fail {
		return nil, errors.New("connection refused")
	}
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}
