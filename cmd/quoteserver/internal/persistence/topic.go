package persistence

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaDialer interface {
	DialContext(ctx context.Context, network, address string) (KafkaConn, error)
}

type KafkaConn interface {
	Controller() (kafka.Broker, error)
	Close() error
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
}

// Sleeper for deterministic testing
type Sleeper interface {
	Sleep(d time.Duration)
}

type RealSleeper struct{}

func (RealSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// RealKafkaConn adapts a *kafka.Conn to KafkaConn
type RealKafkaConn struct{ *kafka.Conn }

// RealKafkaDialer adapts *kafka.Dialer
type RealKafkaDialer struct{ *kafka.Dialer }

func (d *RealKafkaDialer) DialContext(ctx context.Context, network, address string) (KafkaConn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &RealKafkaConn{Conn: conn}, nil
}

// TopicCreator makes sure the record topic exists before the producer starts.
// Every failure is logged and tolerated: the async producer retries on its own.
type TopicCreator struct {
	logger     *zap.Logger
	dialer     KafkaDialer
	sleeper    Sleeper
	partitions int
}

func NewTopicCreator(logger *zap.Logger, dialer KafkaDialer, sleeper Sleeper) *TopicCreator {
	return &TopicCreator{
		logger:     logger,
		dialer:     dialer,
		sleeper:    sleeper,
		partitions: 4,
	}
}

// Ensure returns true once the topic reports at least one partition.
func (tc *TopicCreator) Ensure(ctx context.Context, brokers []string, topic string) bool {
	var conn KafkaConn
	var err error

	for _, addr := range brokers {
		conn, err = tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
	}
	if conn == nil {
		tc.logger.Warn("Failed to dial kafka brokers", zap.Error(err))
		return false
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		tc.logger.Warn("Failed to get kafka controller", zap.Error(err))
		return false
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := tc.dialer.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		tc.logger.Warn("Failed to dial kafka controller", zap.Error(err))
		return false
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     tc.partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		tc.logger.Info("Topic creation finished (might already exist)", zap.Error(err))
	} else {
		tc.logger.Info("Topic creation request sent", zap.String("topic", topic))
	}

	return tc.waitForTopic(conn, topic)
}

func (tc *TopicCreator) waitForTopic(conn KafkaConn, topic string) bool {
	for i := 0; i < 5; i++ {
		tc.sleeper.Sleep(200 * time.Millisecond)
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			tc.logger.Info("Topic is ready", zap.String("topic", topic), zap.Int("partitions", len(partitions)))
			return true
		}
	}
	tc.logger.Warn("Timed out waiting for topic", zap.String("topic", topic))
	return false
}
