// Package persistence writes accepted ticks and price changes to durable
// storage off the hot path. Failures are counted and logged, never surfaced
// to the quote pipeline.
package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/instrumentation"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

const (
	KindTick        = "tick"
	KindPriceChange = "price_change"

	writeTimeout = 5 * time.Second
)

// Writer is a durable store for records. Calls happen from a single goroutine.
type Writer interface {
	WriteTick(ctx context.Context, rec models.TickRecord) error
	WritePriceChange(ctx context.Context, rec models.PriceChangeRecord) error
	Close() error
}

type record struct {
	kind   string
	tick   models.TickRecord
	change models.PriceChangeRecord
}

// Queue is a bounded, non-blocking buffer in front of a Writer.
type Queue struct {
	writer  Writer
	logger  *zap.Logger
	metrics *instrumentation.Metrics
	records chan record

	mu     sync.RWMutex
	closed bool
}

func NewQueue(writer Writer, size int, logger *zap.Logger, metrics *instrumentation.Metrics) *Queue {
	if size < 1 {
		size = 1024
	}
	if metrics == nil {
		metrics = instrumentation.NewNopMetrics()
	}
	return &Queue{
		writer:  writer,
		logger:  logger,
		metrics: metrics,
		records: make(chan record, size),
	}
}

func (q *Queue) AppendTick(rec models.TickRecord) {
	q.enqueue(record{kind: KindTick, tick: rec})
}

func (q *Queue) AppendPriceChange(rec models.PriceChangeRecord) {
	q.enqueue(record{kind: KindPriceChange, change: rec})
}

func (q *Queue) enqueue(r record) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}

	select {
	case q.records <- r:
	default:
		q.metrics.SinkDropped.Inc()
		q.logger.Warn("Persistence queue full, dropping record", zap.String("kind", r.kind))
	}
}

// Run consumes the queue until ctx is cancelled, then flushes what is left
// and closes the writer.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case r := <-q.records:
			q.write(r)
		case <-ctx.Done():
			q.mu.Lock()
			q.closed = true
			close(q.records)
			q.mu.Unlock()

			for r := range q.records {
				q.write(r)
			}
			if err := q.writer.Close(); err != nil {
				q.logger.Error("Error closing persistence writer", zap.Error(err))
			}
			return nil
		}
	}
}

func (q *Queue) write(r record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	var symbol string
	switch r.kind {
	case KindTick:
		symbol = r.tick.Symbol
		err = q.writer.WriteTick(ctx, r.tick)
	case KindPriceChange:
		symbol = r.change.Symbol
		err = q.writer.WritePriceChange(ctx, r.change)
	}

	if err != nil {
		q.metrics.SinkFailures.WithLabelValues(r.kind).Inc()
		q.logger.Error("Persistence write failed", zap.Error(err), zap.String("kind", r.kind), zap.String("symbol", symbol))
	}
}
