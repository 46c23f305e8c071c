// Package ingest fans decoded ticks out to a fixed pool of workers sharded
// by symbol, so every symbol is processed in arrival order by one worker.
package ingest

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/dedup"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/instrumentation"
	"github.com/shubham-shewale/quote-relay/pkg/config"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

const processTimeout = 2 * time.Second

// Engine is the quote derivation step run for every accepted tick.
type Engine interface {
	Process(ctx context.Context, tick models.Tick, raw []byte) (*models.QuoteSnapshot, bool, error)
}

type job struct {
	tick     models.Tick
	raw      []byte
	received time.Time
}

type Processor struct {
	engine  Engine
	logger  *zap.Logger
	metrics *instrumentation.Metrics
	window  time.Duration

	numWorkers  int
	workerChans []chan job

	mu     sync.RWMutex
	closed bool
}

func NewProcessor(cfg config.ProcessorConfig, window time.Duration, engine Engine, logger *zap.Logger, metrics *instrumentation.Metrics) *Processor {
	n := cfg.NumWorkers
	if n < 1 {
		n = 1
	}
	size := cfg.QueueSize
	if size < 1 {
		size = 100
	}
	if metrics == nil {
		metrics = instrumentation.NewNopMetrics()
	}

	chans := make([]chan job, n)
	for i := range chans {
		chans[i] = make(chan job, size)
	}

	return &Processor{
		engine:      engine,
		logger:      logger,
		metrics:     metrics,
		window:      window,
		numWorkers:  n,
		workerChans: chans,
	}
}

// HandleTick queues a tick for its symbol's worker. It never blocks: when the
// worker is behind, the tick is dropped and counted.
func (p *Processor) HandleTick(tick models.Tick, raw []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	workerID := getWorkerID(tick.Symbol, p.numWorkers)
	select {
	case p.workerChans[workerID] <- job{tick: tick, raw: raw, received: time.Now()}:
	default:
		p.metrics.TicksDropped.Inc()
		p.logger.Warn("Dropping tick, worker queue full", zap.String("symbol", tick.Symbol), zap.Int("worker_id", workerID))
	}
}

// Run starts the workers and blocks until ctx is cancelled, then drains
// whatever is already queued before returning.
func (p *Processor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.numWorkers; i++ {
		wg.Add(1)
		go p.worker(i, p.workerChans[i], &wg)
	}
	p.logger.Info("Ingest processor started", zap.Int("workers", p.numWorkers))

	<-ctx.Done()
	p.logger.Info("Shutdown signal received, stopping ingest...")

	p.mu.Lock()
	p.closed = true
	for _, ch := range p.workerChans {
		close(ch)
	}
	p.mu.Unlock()

	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()
	return nil
}

func (p *Processor) worker(id int, jobs <-chan job, wg *sync.WaitGroup) {
	defer wg.Done()

	// Local dedup state is exact because of deterministic sharding.
	seen := dedup.New(p.window)

	for j := range jobs {
		if !seen.Accept(j.tick, j.received) {
			p.metrics.TicksDuplicate.Inc()
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		_, changed, err := p.engine.Process(ctx, j.tick, j.raw)
		cancel()

		if err != nil {
			p.logger.Warn("Tick rejected", zap.Error(err), zap.String("symbol", j.tick.Symbol))
			continue
		}
		if changed {
			p.logger.Debug("Processed", zap.String("symbol", j.tick.Symbol), zap.Int("worker_id", id))
		}
	}
}

func getWorkerID(symbol string, numWorkers int) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(numWorkers))
}
