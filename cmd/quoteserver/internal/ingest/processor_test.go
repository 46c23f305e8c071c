package ingest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/ingest"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/instrumentation"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/testutils"
	"github.com/shubham-shewale/quote-relay/pkg/config"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

func tick(symbol, price, ts string) models.Tick {
	return models.Tick{Symbol: symbol, Price: price, TickTime: ts}
}

func runProcessor(t *testing.T, p *ingest.Processor) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Processor did not stop")
		}
	}
}

func TestProcessor_PreservesPerSymbolOrder(t *testing.T) {
	engine := &testutils.MockEngine{}
	p := ingest.NewProcessor(config.ProcessorConfig{NumWorkers: 4, QueueSize: 100}, time.Second, engine, zap.NewNop(), nil)
	stop := runProcessor(t, p)

	prices := []string{"1", "2", "3", "4", "5"}
	for _, px := range prices {
		p.HandleTick(tick("AAPL.US", px, "t"+px), nil)
		p.HandleTick(tick("TSLA.US", px, "t"+px), nil)
	}
	stop()

	var aapl []string
	for _, tk := range engine.Processed() {
		if tk.Symbol == "AAPL.US" {
			aapl = append(aapl, tk.Price)
		}
	}
	if len(aapl) != len(prices) {
		t.Fatalf("Expected %d AAPL ticks, got %d", len(prices), len(aapl))
	}
	for i := range prices {
		if aapl[i] != prices[i] {
			t.Fatalf("Ticks out of order: %v", aapl)
		}
	}
}

func TestProcessor_DropsDuplicates(t *testing.T) {
	engine := &testutils.MockEngine{}
	metrics := instrumentation.NewNopMetrics()
	p := ingest.NewProcessor(config.ProcessorConfig{NumWorkers: 2, QueueSize: 10}, time.Minute, engine, zap.NewNop(), metrics)
	stop := runProcessor(t, p)

	p.HandleTick(tick("AAPL.US", "100", "1700000000"), nil)
	p.HandleTick(tick("AAPL.US", "100", "1700000000"), nil)
	p.HandleTick(tick("AAPL.US", "100", "1700000001"), nil)
	stop()

	if n := len(engine.Processed()); n != 2 {
		t.Errorf("Expected 2 processed ticks, got %d", n)
	}
	if v := promtest.ToFloat64(metrics.TicksDuplicate); v != 1 {
		t.Errorf("Expected 1 duplicate, got %v", v)
	}
}

func TestProcessor_DropsWhenQueueFull(t *testing.T) {
	engine := &testutils.MockEngine{}
	metrics := instrumentation.NewNopMetrics()
	p := ingest.NewProcessor(config.ProcessorConfig{NumWorkers: 1, QueueSize: 1}, time.Second, engine, zap.NewNop(), metrics)

	// Workers are not running yet, so only the first tick fits.
	for i := 0; i < 3; i++ {
		p.HandleTick(tick("AAPL.US", "100", string(rune('a'+i))), nil)
	}

	if v := promtest.ToFloat64(metrics.TicksDropped); v != 2 {
		t.Errorf("Expected 2 dropped ticks, got %v", v)
	}

	stop := runProcessor(t, p)
	stop()
	if n := len(engine.Processed()); n != 1 {
		t.Errorf("Queued tick should drain on shutdown, got %d", n)
	}
}

func TestProcessor_EngineErrorsDoNotStopWorker(t *testing.T) {
	engine := &testutils.MockEngine{Err: errors.New("invalid price")}
	p := ingest.NewProcessor(config.ProcessorConfig{NumWorkers: 1, QueueSize: 10}, time.Second, engine, zap.NewNop(), nil)
	stop := runProcessor(t, p)

	p.HandleTick(tick("AAPL.US", "abc", "1"), nil)
	p.HandleTick(tick("AAPL.US", "101", "2"), nil)
	stop()

	if n := len(engine.Processed()); n != 2 {
		t.Errorf("Expected worker to keep going after an error, got %d calls", n)
	}
}

func TestProcessor_HandleTickAfterShutdown(t *testing.T) {
	p := ingest.NewProcessor(config.ProcessorConfig{NumWorkers: 1, QueueSize: 1}, time.Second, &testutils.MockEngine{}, zap.NewNop(), nil)
	stop := runProcessor(t, p)
	stop()

	// Must not panic on a closed channel.
	p.HandleTick(tick("AAPL.US", "1", "1"), nil)
}
