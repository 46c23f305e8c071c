package quote_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/quote"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/repository"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/testutils"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixture struct {
	engine  *quote.Engine
	store   *repository.RedisStore
	mr      *miniredis.Miniredis
	spreads *testutils.MockSpreadProvider
	sink    *testutils.MockSink
	bcast   *testutils.MockBroadcaster
	clock   fixedClock
}

func newFixture(t *testing.T, symbols ...string) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &fixture{
		store: repository.NewRedisStore(rdb, repository.TTLs{
			Quote: 60 * time.Second, Spread: 300 * time.Second, Aggregate: 2 * time.Second, Default: 60 * time.Second,
		}, "stock:*"),
		mr:      mr,
		spreads: testutils.NewMockSpreadProvider(),
		sink:    &testutils.MockSink{},
		bcast:   &testutils.MockBroadcaster{},
		clock:   fixedClock{t: time.Date(2024, 11, 14, 12, 0, 0, 0, time.UTC)},
	}
	f.engine = quote.NewEngine(quote.EngineDeps{
		Store:       f.store,
		Spreads:     f.spreads,
		Sink:        f.sink,
		Broadcaster: f.bcast,
		Symbols:     testutils.StaticSymbols(symbols),
		Clock:       f.clock,
		Logger:      zap.NewNop(),
	})
	return f
}

func tick(symbol, price string) models.Tick {
	return models.Tick{Symbol: symbol, Price: price, TickTime: "1731585600000", Volume: "100", Turnover: "14567"}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestProcess_AppliesSpread(t *testing.T) {
	f := newFixture(t, "NVDA.US")
	f.spreads.Set("NVDA.US", "0.20", "0.20")

	snap, changed, err := f.engine.Process(context.Background(), tick("NVDA.US", "145.67"), []byte("raw"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !changed {
		t.Fatal("First tick for a symbol must count as a change")
	}
	if !snap.BuyPrice.Equal(dec("145.87")) || !snap.SalePrice.Equal(dec("145.47")) {
		t.Errorf("Expected 145.87/145.47, got %s/%s", snap.BuyPrice, snap.SalePrice)
	}
	if !snap.BuyPrice.Sub(snap.SalePrice).Equal(snap.BidSpread.Add(snap.AskSpread)) {
		t.Error("buy - sale must equal bid + ask spread")
	}
	if want := time.UnixMilli(1731585600000).UTC(); !snap.TickTime.Equal(want) {
		t.Errorf("Expected tick time %v, got %v", want, snap.TickTime)
	}
	if snap.Volume != 100 {
		t.Errorf("Expected volume 100, got %d", snap.Volume)
	}

	cached, err := f.store.GetQuote(context.Background(), "NVDA.US")
	if err != nil || cached == nil {
		t.Fatalf("Quote not cached: %v", err)
	}
	if !cached.BuyPrice.Equal(dec("145.87")) {
		t.Errorf("Cached buy price %s", cached.BuyPrice)
	}

	if ticks, changes := f.sink.Counts(); ticks != 1 || changes != 0 {
		t.Errorf("Expected 1 tick record and no price change, got %d/%d", ticks, changes)
	}
	pub := f.bcast.Published()
	if len(pub) != 1 || string(f.bcast.Raw[0]) != "raw" {
		t.Errorf("Expected one broadcast carrying the raw frame, got %d", len(pub))
	}
}

func TestProcess_UnchangedPriceHasNoEffects(t *testing.T) {
	f := newFixture(t, "NVDA.US")
	ctx := context.Background()

	if _, _, err := f.engine.Process(ctx, tick("NVDA.US", "145.67"), nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	f.mr.FastForward(time.Second)
	before := f.mr.TTL("stock:quote:NVDA.US")

	_, changed, err := f.engine.Process(ctx, tick("NVDA.US", "145.67005"), nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if changed {
		t.Error("A move below epsilon must not count as a change")
	}
	if after := f.mr.TTL("stock:quote:NVDA.US"); after != before {
		t.Errorf("Quote was rewritten: ttl %v -> %v", before, after)
	}
	if ticks, _ := f.sink.Counts(); ticks != 1 {
		t.Errorf("Expected no additional persistence, got %d tick records", ticks)
	}
	if n := len(f.bcast.Published()); n != 1 {
		t.Errorf("Expected no additional broadcast, got %d", n)
	}
}

func TestProcess_PriceChangeRecorded(t *testing.T) {
	f := newFixture(t, "AAPL.US")
	ctx := context.Background()

	f.engine.Process(ctx, tick("AAPL.US", "200"), nil)
	_, changed, err := f.engine.Process(ctx, tick("AAPL.US", "202"), nil)
	if err != nil || !changed {
		t.Fatalf("Expected change, got changed=%v err=%v", changed, err)
	}

	f.sink.Mu.Lock()
	defer f.sink.Mu.Unlock()
	if len(f.sink.PriceChanges) != 1 {
		t.Fatalf("Expected one price change record, got %d", len(f.sink.PriceChanges))
	}
	rec := f.sink.PriceChanges[0]
	if !rec.OldPrice.Equal(dec("200")) || !rec.NewPrice.Equal(dec("202")) || !rec.ChangeRate.Equal(dec("0.01")) {
		t.Errorf("Unexpected record: %+v", rec)
	}
}

func TestProcess_MissingSpreadDefaultsToZero(t *testing.T) {
	f := newFixture(t)

	snap, _, err := f.engine.Process(context.Background(), tick("MSFT.US", "410.5"), nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !snap.BuyPrice.Equal(snap.RealtimePrice) || !snap.SalePrice.Equal(snap.RealtimePrice) {
		t.Errorf("Expected buy == sale == realtime, got %s/%s/%s", snap.BuyPrice, snap.SalePrice, snap.RealtimePrice)
	}
}

func TestProcess_SpreadProviderErrorDefaultsToZero(t *testing.T) {
	f := newFixture(t)
	f.spreads.Err = errors.New("db down")

	snap, changed, err := f.engine.Process(context.Background(), tick("MSFT.US", "410.5"), nil)
	if err != nil || !changed {
		t.Fatalf("Provider failure must not abort processing: changed=%v err=%v", changed, err)
	}
	if !snap.BidSpread.IsZero() || !snap.AskSpread.IsZero() {
		t.Errorf("Expected zero spreads, got %s/%s", snap.BidSpread, snap.AskSpread)
	}
}

func TestProcess_UsesCachedSpreadSnapshot(t *testing.T) {
	f := newFixture(t, "TSLA.US")
	f.spreads.Set("TSLA.US", "0.5", "0.3")
	ctx := context.Background()

	f.engine.Process(ctx, tick("TSLA.US", "250"), nil)
	f.engine.Process(ctx, tick("TSLA.US", "251"), nil)

	f.spreads.Mu.Lock()
	calls := f.spreads.Calls
	f.spreads.Mu.Unlock()
	if calls != 1 {
		t.Errorf("Expected the provider to be consulted once, got %d", calls)
	}
}

func TestProcess_MalformedTickTimeFallsBackToNow(t *testing.T) {
	f := newFixture(t)
	tk := tick("AMZN.US", "185.2")
	tk.TickTime = "yesterday"

	snap, changed, err := f.engine.Process(context.Background(), tk, nil)
	if err != nil || !changed {
		t.Fatalf("Bad timestamp must not drop the tick: changed=%v err=%v", changed, err)
	}
	if !snap.TickTime.Equal(f.clock.t) {
		t.Errorf("Expected tick time %v, got %v", f.clock.t, snap.TickTime)
	}
}

func TestProcess_InvalidPriceRejected(t *testing.T) {
	f := newFixture(t)

	if _, _, err := f.engine.Process(context.Background(), tick("AMZN.US", "n/a"), nil); err == nil {
		t.Error("Expected error for unparseable price")
	}
	if n := len(f.bcast.Published()); n != 0 {
		t.Errorf("Expected no broadcast, got %d", n)
	}
}

func TestProcess_RefreshesAggregate(t *testing.T) {
	f := newFixture(t, "AAPL.US", "NVDA.US")
	f.spreads.Set("NVDA.US", "0.20", "0.20")
	ctx := context.Background()

	f.engine.Process(ctx, tick("AAPL.US", "189.5"), nil)
	f.engine.Process(ctx, tick("NVDA.US", "145.67"), nil)

	view, err := f.store.GetAggregate(ctx)
	if err != nil || view == nil {
		t.Fatalf("Aggregate not cached: %v", err)
	}
	if len(view.CodeList) != 2 {
		t.Fatalf("Expected 2 quotes in aggregate, got %d", len(view.CodeList))
	}
	for _, q := range view.CodeList {
		snap, _ := f.store.GetQuote(ctx, q.Symbol)
		if !q.BuyPrice.Equal(snap.BuyPrice) || !q.SalePrice.Equal(snap.SalePrice) {
			t.Errorf("Aggregate for %s disagrees with snapshot", q.Symbol)
		}
	}
	if ttl := f.mr.TTL("stock:quotes:all"); ttl != 2*time.Second {
		t.Errorf("Expected aggregate ttl 2s, got %v", ttl)
	}
}

func TestCalculate_WritesNothing(t *testing.T) {
	f := newFixture(t)
	f.spreads.Set("NVDA.US", "0.20", "0.20")

	q := f.engine.Calculate(context.Background(), "NVDA.US", dec("145.67"))
	if !q.BuyPrice.Equal(dec("145.87")) || !q.SalePrice.Equal(dec("145.47")) {
		t.Errorf("Unexpected calculation %s/%s", q.BuyPrice, q.SalePrice)
	}
	if f.mr.Exists("stock:quote:NVDA.US") || f.mr.Exists("stock:price:NVDA.US") {
		t.Error("Calculate must not write quote state")
	}
}

func TestParseTickTime(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"1731585600", true, time.Unix(1731585600, 0).UTC()},
		{"1731585600123", true, time.UnixMilli(1731585600123).UTC()},
		{"2024-11-14T12:00:00Z", true, time.Date(2024, 11, 14, 12, 0, 0, 0, time.UTC)},
		{"", false, time.Time{}},
		{"-5", false, time.Time{}},
		{"garbage", false, time.Time{}},
	}
	for _, tt := range tests {
		got, ok := quote.ParseTickTime(tt.in)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("ParseTickTime(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
