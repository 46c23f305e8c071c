package quote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/instrumentation"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/repository"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

// Epsilon is the smallest price move that counts as a change.
var Epsilon = decimal.New(1, -4)

// Engine derives tradable quotes from raw ticks.
type Engine struct {
	store       repository.QuoteStore
	spreads     SpreadProvider
	sink        Sink
	broadcaster Broadcaster
	symbols     SymbolSource
	clock       Clock
	logger      *zap.Logger
	metrics     *instrumentation.Metrics
}

type EngineDeps struct {
	Store       repository.QuoteStore
	Spreads     SpreadProvider
	Sink        Sink
	Broadcaster Broadcaster
	Symbols     SymbolSource
	Clock       Clock
	Logger      *zap.Logger
	Metrics     *instrumentation.Metrics
}

func NewEngine(d EngineDeps) *Engine {
	e := &Engine{
		store:       d.Store,
		spreads:     d.Spreads,
		sink:        d.Sink,
		broadcaster: d.Broadcaster,
		symbols:     d.Symbols,
		clock:       d.Clock,
		logger:      d.Logger,
		metrics:     d.Metrics,
	}
	if e.sink == nil {
		e.sink = NopSink{}
	}
	if e.broadcaster == nil {
		e.broadcaster = NopBroadcaster{}
	}
	if e.clock == nil {
		e.clock = RealClock{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.metrics == nil {
		e.metrics = instrumentation.NewNopMetrics()
	}
	e.logger = e.logger.With(zap.String("component", "quote_engine"))
	return e
}

// Process derives and stores a quote for an accepted tick. changed is false
// when the price did not move past Epsilon, in which case nothing is written.
func (e *Engine) Process(ctx context.Context, tick models.Tick, raw []byte) (*models.QuoteSnapshot, bool, error) {
	start := e.clock.Now()

	price, err := decimal.NewFromString(strings.TrimSpace(tick.Price))
	if err != nil {
		return nil, false, fmt.Errorf("invalid price %q for %s: %w", tick.Price, tick.Symbol, err)
	}

	cached, hasCached, err := e.store.GetPrice(ctx, tick.Symbol)
	if err != nil {
		// Without the marker we cannot tell; treat as a change so the cache heals.
		e.logger.Warn("Cached price lookup failed", zap.String("symbol", tick.Symbol), zap.Error(err))
		hasCached = false
	}
	if hasCached && price.Sub(cached).Abs().LessThan(Epsilon) {
		e.metrics.TicksUnchanged.Inc()
		return nil, false, nil
	}

	spread := e.resolveSpread(ctx, tick.Symbol)
	now := e.clock.Now()
	tickTime := e.parseTickTime(tick)
	volume := parseVolume(tick.Volume)

	snap := &models.QuoteSnapshot{
		Symbol:        tick.Symbol,
		RealtimePrice: price,
		BuyPrice:      price.Add(spread.BidSpread),
		SalePrice:     price.Sub(spread.AskSpread),
		BidSpread:     spread.BidSpread,
		AskSpread:     spread.AskSpread,
		Volume:        volume,
		TickTime:      tickTime,
		UpdatedAt:     now,
	}

	if err := e.store.SaveQuote(ctx, snap, spread); err != nil {
		return nil, false, fmt.Errorf("save quote: %w", err)
	}
	e.metrics.QuotesUpdated.Inc()

	turnover, err := decimal.NewFromString(strings.TrimSpace(tick.Turnover))
	if err != nil {
		turnover = decimal.Zero
	}
	e.sink.AppendTick(models.TickRecord{
		Symbol:   tick.Symbol,
		Price:    price,
		Volume:   volume,
		Turnover: turnover,
		TickTime: tickTime,
	})
	if hasCached {
		e.sink.AppendPriceChange(models.NewPriceChangeRecord(tick.Symbol, cached, price, volume, tickTime))
	}

	e.RefreshAggregate(ctx, tick.Symbol)
	e.broadcaster.Publish(snap, raw)

	e.metrics.ProcessLatency.Observe(float64(e.clock.Now().Sub(start).Microseconds()) / 1000)
	e.logger.Debug("Quote updated",
		zap.String("symbol", snap.Symbol),
		zap.String("price", price.String()),
		zap.String("buy_price", snap.BuyPrice.String()),
		zap.String("sale_price", snap.SalePrice.String()),
	)
	return snap, true, nil
}

// RefreshAggregate rebuilds the all-quotes view from per-symbol snapshots.
// extra symbols are included even when not in the tracked set.
func (e *Engine) RefreshAggregate(ctx context.Context, extra ...string) *models.AggregateQuoteView {
	symbols := e.trackedSymbols(extra...)
	quotes, err := e.store.GetQuotes(ctx, symbols)
	if err != nil {
		e.logger.Warn("Aggregate rebuild failed", zap.Error(err))
		return nil
	}

	view := &models.AggregateQuoteView{
		CodeList:  make([]models.QuotePrice, 0, len(quotes)),
		UpdatedAt: e.clock.Now(),
	}
	for i := range quotes {
		view.CodeList = append(view.CodeList, quotes[i].Price())
	}

	if err := e.store.SaveAggregate(ctx, view); err != nil {
		e.logger.Warn("Aggregate cache write failed", zap.Error(err))
	}
	return view
}

// Calculate runs the spread calculation for an arbitrary symbol and price
// without touching the cache beyond the spread lookup.
func (e *Engine) Calculate(ctx context.Context, symbol string, price decimal.Decimal) *models.QuoteSnapshot {
	spread := e.resolveSpread(ctx, symbol)
	now := e.clock.Now()
	return &models.QuoteSnapshot{
		Symbol:        symbol,
		RealtimePrice: price,
		BuyPrice:      price.Add(spread.BidSpread),
		SalePrice:     price.Sub(spread.AskSpread),
		BidSpread:     spread.BidSpread,
		AskSpread:     spread.AskSpread,
		TickTime:      now,
		UpdatedAt:     now,
	}
}

// resolveSpread prefers the cached spread snapshot, then the provider.
// Anything missing resolves to zero spreads.
func (e *Engine) resolveSpread(ctx context.Context, symbol string) models.SpreadSetting {
	if cached, err := e.store.GetSpread(ctx, symbol); err == nil && cached != nil {
		return *cached
	}

	zero := models.SpreadSetting{Symbol: symbol, BidSpread: decimal.Zero, AskSpread: decimal.Zero}
	if e.spreads == nil {
		e.logger.Warn("No spread provider, using zero spread", zap.String("symbol", symbol))
		return zero
	}

	s, err := e.spreads.GetBySymbol(ctx, symbol)
	switch {
	case errors.Is(err, ErrSpreadNotFound) || (err == nil && s == nil):
		e.logger.Warn("Spread setting not found, using zero spread", zap.String("symbol", symbol))
		return zero
	case err != nil:
		e.logger.Warn("Spread lookup failed, using zero spread", zap.String("symbol", symbol), zap.Error(err))
		return zero
	}
	s.Symbol = symbol
	return *s
}

func (e *Engine) trackedSymbols(extra ...string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if e.symbols != nil {
		for _, s := range e.symbols.Symbols() {
			add(s)
		}
	}
	for _, s := range extra {
		add(s)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) parseTickTime(tick models.Tick) time.Time {
	if ts, ok := ParseTickTime(tick.TickTime); ok {
		return ts
	}
	now := e.clock.Now()
	e.logger.Warn("Malformed tick time, using current time",
		zap.String("symbol", tick.Symbol),
		zap.String("tick_time", tick.TickTime),
	)
	return now
}

// ParseTickTime accepts unix seconds, unix milliseconds or RFC 3339.
func ParseTickTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, false
		}
		if n >= 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), true
	}
	return time.Time{}, false
}

func parseVolume(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d.IntPart()
	}
	return 0
}
