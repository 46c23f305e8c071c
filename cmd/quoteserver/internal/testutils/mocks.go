package testutils

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/quote"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

// MockEngine records every tick it is asked to process.
type MockEngine struct {
	Mu    sync.Mutex
	Ticks []models.Tick
	Err   error
}

func (m *MockEngine) Process(ctx context.Context, tick models.Tick, raw []byte) (*models.QuoteSnapshot, bool, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Ticks = append(m.Ticks, tick)
	if m.Err != nil {
		return nil, false, m.Err
	}
	return &models.QuoteSnapshot{Symbol: tick.Symbol}, true, nil
}

func (m *MockEngine) Processed() []models.Tick {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]models.Tick(nil), m.Ticks...)
}

// MockSink records persistence calls.
type MockSink struct {
	Mu           sync.Mutex
	TickRecords  []models.TickRecord
	PriceChanges []models.PriceChangeRecord
}

func (m *MockSink) AppendTick(rec models.TickRecord) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.TickRecords = append(m.TickRecords, rec)
}

func (m *MockSink) AppendPriceChange(rec models.PriceChangeRecord) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.PriceChanges = append(m.PriceChanges, rec)
}

func (m *MockSink) Counts() (ticks, changes int) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.TickRecords), len(m.PriceChanges)
}

// MockBroadcaster records published quotes.
type MockBroadcaster struct {
	Mu     sync.Mutex
	Quotes []models.QuoteSnapshot
	Raw    [][]byte
}

func (m *MockBroadcaster) Publish(q *models.QuoteSnapshot, raw []byte) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Quotes = append(m.Quotes, *q)
	m.Raw = append(m.Raw, raw)
}

func (m *MockBroadcaster) Published() []models.QuoteSnapshot {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]models.QuoteSnapshot(nil), m.Quotes...)
}

// MockSpreadProvider serves spreads from a map and counts lookups.
type MockSpreadProvider struct {
	Mu      sync.Mutex
	Spreads map[string]models.SpreadSetting
	Err     error
	Calls   int
}

func NewMockSpreadProvider() *MockSpreadProvider {
	return &MockSpreadProvider{Spreads: make(map[string]models.SpreadSetting)}
}

func (m *MockSpreadProvider) Set(symbol, bid, ask string) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Spreads[symbol] = models.SpreadSetting{
		Symbol:    symbol,
		BidSpread: decimal.RequireFromString(bid),
		AskSpread: decimal.RequireFromString(ask),
	}
}

func (m *MockSpreadProvider) GetBySymbol(ctx context.Context, symbol string) (*models.SpreadSetting, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	s, ok := m.Spreads[symbol]
	if !ok {
		return nil, quote.ErrSpreadNotFound
	}
	return &s, nil
}

// StaticSymbols is a fixed SymbolSource.
type StaticSymbols []string

func (s StaticSymbols) Symbols() []string { return append([]string(nil), s...) }
