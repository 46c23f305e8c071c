package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers to downstream consumers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Direction of the trade that produced a tick
type Direction int

const (
	DirectionBuy  Direction = 1
	DirectionSell Direction = 2
)

// Tick is one upstream trade event. Numeric fields stay as the upstream sent them;
// the engine parses them.
type Tick struct {
	Symbol    string    `json:"code"`
	Sequence  string    `json:"seq"`
	TickTime  string    `json:"tick_time"`
	Price     string    `json:"price"`
	Volume    string    `json:"volume"`
	Turnover  string    `json:"turnover"`
	Direction Direction `json:"trade_direction"`
}

// SpreadSetting is the per-instrument spread configuration.
type SpreadSetting struct {
	Symbol    string          `json:"code"`
	BidSpread decimal.Decimal `json:"bid_spread"`
	AskSpread decimal.Decimal `json:"ask_spread"`
}

// QuoteSnapshot is the cached derived state for one instrument.
type QuoteSnapshot struct {
	Symbol        string          `json:"code"`
	RealtimePrice decimal.Decimal `json:"realtime_price"`
	BuyPrice      decimal.Decimal `json:"buy_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	BidSpread     decimal.Decimal `json:"bid_spread"`
	AskSpread     decimal.Decimal `json:"ask_spread"`
	Volume        int64           `json:"volume"`
	TickTime      time.Time       `json:"tick_time"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// QuotePrice is the public {code, buy_price, sale_price} view of a quote.
type QuotePrice struct {
	Symbol    string          `json:"code"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SalePrice decimal.Decimal `json:"sale_price"`
}

// Price returns the public view of the snapshot.
func (q *QuoteSnapshot) Price() QuotePrice {
	return QuotePrice{Symbol: q.Symbol, BuyPrice: q.BuyPrice, SalePrice: q.SalePrice}
}

// AggregateQuoteView is the all-instruments listing rebuilt from per-symbol snapshots.
type AggregateQuoteView struct {
	CodeList  []QuotePrice `json:"codeList"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// EmptyAggregate is served when nothing is cached yet.
func EmptyAggregate(now time.Time) *AggregateQuoteView {
	return &AggregateQuoteView{CodeList: []QuotePrice{}, UpdatedAt: now}
}
