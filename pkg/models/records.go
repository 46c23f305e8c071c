package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickRecord is the durable form of an accepted tick.
type TickRecord struct {
	Symbol   string          `json:"code"`
	Price    decimal.Decimal `json:"price"`
	Volume   int64           `json:"volume"`
	Turnover decimal.Decimal `json:"turnover"`
	TickTime time.Time       `json:"tick_time"`
}

// PriceChangeRecord captures a move from a previously cached price.
type PriceChangeRecord struct {
	Symbol      string          `json:"code"`
	OldPrice    decimal.Decimal `json:"old_price"`
	NewPrice    decimal.Decimal `json:"new_price"`
	PriceChange decimal.Decimal `json:"price_change"`
	ChangeRate  decimal.Decimal `json:"change_rate"`
	Volume      int64           `json:"volume"`
	TickTime    time.Time       `json:"tick_time"`
}

// NewPriceChangeRecord fills in the derived change and rate. Rate is zero when old is zero.
func NewPriceChangeRecord(symbol string, oldPrice, newPrice decimal.Decimal, volume int64, tickTime time.Time) PriceChangeRecord {
	change := newPrice.Sub(oldPrice)
	rate := decimal.Zero
	if !oldPrice.IsZero() {
		rate = change.DivRound(oldPrice, 6)
	}
	return PriceChangeRecord{
		Symbol:      symbol,
		OldPrice:    oldPrice,
		NewPrice:    newPrice,
		PriceChange: change,
		ChangeRate:  rate,
		Volume:      volume,
		TickTime:    tickTime,
	}
}
