package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewPriceChangeRecord(t *testing.T) {
	rec := NewPriceChangeRecord("AAPL.US", decimal.RequireFromString("200"), decimal.RequireFromString("202"), 10, time.Unix(0, 0))

	if !rec.PriceChange.Equal(decimal.RequireFromString("2")) {
		t.Errorf("Expected change 2, got %s", rec.PriceChange)
	}
	if !rec.ChangeRate.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("Expected rate 0.01, got %s", rec.ChangeRate)
	}

	zero := NewPriceChangeRecord("AAPL.US", decimal.Zero, decimal.RequireFromString("5"), 0, time.Unix(0, 0))
	if !zero.ChangeRate.IsZero() {
		t.Errorf("Expected zero rate for zero old price, got %s", zero.ChangeRate)
	}
}

func TestQuotePrice_MarshalsNumbers(t *testing.T) {
	b, err := json.Marshal(QuotePrice{Symbol: "NVDA.US", BuyPrice: decimal.RequireFromString("145.87"), SalePrice: decimal.Zero})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(b), `"buy_price":145.87`) || !strings.Contains(string(b), `"sale_price":0`) {
		t.Errorf("Expected numeric prices, got %s", b)
	}
}
