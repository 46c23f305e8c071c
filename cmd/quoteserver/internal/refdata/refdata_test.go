package refdata_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/quote"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/refdata"
	"github.com/shubham-shewale/quote-relay/pkg/config"
)

func TestStaticProvider(t *testing.T) {
	p := refdata.NewStaticProvider(map[string]config.SpreadConfig{
		"nvda.us": {Bid: 0.2, Ask: 0.2},
	})

	s, err := p.GetBySymbol(context.Background(), "NVDA.US")
	if err != nil {
		t.Fatalf("GetBySymbol failed: %v", err)
	}
	if !s.BidSpread.Equal(decimal.RequireFromString("0.2")) || s.Symbol != "NVDA.US" {
		t.Errorf("Unexpected setting %+v", s)
	}

	if _, err := p.GetBySymbol(context.Background(), "AAPL.US"); !errors.Is(err, quote.ErrSpreadNotFound) {
		t.Errorf("Expected ErrSpreadNotFound, got %v", err)
	}
}

func TestTradingSettingPO_NullSpreadsAreZero(t *testing.T) {
	po := refdata.TradingSettingPO{
		Code:      "TSLA.US",
		BidSpread: decimal.NullDecimal{Decimal: decimal.RequireFromString("0.5"), Valid: true},
	}
	s := po.ToDomain()
	if !s.BidSpread.Equal(decimal.RequireFromString("0.5")) || !s.AskSpread.IsZero() {
		t.Errorf("Unexpected conversion %+v", s)
	}
}
