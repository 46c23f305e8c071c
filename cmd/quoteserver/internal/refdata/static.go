// Package refdata adapts spread configuration sources to quote.SpreadProvider.
package refdata

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/quote"
	"github.com/shubham-shewale/quote-relay/pkg/config"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

var (
	_ quote.SpreadProvider = (*StaticProvider)(nil)
	_ quote.SpreadProvider = (*GormProvider)(nil)
)

// StaticProvider serves spreads loaded from configuration.
type StaticProvider struct {
	spreads map[string]models.SpreadSetting
}

func NewStaticProvider(cfg map[string]config.SpreadConfig) *StaticProvider {
	p := &StaticProvider{spreads: make(map[string]models.SpreadSetting, len(cfg))}
	for symbol, s := range cfg {
		// viper lower-cases map keys
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		p.spreads[symbol] = models.SpreadSetting{
			Symbol:    symbol,
			BidSpread: decimal.NewFromFloat(s.Bid),
			AskSpread: decimal.NewFromFloat(s.Ask),
		}
	}
	return p
}

func (p *StaticProvider) GetBySymbol(ctx context.Context, symbol string) (*models.SpreadSetting, error) {
	s, ok := p.spreads[symbol]
	if !ok {
		return nil, quote.ErrSpreadNotFound
	}
	return &s, nil
}
