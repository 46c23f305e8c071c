package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/quote-relay/pkg/models"
)

// QuoteStore is the current-state cache for quotes, raw prices, spreads and
// the aggregate view.
type QuoteStore interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, bool, error)
	GetQuote(ctx context.Context, symbol string) (*models.QuoteSnapshot, error)
	GetSpread(ctx context.Context, symbol string) (*models.SpreadSetting, error)
	SaveQuote(ctx context.Context, quote *models.QuoteSnapshot, spread models.SpreadSetting) error
	GetQuotes(ctx context.Context, symbols []string) ([]models.QuoteSnapshot, error)
	SaveAggregate(ctx context.Context, view *models.AggregateQuoteView) error
	GetAggregate(ctx context.Context) (*models.AggregateQuoteView, error)
}

// Maintenance is the out-of-band administrative surface of the cache.
type Maintenance interface {
	Stats(ctx context.Context) (*CacheStats, error)
	CleanExpired(ctx context.Context) (int, error)
}

type CacheStats struct {
	TotalKeys      int   `json:"totalKeys"`
	KeysWithTTL    int   `json:"keysWithTTL"`
	KeysWithoutTTL int   `json:"keysWithoutTTL"`
	ExpiredKeys    int   `json:"expiredKeys"`
	MemoryUsage    int64 `json:"memoryUsage"`
}
