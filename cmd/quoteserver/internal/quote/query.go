package quote

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/repository"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

// QueryService is the read side consumed by the HTTP layer. Cache failures
// degrade to default responses instead of errors.
type QueryService struct {
	store  repository.QuoteStore
	maint  repository.Maintenance
	engine *Engine
	clock  Clock
	logger *zap.Logger
}

func NewQueryService(store repository.QuoteStore, maint repository.Maintenance, engine *Engine, clock Clock, logger *zap.Logger) *QueryService {
	if clock == nil {
		clock = RealClock{}
	}
	return &QueryService{
		store:  store,
		maint:  maint,
		engine: engine,
		clock:  clock,
		logger: logger.With(zap.String("component", "quote_query")),
	}
}

// AllQuotes serves the cached aggregate, rebuilding it from per-symbol
// snapshots when the short-lived aggregate key has lapsed.
func (s *QueryService) AllQuotes(ctx context.Context) *models.AggregateQuoteView {
	view, err := s.store.GetAggregate(ctx)
	if err != nil {
		s.logger.Warn("Aggregate read failed", zap.Error(err))
		return models.EmptyAggregate(s.clock.Now())
	}
	if view != nil {
		return view
	}

	if s.engine != nil {
		if rebuilt := s.engine.RefreshAggregate(ctx); rebuilt != nil && len(rebuilt.CodeList) > 0 {
			return rebuilt
		}
	}
	return models.EmptyAggregate(s.clock.Now())
}

// Quote returns one symbol's prices, zero when nothing is cached.
func (s *QueryService) Quote(ctx context.Context, symbol string) models.QuotePrice {
	q, err := s.store.GetQuote(ctx, symbol)
	if err != nil {
		s.logger.Warn("Quote read failed", zap.String("symbol", symbol), zap.Error(err))
	}
	if q == nil {
		return models.QuotePrice{Symbol: symbol, BuyPrice: decimal.Zero, SalePrice: decimal.Zero}
	}
	return q.Price()
}

func (s *QueryService) CacheStats(ctx context.Context) (*repository.CacheStats, error) {
	return s.maint.Stats(ctx)
}

func (s *QueryService) CleanExpiredCache(ctx context.Context) (int, error) {
	deleted, err := s.maint.CleanExpired(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Expired cache cleaned", zap.Int("deleted", deleted))
	return deleted, nil
}

// PriceCalculation is the debug view of a spread calculation.
type PriceCalculation struct {
	Symbol        string          `json:"code"`
	RealtimePrice decimal.Decimal `json:"realtime_price"`
	BuyPrice      decimal.Decimal `json:"buy_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	BidSpread     decimal.Decimal `json:"bid_spread"`
	AskSpread     decimal.Decimal `json:"ask_spread"`
}

func (s *QueryService) TestPriceCalculation(ctx context.Context, symbol string, price decimal.Decimal) PriceCalculation {
	q := s.engine.Calculate(ctx, symbol, price)
	return PriceCalculation{
		Symbol:        q.Symbol,
		RealtimePrice: q.RealtimePrice,
		BuyPrice:      q.BuyPrice,
		SalePrice:     q.SalePrice,
		BidSpread:     q.BidSpread,
		AskSpread:     q.AskSpread,
	}
}
