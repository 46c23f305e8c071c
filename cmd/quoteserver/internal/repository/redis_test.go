package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/repository"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

var testTTLs = repository.TTLs{
	Quote:     60 * time.Second,
	Spread:    300 * time.Second,
	Aggregate: 2 * time.Second,
	Default:   60 * time.Second,
}

func setup(t *testing.T) (*repository.RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return repository.NewRedisStore(rdb, testTTLs, "stock:*"), mr
}

func snapshot(symbol, price string) *models.QuoteSnapshot {
	p := decimal.RequireFromString(price)
	return &models.QuoteSnapshot{
		Symbol:        symbol,
		RealtimePrice: p,
		BuyPrice:      p.Add(decimal.RequireFromString("0.2")),
		SalePrice:     p.Sub(decimal.RequireFromString("0.2")),
		BidSpread:     decimal.RequireFromString("0.2"),
		AskSpread:     decimal.RequireFromString("0.2"),
		UpdatedAt:     time.Unix(100, 0).UTC(),
	}
}

func TestSaveQuote_WritesAllThreeKeysWithTTLs(t *testing.T) {
	store, mr := setup(t)
	ctx := context.Background()

	q := snapshot("NVDA.US", "145.67")
	if err := store.SaveQuote(ctx, q, models.SpreadSetting{Symbol: "NVDA.US", BidSpread: q.BidSpread, AskSpread: q.AskSpread}); err != nil {
		t.Fatalf("SaveQuote failed: %v", err)
	}

	if ttl := mr.TTL("stock:quote:NVDA.US"); ttl != 60*time.Second {
		t.Errorf("Expected quote ttl 60s, got %v", ttl)
	}
	if ttl := mr.TTL("stock:price:NVDA.US"); ttl != 60*time.Second {
		t.Errorf("Expected price ttl 60s, got %v", ttl)
	}
	if ttl := mr.TTL("stock:spread:NVDA.US"); ttl != 300*time.Second {
		t.Errorf("Expected spread ttl 300s, got %v", ttl)
	}

	price, ok, err := store.GetPrice(ctx, "NVDA.US")
	if err != nil || !ok {
		t.Fatalf("GetPrice failed: ok=%v err=%v", ok, err)
	}
	if !price.Equal(decimal.RequireFromString("145.67")) {
		t.Errorf("Expected price 145.67, got %s", price)
	}

	got, err := store.GetQuote(ctx, "NVDA.US")
	if err != nil || got == nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if !got.BuyPrice.Equal(decimal.RequireFromString("145.87")) {
		t.Errorf("Expected buy 145.87, got %s", got.BuyPrice)
	}

	spread, err := store.GetSpread(ctx, "NVDA.US")
	if err != nil || spread == nil {
		t.Fatalf("GetSpread failed: %v", err)
	}
	if !spread.AskSpread.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("Expected ask spread 0.2, got %s", spread.AskSpread)
	}
}

func TestGetMissing_ReturnsNilWithoutError(t *testing.T) {
	store, _ := setup(t)
	ctx := context.Background()

	if _, ok, err := store.GetPrice(ctx, "NONE.US"); ok || err != nil {
		t.Errorf("Expected missing price, got ok=%v err=%v", ok, err)
	}
	if q, err := store.GetQuote(ctx, "NONE.US"); q != nil || err != nil {
		t.Errorf("Expected nil quote, got %v %v", q, err)
	}
	if v, err := store.GetAggregate(ctx); v != nil || err != nil {
		t.Errorf("Expected nil aggregate, got %v %v", v, err)
	}
}

func TestGetQuotes_SkipsMissing(t *testing.T) {
	store, _ := setup(t)
	ctx := context.Background()

	for _, s := range []string{"AAPL.US", "TSLA.US"} {
		if err := store.SaveQuote(ctx, snapshot(s, "100"), models.SpreadSetting{Symbol: s}); err != nil {
			t.Fatalf("SaveQuote: %v", err)
		}
	}

	quotes, err := store.GetQuotes(ctx, []string{"AAPL.US", "MISSING.US", "TSLA.US"})
	if err != nil {
		t.Fatalf("GetQuotes failed: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("Expected 2 quotes, got %d", len(quotes))
	}
	if quotes[0].Symbol != "AAPL.US" || quotes[1].Symbol != "TSLA.US" {
		t.Errorf("Unexpected order: %s, %s", quotes[0].Symbol, quotes[1].Symbol)
	}
}

func TestAggregate_ExpiresQuickly(t *testing.T) {
	store, mr := setup(t)
	ctx := context.Background()

	view := &models.AggregateQuoteView{CodeList: []models.QuotePrice{snapshot("AAPL.US", "1").Price()}, UpdatedAt: time.Unix(5, 0).UTC()}
	if err := store.SaveAggregate(ctx, view); err != nil {
		t.Fatalf("SaveAggregate failed: %v", err)
	}

	got, err := store.GetAggregate(ctx)
	if err != nil || got == nil || len(got.CodeList) != 1 {
		t.Fatalf("GetAggregate failed: %v %v", got, err)
	}

	mr.FastForward(3 * time.Second)
	if got, _ := store.GetAggregate(ctx); got != nil {
		t.Error("Aggregate should be gone after its freshness window")
	}
}

func TestStatsAndCleanExpired(t *testing.T) {
	store, mr := setup(t)
	ctx := context.Background()

	store.SaveQuote(ctx, snapshot("AAPL.US", "1"), models.SpreadSetting{Symbol: "AAPL.US"})
	mr.Set("stock:legacy", "x")
	mr.Set("other:key", "ignored")

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalKeys != 4 {
		t.Errorf("Expected 4 keys under stock:*, got %d", stats.TotalKeys)
	}
	if stats.KeysWithTTL != 3 || stats.KeysWithoutTTL != 1 {
		t.Errorf("Unexpected ttl split: %+v", stats)
	}

	deleted, err := store.CleanExpired(ctx)
	if err != nil {
		t.Fatalf("CleanExpired failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected no deletions, got %d", deleted)
	}
	if ttl := mr.TTL("stock:legacy"); ttl != 60*time.Second {
		t.Errorf("Expected default ttl on legacy key, got %v", ttl)
	}
	if ttl := mr.TTL("other:key"); ttl != 0 {
		t.Errorf("Keys outside the pattern must be untouched, got %v", ttl)
	}
}
