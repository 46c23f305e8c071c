package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/quote-relay/pkg/models"
)

const (
	quotePrefix  = "stock:quote:"
	pricePrefix  = "stock:price:"
	spreadPrefix = "stock:spread:"
	aggregateKey = "stock:quotes:all"

	scanCount = 200

	// TTL replies for keys without expiry and missing keys.
	ttlNoExpiry = time.Duration(-1)
	ttlMissing  = time.Duration(-2)
)

// Compile-time check to ensure RedisStore implements the store interfaces
var (
	_ QuoteStore  = (*RedisStore)(nil)
	_ Maintenance = (*RedisStore)(nil)
)

type TTLs struct {
	Quote     time.Duration
	Spread    time.Duration
	Aggregate time.Duration
	Default   time.Duration
}

type RedisStore struct {
	client  *redis.Client
	ttl     TTLs
	pattern string
}

func NewRedisStore(client *redis.Client, ttl TTLs, pattern string) *RedisStore {
	if pattern == "" {
		pattern = "stock:*"
	}
	return &RedisStore{client: client, ttl: ttl, pattern: pattern}
}

// GetPrice returns the raw price marker used for change detection.
func (r *RedisStore) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	val, err := r.client.Get(ctx, pricePrefix+symbol).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("redis GET price failed: %w", err)
	}

	price, err := decimal.NewFromString(val)
	if err != nil {
		// A corrupt marker is treated as absent so the next tick rewrites it
		return decimal.Zero, false, nil
	}
	return price, true, nil
}

func (r *RedisStore) GetQuote(ctx context.Context, symbol string) (*models.QuoteSnapshot, error) {
	var q models.QuoteSnapshot
	ok, err := r.getJSON(ctx, quotePrefix+symbol, &q)
	if err != nil || !ok {
		return nil, err
	}
	return &q, nil
}

func (r *RedisStore) GetSpread(ctx context.Context, symbol string) (*models.SpreadSetting, error) {
	var s models.SpreadSetting
	ok, err := r.getJSON(ctx, spreadPrefix+symbol, &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

// SaveQuote replaces the snapshot, price marker and spread snapshot in one pipeline.
func (r *RedisStore) SaveQuote(ctx context.Context, quote *models.QuoteSnapshot, spread models.SpreadSetting) error {
	quoteJSON, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}
	spreadJSON, err := json.Marshal(spread)
	if err != nil {
		return fmt.Errorf("failed to marshal spread: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, quotePrefix+quote.Symbol, quoteJSON, r.ttl.Quote)
	pipe.Set(ctx, pricePrefix+quote.Symbol, quote.RealtimePrice.String(), r.ttl.Quote)
	pipe.Set(ctx, spreadPrefix+quote.Symbol, spreadJSON, r.ttl.Spread)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed for %s: %w", quote.Symbol, err)
	}
	return nil
}

// GetQuotes reads all snapshots in a single round trip. Missing symbols are skipped.
func (r *RedisStore) GetQuotes(ctx context.Context, symbols []string) ([]models.QuoteSnapshot, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(symbols))
	for i, sym := range symbols {
		cmds[i] = pipe.Get(ctx, quotePrefix+sym)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis batch GET failed: %w", err)
	}

	quotes := make([]models.QuoteSnapshot, 0, len(symbols))
	for _, cmd := range cmds {
		payload, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var q models.QuoteSnapshot
		if err := json.Unmarshal(payload, &q); err != nil {
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (r *RedisStore) SaveAggregate(ctx context.Context, view *models.AggregateQuoteView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal aggregate: %w", err)
	}
	return r.client.Set(ctx, aggregateKey, data, r.ttl.Aggregate).Err()
}

func (r *RedisStore) GetAggregate(ctx context.Context) (*models.AggregateQuoteView, error) {
	var v models.AggregateQuoteView
	ok, err := r.getJSON(ctx, aggregateKey, &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// Stats counts keys under the store pattern by expiry class.
func (r *RedisStore) Stats(ctx context.Context) (*CacheStats, error) {
	keys, err := r.scanKeys(ctx)
	if err != nil {
		return nil, err
	}
	ttls, err := r.ttls(ctx, keys)
	if err != nil {
		return nil, err
	}

	stats := &CacheStats{TotalKeys: len(keys)}
	for _, ttl := range ttls {
		switch ttl {
		case ttlNoExpiry:
			stats.KeysWithoutTTL++
		case ttlMissing:
			stats.ExpiredKeys++
		default:
			stats.KeysWithTTL++
		}
	}
	stats.MemoryUsage = r.memoryUsage(ctx, keys)

	return stats, nil
}

// CleanExpired gives keys without expiry the default TTL and deletes keys that
// already expired. It returns the number of deleted keys.
func (r *RedisStore) CleanExpired(ctx context.Context) (int, error) {
	keys, err := r.scanKeys(ctx)
	if err != nil {
		return 0, err
	}
	ttls, err := r.ttls(ctx, keys)
	if err != nil {
		return 0, err
	}

	deleted := 0
	pipe := r.client.Pipeline()
	for i, ttl := range ttls {
		switch ttl {
		case ttlNoExpiry:
			pipe.Expire(ctx, keys[i], r.ttl.Default)
		case ttlMissing:
			pipe.Del(ctx, keys[i])
			deleted++
		}
	}
	if pipe.Len() == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis cleanup pipeline failed: %w", err)
	}
	return deleted, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) getJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis GET %s failed: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisStore) scanKeys(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, r.pattern, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis SCAN failed: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (r *RedisStore) ttls(ctx context.Context, keys []string) ([]time.Duration, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.DurationCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.TTL(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis TTL pipeline failed: %w", err)
	}

	out := make([]time.Duration, len(cmds))
	for i, cmd := range cmds {
		out[i] = cmd.Val()
	}
	return out, nil
}

// memoryUsage is best effort; servers without MEMORY USAGE report zero.
func (r *RedisStore) memoryUsage(ctx context.Context, keys []string) int64 {
	if len(keys) == 0 {
		return 0
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.MemoryUsage(ctx, k)
	}
	_, _ = pipe.Exec(ctx)

	var total int64
	for _, cmd := range cmds {
		if n, err := cmd.Result(); err == nil {
			total += n
		}
	}
	return total
}
