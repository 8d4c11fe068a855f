package cache

import (
	"context"

	"ict-analyzer/internal/binance"
	"ict-analyzer/internal/market"
)

// CachedSource layers the candle cache over any kline source. Misses and
// cache outages fall through to the underlying source.
type CachedSource struct {
	src   binance.KlineSource
	cache *CandleCache
}

// NewCachedSource wraps src with the cache.
func NewCachedSource(src binance.KlineSource, cache *CandleCache) *CachedSource {
	return &CachedSource{src: src, cache: cache}
}

// GetKlines serves from Redis when possible and populates it after a
// fetch.
func (s *CachedSource) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if cached := s.cache.Get(ctx, symbol, interval, limit); cached != nil {
		return cached, nil
	}

	candles, err := s.src.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, symbol, interval, limit, candles)
	return candles, nil
}
