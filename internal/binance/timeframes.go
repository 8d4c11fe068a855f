package binance

import (
	"context"
	"fmt"
	"sync"

	"ict-analyzer/internal/market"
)

// TimeframeCandles maps an interval such as "4h" to its candle series.
type TimeframeCandles map[string][]market.Candle

// KlineSource is the candle fetch dependency. *Client satisfies it, as
// does the cache-backed source in internal/cache.
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
}

// FetchTimeframes fetches the given intervals concurrently from one
// source. The frames are independent, so a failure on any interval fails
// the whole call; partial frame sets are never returned.
func FetchTimeframes(ctx context.Context, src KlineSource, symbol string, intervals []string, limit int) (TimeframeCandles, error) {
	type result struct {
		interval string
		candles  []market.Candle
		err      error
	}

	results := make(chan result, len(intervals))
	var wg sync.WaitGroup
	for _, interval := range intervals {
		wg.Add(1)
		go func(interval string) {
			defer wg.Done()
			candles, err := src.GetKlines(ctx, symbol, interval, limit)
			results <- result{interval: interval, candles: candles, err: err}
		}(interval)
	}
	wg.Wait()
	close(results)

	frames := make(TimeframeCandles, len(intervals))
	for r := range results {
		if r.err != nil {
			return nil, fmt.Errorf("interval %s: %w", r.interval, r.err)
		}
		frames[r.interval] = r.candles
	}
	return frames, nil
}
