package market

import (
	"fmt"
	"math"
)

// Candle represents a single OHLCV bar. OpenTime is in unix milliseconds
// and must be strictly increasing within a series. Volume is optional
// upstream and defaults to 0.
type Candle struct {
	OpenTime int64   `json:"openTime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Body returns the absolute size of the candle body.
func (c Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

// Range returns the full high-low range.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// BodyTop returns the upper boundary of the candle body.
func (c Candle) BodyTop() float64 {
	return math.Max(c.Open, c.Close)
}

// BodyBottom returns the lower boundary of the candle body.
func (c Candle) BodyBottom() float64 {
	return math.Min(c.Open, c.Close)
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the candle closed below its open.
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// Validate checks the input contract for a candle series: strictly
// increasing timestamps, finite positive OHLC values, and a high/low that
// brackets the open and close. A violation is a precondition failure and
// is reported immediately rather than recovered.
func Validate(candles []Candle) error {
	for i, c := range candles {
		if !isFinite(c.Open) || !isFinite(c.High) || !isFinite(c.Low) || !isFinite(c.Close) {
			return fmt.Errorf("candle %d: OHLC contains a non-finite value", i)
		}
		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
			return fmt.Errorf("candle %d: OHLC contains a non-positive value", i)
		}
		if c.High < c.Low {
			return fmt.Errorf("candle %d: high %.8f below low %.8f", i, c.High, c.Low)
		}
		if c.Open > c.High || c.Open < c.Low {
			return fmt.Errorf("candle %d: open %.8f outside high/low range", i, c.Open)
		}
		if c.Close > c.High || c.Close < c.Low {
			return fmt.Errorf("candle %d: close %.8f outside high/low range", i, c.Close)
		}
		if i > 0 && c.OpenTime <= candles[i-1].OpenTime {
			return fmt.Errorf("candle %d: openTime %d not after previous %d", i, c.OpenTime, candles[i-1].OpenTime)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
