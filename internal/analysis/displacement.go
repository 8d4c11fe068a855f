package analysis

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"ict-analyzer/internal/market"
)

// Displacement marks a candle whose range and body indicate forceful,
// one-sided order flow relative to recent volatility.
type Displacement struct {
	Index       int       `json:"index"`
	Direction   Direction `json:"direction"`
	BodyRatio   float64   `json:"body_ratio"`
	ATRMultiple float64   `json:"atr_multiple"`
}

// DisplacementDetector classifies candles against a rolling ATR baseline.
// The detector itself carries only configuration; Detect is a pure
// function of the input series, so a single detector value may be shared.
type DisplacementDetector struct {
	atrPeriod      int
	minATRMultiple float64
	minBodyRatio   float64
}

// NewDisplacementDetector validates configuration up front. Non-positive
// periods or thresholds are caller programming errors.
func NewDisplacementDetector(atrPeriod int, minATRMultiple, minBodyRatio float64) (*DisplacementDetector, error) {
	if atrPeriod <= 0 {
		return nil, fmt.Errorf("atr period must be positive, got %d", atrPeriod)
	}
	if minATRMultiple <= 0 {
		return nil, fmt.Errorf("min atr multiple must be positive, got %f", minATRMultiple)
	}
	if minBodyRatio <= 0 || minBodyRatio > 1 {
		return nil, fmt.Errorf("min body ratio must be in (0, 1], got %f", minBodyRatio)
	}
	return &DisplacementDetector{
		atrPeriod:      atrPeriod,
		minATRMultiple: minATRMultiple,
		minBodyRatio:   minBodyRatio,
	}, nil
}

// DisplacementResult bundles the ordered displacement list with per-bar
// feature columns aligned 1:1 with the input series.
type DisplacementResult struct {
	Displacements []Displacement

	// Per-bar annotation columns.
	Flags        []bool
	Directions   []Direction
	BodyRatios   []float64
	ATRMultiples []float64
	ATR          []float64
}

// Detect classifies every bar of the series. With fewer bars than the ATR
// period the result is well-formed and empty: the columns are allocated
// and all false/zero so downstream composition needs no special case.
func (d *DisplacementDetector) Detect(candles []market.Candle) *DisplacementResult {
	n := len(candles)
	res := &DisplacementResult{
		Flags:        make([]bool, n),
		Directions:   make([]Direction, n),
		BodyRatios:   make([]float64, n),
		ATRMultiples: make([]float64, n),
		ATR:          make([]float64, n),
	}
	if n < d.atrPeriod {
		return res
	}

	// TR = max(high-low, |high-prevClose|, |low-prevClose|);
	// ATR = rolling mean of TR over the period.
	tr := make([]float64, n)
	tr[0] = candles[0].Range()
	for i := 1; i < n; i++ {
		hl := candles[i].Range()
		hc := abs(candles[i].High - candles[i-1].Close)
		lc := abs(candles[i].Low - candles[i-1].Close)
		tr[i] = max3(hl, hc, lc)
	}
	res.ATR = talib.Sma(tr, d.atrPeriod)

	for i := d.atrPeriod - 1; i < n; i++ {
		atr := res.ATR[i]
		rng := candles[i].Range()
		// Zero-range bars and a degenerate ATR are skipped for this
		// test rather than propagated.
		if atr <= 0 || rng <= 0 {
			continue
		}

		bodyRatio := candles[i].Body() / rng
		atrMultiple := rng / atr
		res.BodyRatios[i] = bodyRatio
		res.ATRMultiples[i] = atrMultiple

		if atrMultiple < d.minATRMultiple || bodyRatio < d.minBodyRatio {
			continue
		}

		dir := Bearish
		if candles[i].IsBullish() {
			dir = Bullish
		}
		res.Flags[i] = true
		res.Directions[i] = dir
		res.Displacements = append(res.Displacements, Displacement{
			Index:       i,
			Direction:   dir,
			BodyRatio:   bodyRatio,
			ATRMultiple: atrMultiple,
		})
	}
	return res
}

// Recent returns the latest displacement matching the direction, or nil.
// Pass Any to match either direction.
func (r *DisplacementResult) Recent(dir Direction) *Displacement {
	for i := len(r.Displacements) - 1; i >= 0; i-- {
		if dir == Any || r.Displacements[i].Direction == dir {
			d := r.Displacements[i]
			return &d
		}
	}
	return nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
