package analysis

import (
	"fmt"
	"math"
	"sort"

	"ict-analyzer/internal/market"
)

// LiquidityPool is a price level where resting stop orders are assumed to
// cluster: buy-side above swing highs, sell-side below swing lows.
// Strength counts the swings that formed the level; Swept is monotonic.
type LiquidityPool struct {
	Index        int      `json:"index"` // most recent member swing
	Level        float64  `json:"level"`
	Kind         PoolKind `json:"kind"`
	Strength     int      `json:"strength"`
	IsEqualLevel bool     `json:"is_equal_level"`
	Swept        bool     `json:"swept"`
	SweepIndex   int      `json:"sweep_index"` // -1 while unswept
}

// LiquiditySweep records the bar that traded through a pool level, and
// whether the move was rejected back through the level.
type LiquiditySweep struct {
	Index       int      `json:"index"`
	Kind        PoolKind `json:"kind"`
	Level       float64  `json:"level"`
	SweepHigh   float64  `json:"sweep_high"`
	SweepLow    float64  `json:"sweep_low"`
	IsRejection bool     `json:"is_rejection"`
}

// LiquidityDetector finds swing-based liquidity pools, clusters equal
// levels within a pip tolerance, and tracks sweeps with rejection
// confirmation. It derives swings through the same symmetric-window rule
// as the structure analyzer.
type LiquidityDetector struct {
	pipSize           float64
	swingLength       int
	tolerancePips     float64
	minTouches        int
	sweepConfirmation int
}

// NewLiquidityDetector rejects malformed configuration at construction.
func NewLiquidityDetector(pipSize float64, swingLength int, tolerancePips float64, minTouches, sweepConfirmation int) (*LiquidityDetector, error) {
	if pipSize <= 0 {
		return nil, fmt.Errorf("pip size must be positive, got %f", pipSize)
	}
	if swingLength <= 0 {
		return nil, fmt.Errorf("swing length must be positive, got %d", swingLength)
	}
	if tolerancePips < 0 {
		return nil, fmt.Errorf("tolerance pips must not be negative, got %f", tolerancePips)
	}
	if minTouches < 2 {
		return nil, fmt.Errorf("min touches must be at least 2, got %d", minTouches)
	}
	if sweepConfirmation <= 0 {
		return nil, fmt.Errorf("sweep confirmation candles must be positive, got %d", sweepConfirmation)
	}
	return &LiquidityDetector{
		pipSize:           pipSize,
		swingLength:       swingLength,
		tolerancePips:     tolerancePips,
		minTouches:        minTouches,
		sweepConfirmation: sweepConfirmation,
	}, nil
}

// LiquidityResult bundles pools and sweeps with per-bar sweep columns.
type LiquidityResult struct {
	Pools  []LiquidityPool
	Sweeps []LiquiditySweep

	// Per-bar annotation columns marking bars on which a sweep fired.
	SweptBars  []bool
	SweepKinds []PoolKind
	Rejections []bool
}

// Detect builds the pool set and scans each unswept pool forward for the
// first bar trading through its level. With fewer than 2*swingLength bars
// the result is well-formed and empty.
func (d *LiquidityDetector) Detect(candles []market.Candle) *LiquidityResult {
	n := len(candles)
	res := &LiquidityResult{
		SweptBars:  make([]bool, n),
		SweepKinds: make([]PoolKind, n),
		Rejections: make([]bool, n),
	}
	if n < 2*d.swingLength {
		return res
	}

	tolerance := d.tolerancePips * d.pipSize
	bsl := d.clusterPools(candles, swingHighIndexes(candles, d.swingLength), BuySide, tolerance)
	ssl := d.clusterPools(candles, swingLowIndexes(candles, d.swingLength), SellSide, tolerance)
	res.Pools = append(bsl, ssl...)
	sort.Slice(res.Pools, func(i, j int) bool { return res.Pools[i].Index < res.Pools[j].Index })

	for i := range res.Pools {
		d.trackSweep(&res.Pools[i], candles, res)
	}
	return res
}

// clusterPools groups swing levels whose distance to the cluster's running
// mean stays within tolerance. A cluster reaching minTouches members is an
// equal level; its strength escalates with every touch.
func (d *LiquidityDetector) clusterPools(candles []market.Candle, swings []int, kind PoolKind, tolerance float64) []LiquidityPool {
	var pools []LiquidityPool
	for _, idx := range swings {
		level := candles[idx].High
		if kind == SellSide {
			level = candles[idx].Low
		}

		merged := false
		for i := range pools {
			p := &pools[i]
			if abs(level-p.Level) <= tolerance {
				p.Level = (p.Level*float64(p.Strength) + level) / float64(p.Strength+1)
				p.Strength++
				p.IsEqualLevel = p.Strength >= d.minTouches
				p.Index = idx
				merged = true
				break
			}
		}
		if !merged {
			pools = append(pools, LiquidityPool{
				Index:      idx,
				Level:      level,
				Kind:       kind,
				Strength:   1,
				SweepIndex: -1,
			})
		}
	}
	return pools
}

// trackSweep marks the first bar whose extreme trades through the pool
// level. Rejection needs the sweep bar itself to close back against the
// sweep and every close in the confirmation window to hold the far side
// of the level; a window cut off by the right edge never confirms.
func (d *LiquidityDetector) trackSweep(p *LiquidityPool, candles []market.Candle, res *LiquidityResult) {
	for j := p.Index + 1; j < len(candles); j++ {
		c := candles[j]
		swept := (p.Kind == BuySide && c.High > p.Level) ||
			(p.Kind == SellSide && c.Low < p.Level)
		if !swept {
			continue
		}

		p.Swept = true
		p.SweepIndex = j

		sweep := LiquiditySweep{
			Index:     j,
			Kind:      p.Kind,
			Level:     p.Level,
			SweepHigh: c.High,
			SweepLow:  c.Low,
		}
		sweep.IsRejection = d.confirmRejection(p, candles, j)
		res.Sweeps = append(res.Sweeps, sweep)
		res.SweptBars[j] = true
		res.SweepKinds[j] = p.Kind
		res.Rejections[j] = sweep.IsRejection
		return
	}
}

func (d *LiquidityDetector) confirmRejection(p *LiquidityPool, candles []market.Candle, sweepIdx int) bool {
	if sweepIdx+d.sweepConfirmation >= len(candles) {
		return false
	}

	sweepBar := candles[sweepIdx]
	if p.Kind == BuySide && !sweepBar.IsBearish() {
		return false
	}
	if p.Kind == SellSide && !sweepBar.IsBullish() {
		return false
	}

	for k := sweepIdx + 1; k <= sweepIdx+d.sweepConfirmation; k++ {
		if p.Kind == BuySide && candles[k].Close >= p.Level {
			return false
		}
		if p.Kind == SellSide && candles[k].Close <= p.Level {
			return false
		}
	}
	return true
}

// Nearest returns the closest unswept pool on the correct side of price:
// buy-side above, sell-side below. Returns nil when none qualifies.
func (r *LiquidityResult) Nearest(price float64, kind PoolKind) *LiquidityPool {
	var best *LiquidityPool
	bestDist := math.MaxFloat64
	for i := range r.Pools {
		p := &r.Pools[i]
		if p.Swept || p.Kind != kind {
			continue
		}
		if kind == BuySide && p.Level <= price {
			continue
		}
		if kind == SellSide && p.Level >= price {
			continue
		}
		if dist := abs(p.Level - price); dist < bestDist {
			bestDist = dist
			best = p
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// EqualLevels returns the pools formed by clustered equal highs or lows.
func (r *LiquidityResult) EqualLevels(kind PoolKind) []LiquidityPool {
	var out []LiquidityPool
	for _, p := range r.Pools {
		if p.IsEqualLevel && (kind == "" || p.Kind == kind) {
			out = append(out, p)
		}
	}
	return out
}
