package analysis

import (
	"fmt"
	"math"

	"ict-analyzer/internal/market"
)

// FairValueGap is a 3-candle price imbalance left behind by a displacement
// move. Top > Bottom always holds regardless of direction. Mitigated is
// monotonic: once price fills the gap it never reverts.
type FairValueGap struct {
	Index     int       `json:"index"` // middle candle of the triplet
	Direction Direction `json:"direction"`
	Top       float64   `json:"top"`
	Bottom    float64   `json:"bottom"`
	Midpoint  float64   `json:"midpoint"`

	// OTE entry sub-levels inside the gap, measured from the far edge
	// toward the near edge (62 / 70.5 / 79% retracement of the gap).
	OTE62  float64 `json:"ote_62"`
	OTE705 float64 `json:"ote_705"`
	OTE79  float64 `json:"ote_79"`

	Mitigated       bool `json:"mitigated"`
	MitigationIndex int  `json:"mitigation_index"` // -1 while unmitigated
}

// Size returns the gap height in price units.
func (g FairValueGap) Size() float64 {
	return g.Top - g.Bottom
}

// Contains reports whether price sits inside the gap.
func (g FairValueGap) Contains(price float64) bool {
	return price >= g.Bottom && price <= g.Top
}

// FVGDetector finds fair value gaps at least minGapPips wide whose middle
// candle carries a directional body. Thresholds are explicit per instance;
// there is no ambient pip-size state.
type FVGDetector struct {
	pipSize    float64
	minGapPips float64
}

// NewFVGDetector rejects malformed configuration at construction.
func NewFVGDetector(pipSize, minGapPips float64) (*FVGDetector, error) {
	if pipSize <= 0 {
		return nil, fmt.Errorf("pip size must be positive, got %f", pipSize)
	}
	if minGapPips < 0 {
		return nil, fmt.Errorf("min gap pips must not be negative, got %f", minGapPips)
	}
	return &FVGDetector{pipSize: pipSize, minGapPips: minGapPips}, nil
}

// FVGResult bundles the gap list with per-bar annotation columns keyed by
// the gap's record index (the middle candle).
type FVGResult struct {
	Gaps []FairValueGap

	Detected   []bool
	Directions []Direction
	Tops       []float64
	Bottoms    []float64
	Mitigated  []bool
}

// Detect scans every (i-2, i-1, i) triplet. A bullish gap requires
// low[i] > high[i-2] by at least the configured minimum and a bullish
// non-zero body on the middle candle; the displacement confirmation is
// mandatory, not optional. Mitigation is first-touch-wins: the first later
// bar whose low reaches the gap bottom (bullish) or whose high reaches the
// gap top (bearish) marks the gap and records the index.
func (d *FVGDetector) Detect(candles []market.Candle) *FVGResult {
	n := len(candles)
	res := &FVGResult{
		Detected:   make([]bool, n),
		Directions: make([]Direction, n),
		Tops:       make([]float64, n),
		Bottoms:    make([]float64, n),
		Mitigated:  make([]bool, n),
	}
	minGap := d.minGapPips * d.pipSize

	for i := 2; i < n; i++ {
		first, middle, last := candles[i-2], candles[i-1], candles[i]

		if middle.IsBullish() {
			if gap := last.Low - first.High; gap > 0 && gap >= minGap {
				res.add(d.build(i-1, Bullish, last.Low, first.High), candles)
			}
		}
		if middle.IsBearish() {
			if gap := first.Low - last.High; gap > 0 && gap >= minGap {
				res.add(d.build(i-1, Bearish, first.Low, last.High), candles)
			}
		}
	}
	return res
}

func (d *FVGDetector) build(index int, dir Direction, top, bottom float64) FairValueGap {
	size := top - bottom
	g := FairValueGap{
		Index:           index,
		Direction:       dir,
		Top:             top,
		Bottom:          bottom,
		Midpoint:        bottom + size/2,
		MitigationIndex: -1,
	}
	// 62/70.5/79% retracement levels expressed from the far edge of the
	// gap toward the near edge: the deeper the retracement, the closer
	// the level sits to the far edge.
	if dir == Bullish {
		g.OTE62 = bottom + 0.382*size
		g.OTE705 = bottom + 0.295*size
		g.OTE79 = bottom + 0.21*size
	} else {
		g.OTE62 = top - 0.382*size
		g.OTE705 = top - 0.295*size
		g.OTE79 = top - 0.21*size
	}
	return g
}

func (r *FVGResult) add(g FairValueGap, candles []market.Candle) {
	// Scan forward from the bar after the completing candle.
	for j := g.Index + 2; j < len(candles); j++ {
		if g.Direction == Bullish && candles[j].Low <= g.Bottom {
			g.Mitigated = true
			g.MitigationIndex = j
			break
		}
		if g.Direction == Bearish && candles[j].High >= g.Top {
			g.Mitigated = true
			g.MitigationIndex = j
			break
		}
	}

	r.Gaps = append(r.Gaps, g)
	r.Detected[g.Index] = true
	r.Directions[g.Index] = g.Direction
	r.Tops[g.Index] = g.Top
	r.Bottoms[g.Index] = g.Bottom
	r.Mitigated[g.Index] = g.Mitigated
}

// Active returns the unmitigated gaps matching the direction; pass Any for
// both directions.
func (r *FVGResult) Active(dir Direction) []FairValueGap {
	var out []FairValueGap
	for _, g := range r.Gaps {
		if g.Mitigated {
			continue
		}
		if dir == Any || g.Direction == dir {
			out = append(out, g)
		}
	}
	return out
}

// Nearest returns the active gap whose midpoint is closest to price, or
// nil when no matching gap is active.
func (r *FVGResult) Nearest(price float64, dir Direction) *FairValueGap {
	var best *FairValueGap
	bestDist := math.MaxFloat64
	for i := range r.Gaps {
		g := &r.Gaps[i]
		if g.Mitigated || (dir != Any && g.Direction != dir) {
			continue
		}
		if dist := abs(g.Midpoint - price); dist < bestDist {
			bestDist = dist
			best = g
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}
