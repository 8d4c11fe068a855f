package analysis

import (
	"fmt"
	"math"

	"ict-analyzer/internal/market"
)

// OrderBlock is the last opposite-colored candle before a displacement
// move: its body is treated as a zone of resting institutional orders.
// Direction is the direction of the move the block precedes, not the color
// of the block candle itself.
type OrderBlock struct {
	Index      int       `json:"index"` // the opposite-colored candle
	Direction  Direction `json:"direction"`
	BodyTop    float64   `json:"body_top"`
	BodyBottom float64   `json:"body_bottom"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`

	Mitigated       bool `json:"mitigated"`
	MitigationIndex int  `json:"mitigation_index"` // -1 while unmitigated
}

// OrderBlockDetector locates order blocks behind displacement-sized bars.
// closeMitigation selects whether mitigation tests the bar close or the
// bar extreme.
type OrderBlockDetector struct {
	pipSize             float64
	minDisplacementPips float64
	lookback            int
	closeMitigation     bool
}

// NewOrderBlockDetector rejects malformed configuration at construction.
func NewOrderBlockDetector(pipSize, minDisplacementPips float64, lookback int, closeMitigation bool) (*OrderBlockDetector, error) {
	if pipSize <= 0 {
		return nil, fmt.Errorf("pip size must be positive, got %f", pipSize)
	}
	if minDisplacementPips <= 0 {
		return nil, fmt.Errorf("min displacement pips must be positive, got %f", minDisplacementPips)
	}
	if lookback <= 0 {
		return nil, fmt.Errorf("lookback must be positive, got %d", lookback)
	}
	return &OrderBlockDetector{
		pipSize:             pipSize,
		minDisplacementPips: minDisplacementPips,
		lookback:            lookback,
		closeMitigation:     closeMitigation,
	}, nil
}

// OrderBlockResult bundles the block list with per-bar annotation columns
// keyed by the block candle's index.
type OrderBlockResult struct {
	Blocks []OrderBlock

	Detected   []bool
	Directions []Direction
	BodyTops   []float64
	BodyBots   []float64
	Mitigated  []bool
}

// Detect scans each bar whose full range reaches the displacement
// threshold and whose color matches the intended move, then walks backward
// up to the lookback for the nearest opposite-colored candle. Each
// qualifying displacement bar may spawn its own block; blocks persist
// independently. Mitigation uses the block body boundary, never the full
// wick range: a bullish block is mitigated when the test price reaches
// BodyBottom, a bearish one when it reaches BodyTop.
func (d *OrderBlockDetector) Detect(candles []market.Candle) *OrderBlockResult {
	n := len(candles)
	res := &OrderBlockResult{
		Detected:   make([]bool, n),
		Directions: make([]Direction, n),
		BodyTops:   make([]float64, n),
		BodyBots:   make([]float64, n),
		Mitigated:  make([]bool, n),
	}
	minRange := d.minDisplacementPips * d.pipSize

	for i := 1; i < n; i++ {
		c := candles[i]
		if c.Range() < minRange {
			continue
		}

		var dir Direction
		switch {
		case c.IsBullish():
			dir = Bullish
		case c.IsBearish():
			dir = Bearish
		default:
			continue
		}

		for j := i - 1; j >= 0 && j >= i-d.lookback; j-- {
			opp := candles[j]
			if (dir == Bullish && !opp.IsBearish()) || (dir == Bearish && !opp.IsBullish()) {
				continue
			}
			block := OrderBlock{
				Index:           j,
				Direction:       dir,
				BodyTop:         opp.BodyTop(),
				BodyBottom:      opp.BodyBottom(),
				High:            opp.High,
				Low:             opp.Low,
				MitigationIndex: -1,
			}
			d.trackMitigation(&block, candles, i)
			res.add(block)
			break
		}
	}
	return res
}

func (d *OrderBlockDetector) trackMitigation(b *OrderBlock, candles []market.Candle, from int) {
	for k := from + 1; k < len(candles); k++ {
		var price float64
		switch {
		case d.closeMitigation:
			price = candles[k].Close
		case b.Direction == Bullish:
			price = candles[k].Low
		default:
			price = candles[k].High
		}

		if b.Direction == Bullish && price <= b.BodyBottom {
			b.Mitigated = true
			b.MitigationIndex = k
			return
		}
		if b.Direction == Bearish && price >= b.BodyTop {
			b.Mitigated = true
			b.MitigationIndex = k
			return
		}
	}
}

func (r *OrderBlockResult) add(b OrderBlock) {
	r.Blocks = append(r.Blocks, b)
	r.Detected[b.Index] = true
	r.Directions[b.Index] = b.Direction
	r.BodyTops[b.Index] = b.BodyTop
	r.BodyBots[b.Index] = b.BodyBottom
	r.Mitigated[b.Index] = b.Mitigated
}

// Active returns the unmitigated blocks matching the direction; pass Any
// for both directions.
func (r *OrderBlockResult) Active(dir Direction) []OrderBlock {
	var out []OrderBlock
	for _, b := range r.Blocks {
		if b.Mitigated {
			continue
		}
		if dir == Any || b.Direction == dir {
			out = append(out, b)
		}
	}
	return out
}

// Nearest returns the active block whose body midpoint is closest to
// price, or nil when no matching block is active.
func (r *OrderBlockResult) Nearest(price float64, dir Direction) *OrderBlock {
	var best *OrderBlock
	bestDist := math.MaxFloat64
	for i := range r.Blocks {
		b := &r.Blocks[i]
		if b.Mitigated || (dir != Any && b.Direction != dir) {
			continue
		}
		mid := (b.BodyTop + b.BodyBottom) / 2
		if dist := abs(mid - price); dist < bestDist {
			bestDist = dist
			best = b
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}
