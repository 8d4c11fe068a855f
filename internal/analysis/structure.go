package analysis

import (
	"fmt"

	"ict-analyzer/internal/market"
)

// StructureAnalyzer extracts fractal swings and classifies market
// structure into trend, BOS and CHoCH events. A swing at index i is only
// confirmed once swingLength further bars exist, so the analyzer processes
// bars in strict causal order and admits each swing at its confirmation
// index, never earlier.
type StructureAnalyzer struct {
	swingLength int
}

// NewStructureAnalyzer rejects malformed configuration at construction.
func NewStructureAnalyzer(swingLength int) (*StructureAnalyzer, error) {
	if swingLength <= 0 {
		return nil, fmt.Errorf("swing length must be positive, got %d", swingLength)
	}
	return &StructureAnalyzer{swingLength: swingLength}, nil
}

// StructureResult bundles swings, break events and the final trend with
// per-bar annotation columns.
type StructureResult struct {
	Swings []SwingPoint
	Breaks []StructureBreak
	Trend  Direction

	// Per-bar annotation columns. SwingHighs/SwingLows mark the swing
	// bar itself, which is only knowable swingLength bars later; Trends
	// carries the trend as tracked at each bar.
	SwingHighs []bool
	SwingLows  []bool
	Trends     []Direction
	BreakKinds []BreakKind
	BreakDirs  []Direction
}

// Detect runs the full causal walk over the series. With fewer than
// 2*swingLength bars the result is well-formed and empty.
func (a *StructureAnalyzer) Detect(candles []market.Candle) *StructureResult {
	n := len(candles)
	res := &StructureResult{
		Trend:      Neutral,
		SwingHighs: make([]bool, n),
		SwingLows:  make([]bool, n),
		Trends:     make([]Direction, n),
		BreakKinds: make([]BreakKind, n),
		BreakDirs:  make([]Direction, n),
	}
	for i := range res.Trends {
		res.Trends[i] = Neutral
	}
	if n < 2*a.swingLength {
		return res
	}

	// Pre-compute swings; each becomes visible to the walk at
	// index + swingLength.
	highIdx := swingHighIndexes(candles, a.swingLength)
	lowIdx := swingLowIndexes(candles, a.swingLength)

	type pending struct {
		swing     SwingPoint
		confirmAt int
	}
	queue := make([]pending, 0, len(highIdx)+len(lowIdx))
	hi, li := 0, 0
	for hi < len(highIdx) || li < len(lowIdx) {
		switch {
		case li >= len(lowIdx) || (hi < len(highIdx) && highIdx[hi] <= lowIdx[li]):
			idx := highIdx[hi]
			queue = append(queue, pending{
				swing:     SwingPoint{Index: idx, Price: candles[idx].High, Kind: SwingHigh, Protected: true},
				confirmAt: idx + a.swingLength,
			})
			hi++
		default:
			idx := lowIdx[li]
			queue = append(queue, pending{
				swing:     SwingPoint{Index: idx, Price: candles[idx].Low, Kind: SwingLow, Protected: true},
				confirmAt: idx + a.swingLength,
			})
			li++
		}
	}

	// highs/lows alias entries of res.Swings, so the slice must never
	// reallocate once the walk starts.
	res.Swings = make([]SwingPoint, 0, len(queue))

	trend := Neutral
	next := 0
	var highs, lows []*SwingPoint

	for i := 0; i < n; i++ {
		// Admit swings confirmed at this bar and re-label the trend
		// from the two most recent confirmed highs and lows.
		for next < len(queue) && queue[next].confirmAt == i {
			s := queue[next].swing
			res.Swings = append(res.Swings, s)
			sp := &res.Swings[len(res.Swings)-1]
			if sp.Kind == SwingHigh {
				res.SwingHighs[sp.Index] = true
				highs = append(highs, sp)
			} else {
				res.SwingLows[sp.Index] = true
				lows = append(lows, sp)
			}
			trend = relabel(trend, highs, lows)
			next++
		}

		closePrice := candles[i].Close

		// A close beyond the most recent confirmed swing is a structure
		// break: BOS when it continues the trend, CHoCH when it breaks
		// the swing guarding the opposite side, flipping the trend. The
		// close-only rule is the designed tie-break against wick probes.
		if len(highs) > 0 {
			ref := highs[len(highs)-1]
			if ref.Protected && closePrice > ref.Price {
				ref.Protected = false
				kind := BOS
				if trend == Bearish {
					kind = CHoCH
				}
				trend = Bullish
				res.Breaks = append(res.Breaks, StructureBreak{Index: i, Kind: kind, Direction: Bullish})
				res.BreakKinds[i] = kind
				res.BreakDirs[i] = Bullish
			}
		}
		if len(lows) > 0 {
			ref := lows[len(lows)-1]
			if ref.Protected && closePrice < ref.Price {
				ref.Protected = false
				kind := BOS
				if trend == Bullish {
					kind = CHoCH
				}
				trend = Bearish
				res.Breaks = append(res.Breaks, StructureBreak{Index: i, Kind: kind, Direction: Bearish})
				res.BreakKinds[i] = kind
				res.BreakDirs[i] = Bearish
			}
		}

		// Any older protected swing the close trades through loses
		// protection too, without emitting an event.
		for _, s := range highs {
			if s.Protected && closePrice > s.Price {
				s.Protected = false
			}
		}
		for _, s := range lows {
			if s.Protected && closePrice < s.Price {
				s.Protected = false
			}
		}

		res.Trends[i] = trend
	}

	res.Trend = trend
	return res
}

// relabel derives the structure label from the two most recent confirmed
// swing highs and lows: HH & HL is bullish, LH & LL is bearish, anything
// mixed leaves the tracked trend unchanged.
func relabel(current Direction, highs, lows []*SwingPoint) Direction {
	if len(highs) < 2 || len(lows) < 2 {
		return current
	}
	hh := highs[len(highs)-1].Price > highs[len(highs)-2].Price
	hl := lows[len(lows)-1].Price > lows[len(lows)-2].Price
	lh := highs[len(highs)-1].Price < highs[len(highs)-2].Price
	ll := lows[len(lows)-1].Price < lows[len(lows)-2].Price

	switch {
	case hh && hl:
		return Bullish
	case lh && ll:
		return Bearish
	default:
		return current
	}
}

// LastBreak returns the most recent structure break, or nil.
func (r *StructureResult) LastBreak() *StructureBreak {
	if len(r.Breaks) == 0 {
		return nil
	}
	b := r.Breaks[len(r.Breaks)-1]
	return &b
}

// ProtectedSwings returns the swings price has not yet closed beyond,
// the raw material for downstream retracement entries.
func (r *StructureResult) ProtectedSwings() []SwingPoint {
	var out []SwingPoint
	for _, s := range r.Swings {
		if s.Protected {
			out = append(out, s)
		}
	}
	return out
}
