package analysis

// Direction represents the directional reading of a candle, pattern or trend.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Any matches both directions in pattern queries.
const Any Direction = ""

// Opposite returns the inverse direction. Neutral maps to itself.
func (d Direction) Opposite() Direction {
	switch d {
	case Bullish:
		return Bearish
	case Bearish:
		return Bullish
	default:
		return d
	}
}

// SwingKind distinguishes swing highs from swing lows.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a confirmed local extremum. A swing at index i is only
// knowable once swingLength further bars exist; Protected flips to false
// the first time a later bar closes beyond the swing price.
type SwingPoint struct {
	Index     int       `json:"index"`
	Price     float64   `json:"price"`
	Kind      SwingKind `json:"kind"`
	Protected bool      `json:"protected"`
}

// BreakKind distinguishes structure-break events.
type BreakKind string

const (
	// BOS is a break of the most recent swing in the current trend's
	// direction, confirming continuation.
	BOS BreakKind = "bos"
	// CHoCH is a break of the swing against the current trend, flipping it.
	CHoCH BreakKind = "choch"
)

// StructureBreak records a single BOS/CHoCH event.
type StructureBreak struct {
	Index     int       `json:"index"`
	Kind      BreakKind `json:"kind"`
	Direction Direction `json:"direction"`
}

// PoolKind distinguishes liquidity resting above highs from below lows.
type PoolKind string

const (
	BuySide  PoolKind = "buy_side"
	SellSide PoolKind = "sell_side"
)
