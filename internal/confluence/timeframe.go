package confluence

import (
	"fmt"

	"ict-analyzer/internal/analysis"
	"ict-analyzer/internal/market"
)

// Timeframe identifies a chart interval such as "4h" or "15m".
type Timeframe string

// Frame is one independently supplied candle series for a timeframe. The
// engine shares no state between frames.
type Frame struct {
	Timeframe Timeframe
	Candles   []market.Candle
}

// Zone labels where price sits relative to the frame's equilibrium.
type Zone string

const (
	Premium  Zone = "premium"
	Discount Zone = "discount"
)

// TimeframeAnalysis is the per-timeframe summary the engine aggregates.
// The detector result bundles are kept so entry-zone queries can reach the
// underlying patterns without recomputing.
type TimeframeAnalysis struct {
	Timeframe         Timeframe                `json:"timeframe"`
	Trend             analysis.Direction       `json:"trend"`
	Bias              analysis.Direction       `json:"bias"`
	ActiveFVGs        int                      `json:"active_fvgs"`
	ActiveOrderBlocks int                      `json:"active_order_blocks"`
	HasDisplacement   bool                     `json:"has_displacement"`
	NearestBSL        *analysis.LiquidityPool  `json:"nearest_bsl,omitempty"`
	NearestSSL        *analysis.LiquidityPool  `json:"nearest_ssl,omitempty"`
	PremiumDiscount   Zone                     `json:"premium_discount"`
	LastBreak         *analysis.StructureBreak `json:"last_break,omitempty"`

	FVGs        *analysis.FVGResult        `json:"-"`
	OrderBlocks *analysis.OrderBlockResult `json:"-"`
	Structure   *analysis.StructureResult  `json:"-"`
	Liquidity   *analysis.LiquidityResult  `json:"-"`
}

// AnalyzeTimeframe runs the full detector battery over one frame and
// derives its summary. The input frame is validated up front; a malformed
// frame is a precondition failure, while a short frame simply yields an
// empty, neutral analysis.
func (e *Engine) AnalyzeTimeframe(tf Timeframe, candles []market.Candle) (*TimeframeAnalysis, error) {
	if err := market.Validate(candles); err != nil {
		return nil, fmt.Errorf("frame %s: %w", tf, err)
	}

	structure := e.structure.Detect(candles)
	displacement := e.displacement.Detect(candles)
	fvgs := e.fvg.Detect(candles)
	blocks := e.orderBlocks.Detect(candles)
	liquidity := e.liquidity.Detect(candles)

	ta := &TimeframeAnalysis{
		Timeframe:         tf,
		Trend:             structure.Trend,
		Bias:              biasFromTrend(structure.Trend),
		ActiveFVGs:        len(fvgs.Active(analysis.Any)),
		ActiveOrderBlocks: len(blocks.Active(analysis.Any)),
		HasDisplacement:   len(displacement.Displacements) > 0,
		LastBreak:         structure.LastBreak(),
		PremiumDiscount:   Discount,
		FVGs:              fvgs,
		OrderBlocks:       blocks,
		Structure:         structure,
		Liquidity:         liquidity,
	}

	if len(candles) > 0 {
		price := candles[len(candles)-1].Close
		ta.NearestBSL = liquidity.Nearest(price, analysis.BuySide)
		ta.NearestSSL = liquidity.Nearest(price, analysis.SellSide)
		if price > equilibrium(candles) {
			ta.PremiumDiscount = Premium
		}
	}
	return ta, nil
}

// biasFromTrend maps the structure trend onto a directional bias; anything
// that is not an established trend reads neutral.
func biasFromTrend(trend analysis.Direction) analysis.Direction {
	switch trend {
	case analysis.Bullish, analysis.Bearish:
		return trend
	default:
		return analysis.Neutral
	}
}

// equilibrium is the midpoint of the frame's full range.
func equilibrium(candles []market.Candle) float64 {
	high := candles[0].High
	low := candles[0].Low
	for _, c := range candles[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return (high + low) / 2
}
