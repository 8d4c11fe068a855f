package analysis

import "ict-analyzer/internal/market"

// swingHighIndexes returns indexes whose high is a strict maximum over the
// symmetric window [i-n, i+n]. Equal-high plateaus produce no swing; those
// levels are instead picked up by equal-level clustering in the liquidity
// detector. Both the structure and liquidity detectors derive their swings
// through this rule so the two stay behaviorally consistent.
func swingHighIndexes(candles []market.Candle, n int) []int {
	var idx []int
	for i := n; i < len(candles)-n; i++ {
		high := candles[i].High
		isHigh := true
		for j := i - n; j <= i+n; j++ {
			if j != i && candles[j].High >= high {
				isHigh = false
				break
			}
		}
		if isHigh {
			idx = append(idx, i)
		}
	}
	return idx
}

// swingLowIndexes is the symmetric rule for lows.
func swingLowIndexes(candles []market.Candle, n int) []int {
	var idx []int
	for i := n; i < len(candles)-n; i++ {
		low := candles[i].Low
		isLow := true
		for j := i - n; j <= i+n; j++ {
			if j != i && candles[j].Low <= low {
				isLow = false
				break
			}
		}
		if isLow {
			idx = append(idx, i)
		}
	}
	return idx
}
