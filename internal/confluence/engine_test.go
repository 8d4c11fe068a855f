package confluence

import (
	"strings"
	"testing"

	"ict-analyzer/internal/analysis"
)

// summary builds a hand-shaped per-timeframe result for combine tests.
func summary(tf Timeframe, bias analysis.Direction, displacement bool, brk *analysis.StructureBreak, fvgs, blocks int) *TimeframeAnalysis {
	return &TimeframeAnalysis{
		Timeframe:         tf,
		Trend:             bias,
		Bias:              bias,
		ActiveFVGs:        fvgs,
		ActiveOrderBlocks: blocks,
		HasDisplacement:   displacement,
		LastBreak:         brk,
		PremiumDiscount:   Discount,
	}
}

func bullishBreak() *analysis.StructureBreak {
	return &analysis.StructureBreak{Index: 40, Kind: analysis.BOS, Direction: analysis.Bullish}
}

func TestCombineGatesBullishTrade(t *testing.T) {
	// HTF bias +2.0, ITF aligned +1.5, LTF trigger +2.0, HTF
	// displacement +0.5; no active gaps or blocks.
	htf := summary("4h", analysis.Bullish, true, nil, 0, 0)
	itf := summary("1h", analysis.Bullish, false, nil, 0, 0)
	ltf := summary("15m", analysis.Bullish, true, bullishBreak(), 0, 0)

	res := combine(htf, itf, ltf)

	if res.Score != 6.0 {
		t.Errorf("expected score 6.0, got %.1f", res.Score)
	}
	if !res.ITFAlignment || !res.LTFTrigger {
		t.Errorf("expected alignment and trigger, got %t/%t", res.ITFAlignment, res.LTFTrigger)
	}
	if res.TradeDirection == nil || *res.TradeDirection != analysis.Bullish {
		t.Fatalf("expected bullish trade direction, got %v", res.TradeDirection)
	}
}

func TestCombineGatesBearishTrade(t *testing.T) {
	bearishBreak := &analysis.StructureBreak{Index: 55, Kind: analysis.CHoCH, Direction: analysis.Bearish}
	htf := summary("4h", analysis.Bearish, true, nil, 1, 1)
	itf := summary("1h", analysis.Bearish, false, nil, 0, 0)
	ltf := summary("15m", analysis.Bearish, true, bearishBreak, 2, 1)

	res := combine(htf, itf, ltf)

	if res.Score != 7.0 {
		t.Errorf("expected full score 7.0, got %.1f", res.Score)
	}
	if res.TradeDirection == nil || *res.TradeDirection != analysis.Bearish {
		t.Fatalf("expected bearish trade direction, got %v", res.TradeDirection)
	}
}

// A neutral HTF contributes no bias score and blocks the LTF trigger, so
// no combination of lower-timeframe conditions can produce a trade.
func TestNeutralHTFBlocksTrade(t *testing.T) {
	htf := summary("4h", analysis.Neutral, true, nil, 0, 0)
	itf := summary("1h", analysis.Bullish, true, nil, 0, 0)
	ltf := summary("15m", analysis.Bullish, true, bullishBreak(), 3, 3)

	res := combine(htf, itf, ltf)

	if res.LTFTrigger {
		t.Error("LTF trigger must not fire against a neutral HTF")
	}
	if res.TradeDirection != nil {
		t.Errorf("expected no trade, got %s", *res.TradeDirection)
	}
}

// The gate needs both halves: a score at or above 4.0 without the LTF
// trigger still produces no trade.
func TestScoreAloneDoesNotTrade(t *testing.T) {
	// +2.0 bias, +1.5 alignment, +0.5 displacement, +0.5 gaps = 4.5.
	htf := summary("4h", analysis.Bullish, true, nil, 0, 0)
	itf := summary("1h", analysis.Bullish, false, nil, 0, 0)
	ltf := summary("15m", analysis.Bullish, false, nil, 1, 0)

	res := combine(htf, itf, ltf)

	if res.Score != 4.5 {
		t.Errorf("expected score 4.5, got %.1f", res.Score)
	}
	if res.LTFTrigger {
		t.Error("trigger must not fire without a structure break and displacement")
	}
	if res.TradeDirection != nil {
		t.Errorf("expected no trade without the LTF trigger, got %s", *res.TradeDirection)
	}
}

func TestEachConditionMovesScoreByItsWeight(t *testing.T) {
	base := func() (*TimeframeAnalysis, *TimeframeAnalysis, *TimeframeAnalysis) {
		return summary("4h", analysis.Bullish, true, nil, 1, 1),
			summary("1h", analysis.Bullish, false, nil, 0, 0),
			summary("15m", analysis.Bullish, true, bullishBreak(), 1, 1)
	}

	htf, itf, ltf := base()
	full := combine(htf, itf, ltf).Score
	if full != 7.0 {
		t.Fatalf("expected full score 7.0, got %.1f", full)
	}

	cases := []struct {
		name   string
		mutate func(htf, itf, ltf *TimeframeAnalysis)
		weight float64
	}{
		{"itf misaligned", func(_, itf, _ *TimeframeAnalysis) { itf.Bias = analysis.Bearish }, 1.5},
		{"ltf break missing", func(_, _, ltf *TimeframeAnalysis) { ltf.LastBreak = nil }, 2.0},
		{"ltf displacement missing", func(_, _, ltf *TimeframeAnalysis) { ltf.HasDisplacement = false }, 2.0},
		{"htf displacement missing", func(htf, _, _ *TimeframeAnalysis) { htf.HasDisplacement = false }, 0.5},
		{"no active gaps", func(_, _, ltf *TimeframeAnalysis) { ltf.ActiveFVGs = 0 }, 0.5},
		{"no active blocks", func(_, _, ltf *TimeframeAnalysis) { ltf.ActiveOrderBlocks = 0 }, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			htf, itf, ltf := base()
			tc.mutate(htf, itf, ltf)
			got := combine(htf, itf, ltf).Score
			if want := full - tc.weight; got != want {
				t.Errorf("expected score %.1f, got %.1f", want, got)
			}
		})
	}
}

// Premium/discount placement is reported but never scored.
func TestPremiumDiscountDoesNotMoveScore(t *testing.T) {
	build := func(zone Zone) *MTFConfluence {
		htf := summary("4h", analysis.Bullish, true, nil, 0, 0)
		itf := summary("1h", analysis.Bullish, false, nil, 0, 0)
		ltf := summary("15m", analysis.Bullish, true, bullishBreak(), 1, 1)
		ltf.PremiumDiscount = zone
		return combine(htf, itf, ltf)
	}

	premium := build(Premium)
	discount := build(Discount)

	if premium.Score != discount.Score {
		t.Errorf("zone placement moved the score: %.1f vs %.1f", premium.Score, discount.Score)
	}

	var found bool
	for _, line := range premium.Reasoning {
		if strings.Contains(line, "premium zone") && strings.Contains(line, "not scored") {
			found = true
		}
	}
	if !found {
		t.Error("reasoning must report the LTF zone as unscored context")
	}
}

func TestReasoningCoversEveryCondition(t *testing.T) {
	htf := summary("4h", analysis.Neutral, false, nil, 0, 0)
	itf := summary("1h", analysis.Bearish, false, nil, 0, 0)
	ltf := summary("15m", analysis.Bullish, false, nil, 0, 0)

	res := combine(htf, itf, ltf)

	// Six condition lines plus the zone context line and the gate line.
	if len(res.Reasoning) != 8 {
		t.Fatalf("expected 7 reasoning lines, got %d: %v", len(res.Reasoning), res.Reasoning)
	}
	if !strings.Contains(res.Reasoning[0], "neutral") {
		t.Errorf("first line must state the neutral HTF bias, got %q", res.Reasoning[0])
	}
	last := res.Reasoning[len(res.Reasoning)-1]
	if !strings.Contains(last, "gated") {
		t.Errorf("final line must report the gate, got %q", last)
	}
}

func TestEntryZonesWithoutLTFBundles(t *testing.T) {
	m := &MTFConfluence{}
	zones := m.EntryZones(analysis.Bullish)
	if zones == nil || len(zones.FVGs) != 0 || len(zones.OrderBlocks) != 0 {
		t.Error("missing LTF analysis must yield empty entry zones")
	}

	m.LTF = summary("15m", analysis.Bullish, false, nil, 0, 0)
	zones = m.EntryZones(analysis.Bullish)
	if zones.Direction != analysis.Bullish {
		t.Errorf("expected bullish zones, got %s", zones.Direction)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ATRPeriod = 0
	if _, err := New(cfg); err == nil || !strings.Contains(err.Error(), "displacement") {
		t.Errorf("expected displacement config error, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.MinTouches = 1
	if _, err := New(cfg); err == nil || !strings.Contains(err.Error(), "liquidity") {
		t.Errorf("expected liquidity config error, got %v", err)
	}

	if _, err := New(DefaultConfig()); err != nil {
		t.Errorf("default config must construct, got %v", err)
	}
}
