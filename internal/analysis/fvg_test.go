package analysis

import (
	"math"
	"reflect"
	"testing"

	"ict-analyzer/internal/market"
)

// TestDetectBullishFVG mirrors a clean EURUSD-style imbalance: bar 0 high
// 1.0815, bar 2 low 1.0840, bullish middle candle.
func TestDetectBullishFVG(t *testing.T) {
	detector, err := NewFVGDetector(0.0001, 1.0)
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}

	candles := []market.Candle{
		{OpenTime: 1000, Open: 1.0805, High: 1.0815, Low: 1.0800, Close: 1.0812},
		// Gap creator: bullish displacement body.
		{OpenTime: 2000, Open: 1.0810, High: 1.0838, Low: 1.0808, Close: 1.0815},
		{OpenTime: 3000, Open: 1.0836, High: 1.0852, Low: 1.0840, Close: 1.0850},
		{OpenTime: 4000, Open: 1.0850, High: 1.0860, Low: 1.0830, Close: 1.0855},
		{OpenTime: 5000, Open: 1.0855, High: 1.0865, Low: 1.0850, Close: 1.0862},
	}

	res := detector.Detect(candles)

	if len(res.Gaps) != 1 {
		t.Fatalf("expected 1 FVG, got %d", len(res.Gaps))
	}
	gap := res.Gaps[0]
	if gap.Direction != Bullish {
		t.Errorf("expected bullish FVG, got %s", gap.Direction)
	}
	if gap.Index != 1 {
		t.Errorf("expected FVG recorded at index 1, got %d", gap.Index)
	}
	if math.Abs(gap.Bottom-1.0815) > 1e-9 {
		t.Errorf("expected bottom 1.0815, got %f", gap.Bottom)
	}
	if math.Abs(gap.Top-1.0840) > 1e-9 {
		t.Errorf("expected top 1.0840, got %f", gap.Top)
	}
	if gap.Mitigated {
		t.Error("gap must not start mitigated")
	}
	if !res.Detected[1] {
		t.Error("annotation column must flag index 1")
	}
}

func TestDetectBearishFVG(t *testing.T) {
	detector, _ := NewFVGDetector(0.0001, 1.0)

	candles := []market.Candle{
		{OpenTime: 1000, Open: 1.0850, High: 1.0860, Low: 1.0845, Close: 1.0848},
		// Bearish gap creator.
		{OpenTime: 2000, Open: 1.0848, High: 1.0850, Low: 1.0815, Close: 1.0818},
		{OpenTime: 3000, Open: 1.0818, High: 1.0820, Low: 1.0800, Close: 1.0805},
	}

	res := detector.Detect(candles)

	if len(res.Gaps) != 1 {
		t.Fatalf("expected 1 FVG, got %d", len(res.Gaps))
	}
	gap := res.Gaps[0]
	if gap.Direction != Bearish {
		t.Errorf("expected bearish FVG, got %s", gap.Direction)
	}
	if math.Abs(gap.Top-1.0845) > 1e-9 {
		t.Errorf("expected top 1.0845, got %f", gap.Top)
	}
	if math.Abs(gap.Bottom-1.0820) > 1e-9 {
		t.Errorf("expected bottom 1.0820, got %f", gap.Bottom)
	}
	if gap.Top <= gap.Bottom {
		t.Error("top must exceed bottom regardless of direction")
	}
}

// A gap without a directional middle candle is not an FVG: the
// displacement confirmation is mandatory.
func TestNoFVGWithoutDisplacementBody(t *testing.T) {
	detector, _ := NewFVGDetector(0.0001, 1.0)

	candles := []market.Candle{
		{OpenTime: 1000, Open: 1.0805, High: 1.0815, Low: 1.0800, Close: 1.0812},
		// Doji middle candle: open == close.
		{OpenTime: 2000, Open: 1.0820, High: 1.0838, Low: 1.0808, Close: 1.0820},
		{OpenTime: 3000, Open: 1.0836, High: 1.0852, Low: 1.0840, Close: 1.0850},
	}

	res := detector.Detect(candles)

	if len(res.Gaps) != 0 {
		t.Fatalf("expected no FVG for doji middle candle, got %d", len(res.Gaps))
	}
}

func TestNoFVGBelowMinimumGap(t *testing.T) {
	detector, _ := NewFVGDetector(0.0001, 5.0)

	// Gap of 2 pips against a 5 pip minimum.
	candles := []market.Candle{
		{OpenTime: 1000, Open: 1.0805, High: 1.0815, Low: 1.0800, Close: 1.0812},
		{OpenTime: 2000, Open: 1.0810, High: 1.0820, Low: 1.0808, Close: 1.0818},
		{OpenTime: 3000, Open: 1.0818, High: 1.0830, Low: 1.0817, Close: 1.0828},
	}

	res := detector.Detect(candles)

	if len(res.Gaps) != 0 {
		t.Fatalf("expected no FVG below the minimum gap, got %d", len(res.Gaps))
	}
}

func TestFVGOTESubLevels(t *testing.T) {
	detector, _ := NewFVGDetector(0.0001, 1.0)

	// A 100 pip gap between bar 0 high 1.0800 and bar 2 low 1.0900.
	candles := []market.Candle{
		{OpenTime: 1000, Open: 1.0795, High: 1.0800, Low: 1.0790, Close: 1.0798},
		{OpenTime: 2000, Open: 1.0800, High: 1.0895, Low: 1.0795, Close: 1.0890},
		{OpenTime: 3000, Open: 1.0905, High: 1.0910, Low: 1.0900, Close: 1.0908},
	}

	res := detector.Detect(candles)

	if len(res.Gaps) != 1 {
		t.Fatalf("expected 1 FVG, got %d", len(res.Gaps))
	}
	gap := res.Gaps[0]
	size := gap.Top - gap.Bottom
	if math.Abs(gap.Midpoint-(gap.Bottom+size/2)) > 1e-9 {
		t.Errorf("midpoint mismatch: %f", gap.Midpoint)
	}
	if math.Abs(gap.OTE62-(gap.Bottom+0.382*size)) > 1e-9 {
		t.Errorf("bullish OTE62 must sit 38.2%% above the far edge, got %f", gap.OTE62)
	}
	if math.Abs(gap.OTE79-(gap.Bottom+0.21*size)) > 1e-9 {
		t.Errorf("bullish OTE79 must sit 21%% above the far edge, got %f", gap.OTE79)
	}
	if !(gap.OTE79 < gap.OTE705 && gap.OTE705 < gap.OTE62) {
		t.Error("bullish OTE levels must deepen toward the gap bottom")
	}
}

func TestFVGMitigationFirstTouchWins(t *testing.T) {
	detector, _ := NewFVGDetector(0.0001, 1.0)

	candles := []market.Candle{
		{OpenTime: 1000, Open: 1.0805, High: 1.0815, Low: 1.0800, Close: 1.0812},
		{OpenTime: 2000, Open: 1.0810, High: 1.0838, Low: 1.0808, Close: 1.0835},
		{OpenTime: 3000, Open: 1.0836, High: 1.0852, Low: 1.0840, Close: 1.0850},
		// Bar 3 dips to the gap bottom: first touch.
		{OpenTime: 4000, Open: 1.0850, High: 1.0852, Low: 1.0815, Close: 1.0830},
		// Bar 4 dips deeper; must not move the recorded index.
		{OpenTime: 5000, Open: 1.0830, High: 1.0845, Low: 1.0805, Close: 1.0820},
	}

	res := detector.Detect(candles)

	if len(res.Gaps) != 1 {
		t.Fatalf("expected 1 FVG, got %d", len(res.Gaps))
	}
	gap := res.Gaps[0]
	if !gap.Mitigated {
		t.Fatal("expected gap mitigated by bar 3")
	}
	if gap.MitigationIndex != 3 {
		t.Errorf("first touch wins: expected index 3, got %d", gap.MitigationIndex)
	}
	if len(res.Active(Any)) != 0 {
		t.Error("mitigated gap must not be active")
	}
}

func TestFVGActiveAndNearestQueries(t *testing.T) {
	detector, _ := NewFVGDetector(0.0001, 1.0)

	candles := []market.Candle{
		{OpenTime: 1000, Open: 1.0805, High: 1.0815, Low: 1.0800, Close: 1.0812},
		{OpenTime: 2000, Open: 1.0810, High: 1.0838, Low: 1.0808, Close: 1.0835},
		{OpenTime: 3000, Open: 1.0836, High: 1.0852, Low: 1.0840, Close: 1.0850},
		{OpenTime: 4000, Open: 1.0850, High: 1.0858, Low: 1.0835, Close: 1.0856},
	}

	res := detector.Detect(candles)

	active := res.Active(Bullish)
	if len(active) != 1 {
		t.Fatalf("expected 1 active bullish gap, got %d", len(active))
	}
	if len(res.Active(Bearish)) != 0 {
		t.Error("expected no active bearish gaps")
	}
	nearest := res.Nearest(1.0850, Bullish)
	if nearest == nil || nearest.Index != 1 {
		t.Fatalf("expected nearest gap at index 1, got %+v", nearest)
	}
	if res.Nearest(1.0850, Bearish) != nil {
		t.Error("expected no nearest bearish gap")
	}
}

func TestFVGDetectIsDeterministic(t *testing.T) {
	detector, _ := NewFVGDetector(0.0001, 1.0)

	candles := []market.Candle{
		{OpenTime: 1000, Open: 1.0805, High: 1.0815, Low: 1.0800, Close: 1.0812},
		{OpenTime: 2000, Open: 1.0810, High: 1.0838, Low: 1.0808, Close: 1.0835},
		{OpenTime: 3000, Open: 1.0836, High: 1.0852, Low: 1.0840, Close: 1.0850},
		{OpenTime: 4000, Open: 1.0850, High: 1.0852, Low: 1.0815, Close: 1.0830},
	}

	if !reflect.DeepEqual(detector.Detect(candles), detector.Detect(candles)) {
		t.Error("repeated detection over an unchanged frame must be identical")
	}
}

func TestNewFVGDetectorRejectsBadConfig(t *testing.T) {
	if _, err := NewFVGDetector(0, 1.0); err == nil {
		t.Error("expected error for zero pip size")
	}
	if _, err := NewFVGDetector(0.0001, -1.0); err == nil {
		t.Error("expected error for negative min gap")
	}
}
