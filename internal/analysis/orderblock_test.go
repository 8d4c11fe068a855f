package analysis

import (
	"math"
	"reflect"
	"testing"

	"ict-analyzer/internal/market"
)

func TestDetectBullishOrderBlock(t *testing.T) {
	detector, err := NewOrderBlockDetector(0.0001, 10.0, 5, false)
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}

	candles := []market.Candle{
		// Bar 0: the last bearish candle before the move.
		{OpenTime: 1000, Open: 1.0820, High: 1.0825, Low: 1.0810, Close: 1.0812},
		// Bar 1: bullish displacement bar, 20 pip range.
		{OpenTime: 2000, Open: 1.0812, High: 1.0832, Low: 1.0812, Close: 1.0830},
	}

	res := detector.Detect(candles)

	if len(res.Blocks) != 1 {
		t.Fatalf("expected 1 order block, got %d", len(res.Blocks))
	}
	block := res.Blocks[0]
	if block.Direction != Bullish {
		t.Errorf("expected bullish block, got %s", block.Direction)
	}
	if block.Index != 0 {
		t.Errorf("expected block at index 0, got %d", block.Index)
	}
	if math.Abs(block.BodyTop-1.0820) > 1e-9 || math.Abs(block.BodyBottom-1.0812) > 1e-9 {
		t.Errorf("expected body 1.0812..1.0820, got %f..%f", block.BodyBottom, block.BodyTop)
	}
	if math.Abs(block.High-1.0825) > 1e-9 || math.Abs(block.Low-1.0810) > 1e-9 {
		t.Errorf("expected full range 1.0810..1.0825, got %f..%f", block.Low, block.High)
	}
	if block.BodyBottom > block.BodyTop {
		t.Error("body bottom must not exceed body top")
	}
	if block.Mitigated {
		t.Error("block must not start mitigated")
	}
}

func TestDetectBearishOrderBlockWithinLookback(t *testing.T) {
	detector, _ := NewOrderBlockDetector(0.0001, 10.0, 3, false)

	candles := []market.Candle{
		// Bar 0: bullish candle, but outside the 3 bar lookback of bar 4.
		{OpenTime: 1000, Open: 1.0840, High: 1.0850, Low: 1.0838, Close: 1.0848},
		// Bar 1: the nearest bullish candle inside the lookback.
		{OpenTime: 2000, Open: 1.0846, High: 1.0852, Low: 1.0844, Close: 1.0851},
		// Bars 2-3: bearish drift, too small to displace.
		{OpenTime: 3000, Open: 1.0852, High: 1.0853, Low: 1.0848, Close: 1.0849},
		{OpenTime: 4000, Open: 1.0849, High: 1.0850, Low: 1.0845, Close: 1.0846},
		// Bar 4: bearish displacement, 20 pip range.
		{OpenTime: 5000, Open: 1.0846, High: 1.0846, Low: 1.0826, Close: 1.0828},
	}

	res := detector.Detect(candles)

	if len(res.Blocks) != 1 {
		t.Fatalf("expected 1 order block, got %d", len(res.Blocks))
	}
	block := res.Blocks[0]
	if block.Direction != Bearish {
		t.Errorf("expected bearish block, got %s", block.Direction)
	}
	if block.Index != 1 {
		t.Errorf("expected nearest opposite candle at index 1, got %d", block.Index)
	}
}

func TestOrderBlockMitigationByWick(t *testing.T) {
	detector, _ := NewOrderBlockDetector(0.0001, 10.0, 5, false)

	candles := []market.Candle{
		{OpenTime: 1000, Open: 1.0820, High: 1.0825, Low: 1.0810, Close: 1.0812},
		{OpenTime: 2000, Open: 1.0812, High: 1.0832, Low: 1.0812, Close: 1.0830},
		// Wick trades through the body bottom (1.0812) without closing there.
		{OpenTime: 3000, Open: 1.0830, High: 1.0834, Low: 1.0811, Close: 1.0829},
	}

	res := detector.Detect(candles)

	block := res.Blocks[0]
	if !block.Mitigated {
		t.Fatal("wick through the body bottom must mitigate the block")
	}
	if block.MitigationIndex != 2 {
		t.Errorf("expected mitigation at index 2, got %d", block.MitigationIndex)
	}
	if len(res.Active(Bullish)) != 0 {
		t.Error("mitigated block must not be active")
	}
}

func TestOrderBlockCloseMitigationIgnoresWick(t *testing.T) {
	detector, _ := NewOrderBlockDetector(0.0001, 10.0, 5, true)

	candles := []market.Candle{
		{OpenTime: 1000, Open: 1.0820, High: 1.0825, Low: 1.0810, Close: 1.0812},
		{OpenTime: 2000, Open: 1.0812, High: 1.0832, Low: 1.0812, Close: 1.0830},
		// Same wick probe, but the close holds above the body bottom.
		{OpenTime: 3000, Open: 1.0830, High: 1.0834, Low: 1.0811, Close: 1.0829},
	}

	res := detector.Detect(candles)

	if res.Blocks[0].Mitigated {
		t.Error("close mitigation must ignore a wick probe")
	}

	// A close through the body bottom does mitigate.
	candles = append(candles, market.Candle{
		OpenTime: 4000, Open: 1.0829, High: 1.0830, Low: 1.0805, Close: 1.0808,
	})
	res = detector.Detect(candles)
	block := res.Blocks[0]
	if !block.Mitigated || block.MitigationIndex != 3 {
		t.Errorf("expected close mitigation at index 3, got %+v", block)
	}
}

func TestOrderBlockMitigationIsMonotonic(t *testing.T) {
	detector, _ := NewOrderBlockDetector(0.0001, 10.0, 5, false)

	candles := []market.Candle{
		{OpenTime: 1000, Open: 1.0820, High: 1.0825, Low: 1.0810, Close: 1.0812},
		{OpenTime: 2000, Open: 1.0812, High: 1.0832, Low: 1.0812, Close: 1.0830},
		{OpenTime: 3000, Open: 1.0830, High: 1.0834, Low: 1.0811, Close: 1.0829},
	}
	mitigatedAt := detector.Detect(candles).Blocks[0].MitigationIndex

	// Price rallying away afterwards must not clear the flag.
	candles = append(candles,
		market.Candle{OpenTime: 4000, Open: 1.0829, High: 1.0860, Low: 1.0828, Close: 1.0858},
		market.Candle{OpenTime: 5000, Open: 1.0858, High: 1.0880, Low: 1.0856, Close: 1.0878},
	)
	block := detector.Detect(candles).Blocks[0]
	if !block.Mitigated {
		t.Fatal("mitigation must never revert")
	}
	if block.MitigationIndex != mitigatedAt {
		t.Errorf("mitigation index moved from %d to %d", mitigatedAt, block.MitigationIndex)
	}
}

func TestOrderBlockNoOppositeCandleInLookback(t *testing.T) {
	detector, _ := NewOrderBlockDetector(0.0001, 10.0, 2, false)

	candles := []market.Candle{
		{OpenTime: 1000, Open: 1.0810, High: 1.0816, Low: 1.0808, Close: 1.0814},
		{OpenTime: 2000, Open: 1.0814, High: 1.0820, Low: 1.0812, Close: 1.0818},
		// Bullish displacement with only bullish candles behind it.
		{OpenTime: 3000, Open: 1.0818, High: 1.0840, Low: 1.0818, Close: 1.0838},
	}

	res := detector.Detect(candles)

	if len(res.Blocks) != 0 {
		t.Errorf("expected no block without an opposite candle, got %d", len(res.Blocks))
	}
}

func TestOrderBlockDetectIsDeterministic(t *testing.T) {
	detector, _ := NewOrderBlockDetector(0.0001, 10.0, 5, false)

	candles := []market.Candle{
		{OpenTime: 1000, Open: 1.0820, High: 1.0825, Low: 1.0810, Close: 1.0812},
		{OpenTime: 2000, Open: 1.0812, High: 1.0832, Low: 1.0812, Close: 1.0830},
		{OpenTime: 3000, Open: 1.0830, High: 1.0840, Low: 1.0828, Close: 1.0838},
		{OpenTime: 4000, Open: 1.0838, High: 1.0839, Low: 1.0814, Close: 1.0816},
	}

	if !reflect.DeepEqual(detector.Detect(candles), detector.Detect(candles)) {
		t.Error("repeated detection over an unchanged frame must be identical")
	}
}

func TestNewOrderBlockDetectorRejectsBadConfig(t *testing.T) {
	if _, err := NewOrderBlockDetector(0, 10, 5, false); err == nil {
		t.Error("expected error for zero pip size")
	}
	if _, err := NewOrderBlockDetector(0.0001, 0, 5, false); err == nil {
		t.Error("expected error for zero displacement threshold")
	}
	if _, err := NewOrderBlockDetector(0.0001, 10, 0, false); err == nil {
		t.Error("expected error for zero lookback")
	}
}
