package market

import (
	"math"
	"testing"
)

func TestValidateAcceptsWellFormedSeries(t *testing.T) {
	candles := []Candle{
		{OpenTime: 1000, Open: 100, High: 105, Low: 99, Close: 104},
		{OpenTime: 2000, Open: 104, High: 108, Low: 103, Close: 106, Volume: 12.5},
		{OpenTime: 3000, Open: 106, High: 107, Low: 101, Close: 102},
	}

	if err := Validate(candles); err != nil {
		t.Fatalf("expected valid series, got %v", err)
	}
}

func TestValidateRejectsNonIncreasingTimestamps(t *testing.T) {
	candles := []Candle{
		{OpenTime: 2000, Open: 100, High: 105, Low: 99, Close: 104},
		{OpenTime: 2000, Open: 104, High: 108, Low: 103, Close: 106},
	}

	if err := Validate(candles); err == nil {
		t.Fatal("expected error for duplicate timestamps")
	}
}

func TestValidateRejectsNaN(t *testing.T) {
	candles := []Candle{
		{OpenTime: 1000, Open: 100, High: math.NaN(), Low: 99, Close: 104},
	}

	if err := Validate(candles); err == nil {
		t.Fatal("expected error for NaN high")
	}
}

func TestValidateRejectsNonPositivePrices(t *testing.T) {
	zeroLow := []Candle{
		{OpenTime: 1000, Open: 5, High: 5, Low: 0, Close: 5},
	}
	if err := Validate(zeroLow); err == nil {
		t.Fatal("expected error for zero low")
	}

	negative := []Candle{
		{OpenTime: 1000, Open: -2, High: -1, Low: -3, Close: -2},
	}
	if err := Validate(negative); err == nil {
		t.Fatal("expected error for negative prices")
	}
}

func TestValidateRejectsInvertedRange(t *testing.T) {
	candles := []Candle{
		{OpenTime: 1000, Open: 100, High: 99, Low: 100, Close: 100},
	}

	if err := Validate(candles); err == nil {
		t.Fatal("expected error for high below low")
	}
}

func TestValidateRejectsCloseOutsideRange(t *testing.T) {
	candles := []Candle{
		{OpenTime: 1000, Open: 100, High: 105, Low: 99, Close: 110},
	}

	if err := Validate(candles); err == nil {
		t.Fatal("expected error for close above high")
	}
}

func TestCandleBodyHelpers(t *testing.T) {
	c := Candle{Open: 104, High: 108, Low: 100, Close: 101}

	if !c.IsBearish() || c.IsBullish() {
		t.Error("expected bearish candle")
	}
	if c.Body() != 3 {
		t.Errorf("expected body 3, got %f", c.Body())
	}
	if c.Range() != 8 {
		t.Errorf("expected range 8, got %f", c.Range())
	}
	if c.BodyTop() != 104 || c.BodyBottom() != 101 {
		t.Errorf("expected body 101..104, got %f..%f", c.BodyBottom(), c.BodyTop())
	}
}
