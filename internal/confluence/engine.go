package confluence

import (
	"fmt"

	"ict-analyzer/internal/analysis"
)

// Config carries every detector threshold explicitly; nothing reads
// ambient globals. The zero value is not usable; start from
// DefaultConfig and override.
type Config struct {
	PipSize float64 `json:"pip_size"`

	SwingLength int `json:"swing_length"`

	ATRPeriod      int     `json:"atr_period"`
	MinATRMultiple float64 `json:"min_atr_multiple"`
	MinBodyRatio   float64 `json:"min_body_ratio"`

	MinGapPips float64 `json:"min_gap_pips"`

	MinDisplacementPips float64 `json:"min_displacement_pips"`
	OrderBlockLookback  int     `json:"order_block_lookback"`
	CloseMitigation     bool    `json:"close_mitigation"`

	TolerancePips     float64 `json:"tolerance_pips"`
	MinTouches        int     `json:"min_touches"`
	SweepConfirmation int     `json:"sweep_confirmation_candles"`
}

// DefaultConfig returns the standard detector parameters for a 4-decimal
// pip instrument.
func DefaultConfig() Config {
	return Config{
		PipSize:             0.0001,
		SwingLength:         5,
		ATRPeriod:           14,
		MinATRMultiple:      1.5,
		MinBodyRatio:        0.6,
		MinGapPips:          1.0,
		MinDisplacementPips: 10.0,
		OrderBlockLookback:  5,
		CloseMitigation:     false,
		TolerancePips:       2.0,
		MinTouches:          2,
		SweepConfirmation:   3,
	}
}

// Engine composes the detector battery over three independently supplied
// timeframes and reduces them to one scored, gated decision. The engine
// holds configuration only; Analyze allocates all working state per call.
type Engine struct {
	cfg          Config
	displacement *analysis.DisplacementDetector
	fvg          *analysis.FVGDetector
	orderBlocks  *analysis.OrderBlockDetector
	structure    *analysis.StructureAnalyzer
	liquidity    *analysis.LiquidityDetector
}

// New constructs every detector up front so malformed configuration
// surfaces here rather than mid-analysis.
func New(cfg Config) (*Engine, error) {
	displacement, err := analysis.NewDisplacementDetector(cfg.ATRPeriod, cfg.MinATRMultiple, cfg.MinBodyRatio)
	if err != nil {
		return nil, fmt.Errorf("displacement detector: %w", err)
	}
	fvg, err := analysis.NewFVGDetector(cfg.PipSize, cfg.MinGapPips)
	if err != nil {
		return nil, fmt.Errorf("fvg detector: %w", err)
	}
	blocks, err := analysis.NewOrderBlockDetector(cfg.PipSize, cfg.MinDisplacementPips, cfg.OrderBlockLookback, cfg.CloseMitigation)
	if err != nil {
		return nil, fmt.Errorf("order block detector: %w", err)
	}
	structure, err := analysis.NewStructureAnalyzer(cfg.SwingLength)
	if err != nil {
		return nil, fmt.Errorf("structure analyzer: %w", err)
	}
	liquidity, err := analysis.NewLiquidityDetector(cfg.PipSize, cfg.SwingLength, cfg.TolerancePips, cfg.MinTouches, cfg.SweepConfirmation)
	if err != nil {
		return nil, fmt.Errorf("liquidity detector: %w", err)
	}
	return &Engine{
		cfg:          cfg,
		displacement: displacement,
		fvg:          fvg,
		orderBlocks:  blocks,
		structure:    structure,
		liquidity:    liquidity,
	}, nil
}

// Scoring constants. The weights and the 4.0 gate are an intentional,
// tuned heuristic; they are preserved exactly rather than derived.
const (
	scoreHTFBias         = 2.0
	scoreITFAlignment    = 1.5
	scoreLTFTrigger      = 2.0
	scoreHTFDisplacement = 0.5
	scoreLTFActiveFVG    = 0.5
	scoreLTFActiveOB     = 0.5
	gateScore            = 4.0
)

// MTFConfluence is the aggregated decision. Reasoning is a first-class
// output: one ordered, human-readable line per evaluated condition,
// preserved verbatim for audit.
type MTFConfluence struct {
	HTFBias        analysis.Direction  `json:"htf_bias"`
	ITFAlignment   bool                `json:"itf_alignment"`
	LTFTrigger     bool                `json:"ltf_trigger"`
	Score          float64             `json:"confluence_score"`
	TradeDirection *analysis.Direction `json:"trade_direction"`
	Reasoning      []string            `json:"reasoning"`

	HTF *TimeframeAnalysis `json:"htf"`
	ITF *TimeframeAnalysis `json:"itf"`
	LTF *TimeframeAnalysis `json:"ltf"`
}

// Analyze runs the battery on each frame independently and combines the
// three summaries. Frames share no state, so an error on any frame aborts
// the whole call without partial results.
func (e *Engine) Analyze(htf, itf, ltf Frame) (*MTFConfluence, error) {
	h, err := e.AnalyzeTimeframe(htf.Timeframe, htf.Candles)
	if err != nil {
		return nil, fmt.Errorf("htf: %w", err)
	}
	i, err := e.AnalyzeTimeframe(itf.Timeframe, itf.Candles)
	if err != nil {
		return nil, fmt.Errorf("itf: %w", err)
	}
	l, err := e.AnalyzeTimeframe(ltf.Timeframe, ltf.Candles)
	if err != nil {
		return nil, fmt.Errorf("ltf: %w", err)
	}
	return combine(h, i, l), nil
}

// combine applies the additive scoring and the hard gate. Premium/discount
// placement is reported in the reasoning only: it never moves the score
// or the gate. That asymmetry is intentional, not an oversight.
func combine(htf, itf, ltf *TimeframeAnalysis) *MTFConfluence {
	res := &MTFConfluence{
		HTFBias:   htf.Bias,
		Reasoning: make([]string, 0, 8),
		HTF:       htf,
		ITF:       itf,
		LTF:       ltf,
	}

	if htf.Bias != analysis.Neutral {
		res.Score += scoreHTFBias
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"HTF %s bias is %s in the %s zone: +%.1f",
			htf.Timeframe, htf.Bias, htf.PremiumDiscount, scoreHTFBias))
	} else {
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"HTF %s bias is neutral in the %s zone: no directional score",
			htf.Timeframe, htf.PremiumDiscount))
	}

	res.ITFAlignment = itf.Bias == htf.Bias
	if res.ITFAlignment {
		res.Score += scoreITFAlignment
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"ITF %s bias %s aligns with HTF: +%.1f",
			itf.Timeframe, itf.Bias, scoreITFAlignment))
	} else {
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"ITF %s bias %s does not align with HTF %s",
			itf.Timeframe, itf.Bias, htf.Bias))
	}

	res.LTFTrigger = ltf.LastBreak != nil &&
		ltf.Bias == htf.Bias &&
		htf.Bias != analysis.Neutral &&
		ltf.HasDisplacement
	if res.LTFTrigger {
		res.Score += scoreLTFTrigger
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"LTF %s trigger: %s break with aligned bias and displacement: +%.1f",
			ltf.Timeframe, ltf.LastBreak.Kind, scoreLTFTrigger))
	} else {
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"LTF %s trigger not met (break present: %t, bias aligned: %t, displacement: %t)",
			ltf.Timeframe, ltf.LastBreak != nil, ltf.Bias == htf.Bias, ltf.HasDisplacement))
	}

	if htf.HasDisplacement {
		res.Score += scoreHTFDisplacement
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"HTF displacement present: +%.1f", scoreHTFDisplacement))
	} else {
		res.Reasoning = append(res.Reasoning, "no HTF displacement")
	}

	if ltf.ActiveFVGs > 0 {
		res.Score += scoreLTFActiveFVG
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"LTF has %d active fair value gap(s): +%.1f", ltf.ActiveFVGs, scoreLTFActiveFVG))
	} else {
		res.Reasoning = append(res.Reasoning, "no active LTF fair value gaps")
	}

	if ltf.ActiveOrderBlocks > 0 {
		res.Score += scoreLTFActiveOB
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"LTF has %d active order block(s): +%.1f", ltf.ActiveOrderBlocks, scoreLTFActiveOB))
	} else {
		res.Reasoning = append(res.Reasoning, "no active LTF order blocks")
	}

	res.Reasoning = append(res.Reasoning, fmt.Sprintf(
		"LTF trading in the %s zone (context only, not scored)", ltf.PremiumDiscount))

	if res.Score >= gateScore && res.LTFTrigger {
		dir := htf.Bias
		res.TradeDirection = &dir
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"score %.1f >= %.1f with LTF trigger: trade direction %s",
			res.Score, gateScore, dir))
	} else {
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"gated: score %.1f (need %.1f) with LTF trigger %t",
			res.Score, gateScore, res.LTFTrigger))
	}
	return res
}

// EntryZones collects the active patterns a trade in the given direction
// could enter from on the trigger timeframe.
type EntryZones struct {
	Direction   analysis.Direction      `json:"direction"`
	FVGs        []analysis.FairValueGap `json:"fvgs"`
	OrderBlocks []analysis.OrderBlock   `json:"order_blocks"`
}

// EntryZones returns the LTF frame's active gaps (each carrying its OTE
// sub-levels) and order blocks for the requested bias.
func (m *MTFConfluence) EntryZones(dir analysis.Direction) *EntryZones {
	zones := &EntryZones{Direction: dir}
	if m.LTF == nil {
		return zones
	}
	if m.LTF.FVGs != nil {
		zones.FVGs = m.LTF.FVGs.Active(dir)
	}
	if m.LTF.OrderBlocks != nil {
		zones.OrderBlocks = m.LTF.OrderBlocks.Active(dir)
	}
	return zones
}
