package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ict-analyzer/internal/analysis"
	"ict-analyzer/internal/binance"
	"ict-analyzer/internal/confluence"
	"ict-analyzer/internal/database"
)

type analyzeRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

// runAnalysis fetches the three configured frames for a symbol and runs
// the confluence engine over them.
func (s *Server) runAnalysis(ctx context.Context, symbol string) (*confluence.MTFConfluence, error) {
	intervals := []string{s.params.HTFInterval, s.params.ITFInterval, s.params.LTFInterval}
	frames, err := binance.FetchTimeframes(ctx, s.source, symbol, intervals, s.params.KlineLimit)
	if err != nil {
		return nil, err
	}

	return s.engine.Analyze(
		confluence.Frame{Timeframe: confluence.Timeframe(s.params.HTFInterval), Candles: frames[s.params.HTFInterval]},
		confluence.Frame{Timeframe: confluence.Timeframe(s.params.ITFInterval), Candles: frames[s.params.ITFInterval]},
		confluence.Frame{Timeframe: confluence.Timeframe(s.params.LTFInterval), Candles: frames[s.params.LTFInterval]},
	)
}

// handleAnalyze runs a fresh multi-timeframe analysis and journals the
// decision when a repository is configured.
func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}
	symbol := strings.ToUpper(req.Symbol)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	result, err := s.runAnalysis(ctx, symbol)
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("analysis failed")
		errorResponse(c, http.StatusBadGateway, "analysis failed: "+err.Error())
		return
	}

	var snapshotID string
	if s.repo != nil {
		snapshot := snapshotFromResult(symbol, s.params, result)
		if err := s.repo.SaveSnapshot(ctx, snapshot); err != nil {
			// Journaling is secondary to answering the caller.
			s.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to journal snapshot")
		} else {
			snapshotID = snapshot.ID
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":      symbol,
		"snapshot_id": snapshotID,
		"result":      result,
	})
}

// handleGetLatestAnalysis returns the most recent journaled decision.
func (s *Server) handleGetLatestAnalysis(c *gin.Context) {
	if s.repo == nil {
		errorResponse(c, http.StatusServiceUnavailable, "snapshot journal is not configured")
		return
	}
	symbol := strings.ToUpper(c.Param("symbol"))

	snapshot, err := s.repo.LatestSnapshot(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "no analysis found for "+symbol)
			return
		}
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to load snapshot")
		errorResponse(c, http.StatusInternalServerError, "failed to load analysis")
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// handleGetAnalysisHistory lists journaled decisions, newest first.
func (s *Server) handleGetAnalysisHistory(c *gin.Context) {
	if s.repo == nil {
		errorResponse(c, http.StatusServiceUnavailable, "snapshot journal is not configured")
		return
	}
	symbol := strings.ToUpper(c.Param("symbol"))

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			errorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > 100 {
			parsed = 100
		}
		limit = parsed
	}

	snapshots, err := s.repo.RecentSnapshots(c.Request.Context(), symbol, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to list snapshots")
		errorResponse(c, http.StatusInternalServerError, "failed to load analysis history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"snapshots": snapshots,
	})
}

// handleGetEntryZones runs a fresh analysis and returns the LTF patterns a
// trade could enter from. The direction defaults to the gated trade
// direction, falling back to the HTF bias.
func (s *Server) handleGetEntryZones(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	result, err := s.runAnalysis(ctx, symbol)
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("analysis failed")
		errorResponse(c, http.StatusBadGateway, "analysis failed: "+err.Error())
		return
	}

	dir := analysis.Neutral
	switch strings.ToLower(c.Query("direction")) {
	case "bullish":
		dir = analysis.Bullish
	case "bearish":
		dir = analysis.Bearish
	case "":
		if result.TradeDirection != nil {
			dir = *result.TradeDirection
		} else {
			dir = result.HTFBias
		}
	default:
		errorResponse(c, http.StatusBadRequest, "direction must be bullish or bearish")
		return
	}

	if dir == analysis.Neutral {
		c.JSON(http.StatusOK, gin.H{
			"symbol":  symbol,
			"message": "no directional bias; pass ?direction= to force one",
			"zones":   nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"score":  result.Score,
		"zones":  result.EntryZones(dir),
	})
}

// snapshotFromResult flattens the engine output into the journal row.
func snapshotFromResult(symbol string, params AnalysisParams, result *confluence.MTFConfluence) *database.AnalysisSnapshot {
	snapshot := &database.AnalysisSnapshot{
		Symbol:       symbol,
		HTFInterval:  params.HTFInterval,
		ITFInterval:  params.ITFInterval,
		LTFInterval:  params.LTFInterval,
		HTFBias:      string(result.HTFBias),
		ITFAlignment: result.ITFAlignment,
		LTFTrigger:   result.LTFTrigger,
		Score:        result.Score,
		Reasoning:    result.Reasoning,
	}
	if result.TradeDirection != nil {
		dir := string(*result.TradeDirection)
		snapshot.TradeDirection = &dir
	}
	return snapshot
}
