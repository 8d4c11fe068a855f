// Command analyze runs a one-shot multi-timeframe analysis for a symbol
// and prints the result as JSON. Useful for eyeballing the engine against
// live market data without standing up the full service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"ict-analyzer/internal/binance"
	"ict-analyzer/internal/confluence"
)

func main() {
	symbol := flag.String("symbol", "BTCUSDT", "trading pair to analyze")
	htf := flag.String("htf", "4h", "higher timeframe interval")
	itf := flag.String("itf", "1h", "intermediate timeframe interval")
	ltf := flag.String("ltf", "15m", "lower timeframe interval")
	limit := flag.Int("limit", 200, "candles per timeframe")
	baseURL := flag.String("base-url", "https://api.binance.com", "Binance REST base URL")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()

	engine, err := confluence.New(confluence.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}

	client := binance.NewClient(*baseURL, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	frames, err := binance.FetchTimeframes(ctx, client, *symbol, []string{*htf, *itf, *ltf}, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch: %v\n", err)
		os.Exit(1)
	}

	result, err := engine.Analyze(
		confluence.Frame{Timeframe: confluence.Timeframe(*htf), Candles: frames[*htf]},
		confluence.Frame{Timeframe: confluence.Timeframe(*itf), Candles: frames[*itf]},
		confluence.Frame{Timeframe: confluence.Timeframe(*ltf), Candles: frames[*ltf]},
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
