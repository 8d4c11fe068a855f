package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ict-analyzer/internal/market"
)

// Stream maintains rolling candle windows for one symbol across several
// intervals, fed by the combined Binance kline websocket. Every time a
// candle closes, the full window for that interval is handed to the
// callback so the caller can re-run batch analysis; there is no
// incremental detector mode.
type Stream struct {
	mu sync.RWMutex

	baseURL    string
	symbol     string
	intervals  []string
	windowSize int

	conn       *websocket.Conn
	isRunning  bool
	stopChan   chan struct{}
	reconnects int

	windows  map[string][]market.Candle
	onWindow func(interval string, candles []market.Candle)

	logger zerolog.Logger
}

// NewStream creates a kline stream for the symbol and intervals. baseURL
// is the websocket endpoint (wss://stream.binance.com:9443 for
// production). The callback runs on the read loop goroutine.
func NewStream(baseURL, symbol string, intervals []string, windowSize int, onWindow func(string, []market.Candle), logger zerolog.Logger) *Stream {
	return &Stream{
		baseURL:    baseURL,
		symbol:     strings.ToUpper(symbol),
		intervals:  intervals,
		windowSize: windowSize,
		stopChan:   make(chan struct{}),
		windows:    make(map[string][]market.Candle, len(intervals)),
		onWindow:   onWindow,
		logger:     logger.With().Str("component", "kline-stream").Str("symbol", symbol).Logger(),
	}
}

// Seed preloads the rolling window for an interval, typically from a REST
// fetch, so the first closed candle already completes a full frame.
func (s *Stream) Seed(interval string, candles []market.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	window := make([]market.Candle, len(candles))
	copy(window, candles)
	if len(window) > s.windowSize {
		window = window[len(window)-s.windowSize:]
	}
	s.windows[interval] = window
}

// Window returns a copy of the current rolling window for an interval.
func (s *Stream) Window(interval string) []market.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	window := make([]market.Candle, len(s.windows[interval]))
	copy(window, s.windows[interval])
	return window
}

// Start connects and begins feeding the windows. It returns immediately;
// the connection is managed on a background goroutine with reconnects.
func (s *Stream) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	go s.connect()
}

// Stop closes the stream and stops reconnecting.
func (s *Stream) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// streamURL builds the combined-stream endpoint, one kline stream per
// interval.
func (s *Stream) streamURL() string {
	streams := make([]string, len(s.intervals))
	lower := strings.ToLower(s.symbol)
	for i, interval := range s.intervals {
		streams[i] = fmt.Sprintf("%s@kline_%s", lower, interval)
	}
	return fmt.Sprintf("%s/stream?streams=%s", s.baseURL, strings.Join(streams, "/"))
}

func (s *Stream) connect() {
	wsURL := s.streamURL()

	for {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		s.logger.Info().Str("url", wsURL).Msg("connecting")

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("connection failed, retrying in 5s")
			s.mu.Lock()
			s.reconnects++
			s.mu.Unlock()
			select {
			case <-s.stopChan:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.reconnects = 0
		s.mu.Unlock()

		s.logger.Info().Msg("connected")
		s.readLoop(conn)

		s.mu.RLock()
		running = s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		s.logger.Warn().Msg("connection lost, reconnecting in 3s")
		select {
		case <-s.stopChan:
			return
		case <-time.After(3 * time.Second):
		}
	}
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info().Msg("connection closed normally")
			} else {
				s.logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		s.handleMessage(message)
	}
}

// klineEvent is the combined-stream envelope for kline payloads. Binance
// sends prices as strings.
type klineEvent struct {
	Data struct {
		EventType string `json:"e"`
		Kline     struct {
			OpenTime int64   `json:"t"`
			Interval string  `json:"i"`
			Open     float64 `json:"o,string"`
			High     float64 `json:"h,string"`
			Low      float64 `json:"l,string"`
			Close    float64 `json:"c,string"`
			Volume   float64 `json:"v,string"`
			IsClosed bool    `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

func (s *Stream) handleMessage(message []byte) {
	var event klineEvent
	if err := json.Unmarshal(message, &event); err != nil {
		s.logger.Warn().Err(err).Msg("failed to parse stream message")
		return
	}
	if event.Data.EventType != "kline" || !event.Data.Kline.IsClosed {
		return
	}

	k := event.Data.Kline
	candle := market.Candle{
		OpenTime: k.OpenTime,
		Open:     k.Open,
		High:     k.High,
		Low:      k.Low,
		Close:    k.Close,
		Volume:   k.Volume,
	}

	s.mu.Lock()
	window := s.windows[k.Interval]
	// A restarted stream can replay the candle that closed while we were
	// disconnected; replace it instead of appending a duplicate.
	if n := len(window); n > 0 && window[n-1].OpenTime == candle.OpenTime {
		window[n-1] = candle
	} else {
		window = append(window, candle)
	}
	if len(window) > s.windowSize {
		window = window[len(window)-s.windowSize:]
	}
	s.windows[k.Interval] = window

	out := make([]market.Candle, len(window))
	copy(out, window)
	callback := s.onWindow
	s.mu.Unlock()

	if callback != nil {
		callback(k.Interval, out)
	}
}
