package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BinanceConfig  BinanceConfig  `json:"binance"`
	RedisConfig    RedisConfig    `json:"redis"`
	DatabaseConfig DatabaseConfig `json:"database"`
	ServerConfig   ServerConfig   `json:"server"`
	AuthConfig     AuthConfig     `json:"auth"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	AnalysisConfig AnalysisConfig `json:"analysis"`
}

type BinanceConfig struct {
	BaseURL      string `json:"base_url"`
	WebsocketURL string `json:"websocket_url"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
	AllowedOrigins string `json:"allowed_origins"` // comma-separated
}

type AuthConfig struct {
	Enabled       bool          `json:"enabled"`
	JWTSecret     string        `json:"jwt_secret"`
	TokenDuration time.Duration `json:"token_duration"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // JSON to stdout vs console writer
}

// AnalysisConfig carries the three frame intervals, the fetch depth and
// every detector threshold the confluence engine accepts.
type AnalysisConfig struct {
	HTFInterval string   `json:"htf_interval"`
	ITFInterval string   `json:"itf_interval"`
	LTFInterval string   `json:"ltf_interval"`
	KlineLimit  int      `json:"kline_limit"`
	LiveSymbols []string `json:"live_symbols"` // symbols re-analyzed on every closed LTF candle

	PipSize             float64 `json:"pip_size"`
	SwingLength         int     `json:"swing_length"`
	ATRPeriod           int     `json:"atr_period"`
	MinATRMultiple      float64 `json:"min_atr_multiple"`
	MinBodyRatio        float64 `json:"min_body_ratio"`
	MinGapPips          float64 `json:"min_gap_pips"`
	MinDisplacementPips float64 `json:"min_displacement_pips"`
	OrderBlockLookback  int     `json:"order_block_lookback"`
	CloseMitigation     bool    `json:"close_mitigation"`
	TolerancePips       float64 `json:"tolerance_pips"`
	MinTouches          int     `json:"min_touches"`
	SweepConfirmation   int     `json:"sweep_confirmation_candles"`
}

// Load reads config.json when present, applies environment overrides on
// top and validates the result.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// No config file is fine; environment and defaults carry it.
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Binance
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	if cfg.BinanceConfig.BaseURL == "" {
		cfg.BinanceConfig.BaseURL = "https://api.binance.com"
	}
	cfg.BinanceConfig.WebsocketURL = getEnvOrDefault("BINANCE_WS_URL", cfg.BinanceConfig.WebsocketURL)
	if cfg.BinanceConfig.WebsocketURL == "" {
		cfg.BinanceConfig.WebsocketURL = "wss://stream.binance.com:9443"
	}

	// Redis
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.RedisConfig.Enabled = v == "true"
	}
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)
	}

	// Database
	if v := os.Getenv("DATABASE_ENABLED"); v != "" {
		cfg.DatabaseConfig.Enabled = v == "true"
	}
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	}
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}

	// Server
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	}
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if v := os.Getenv("SERVER_PRODUCTION"); v != "" {
		cfg.ServerConfig.ProductionMode = v == "true"
	}
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}

	// Auth
	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		cfg.AuthConfig.Enabled = v == "true"
	}
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.AuthConfig.JWTSecret)
	if cfg.AuthConfig.TokenDuration == 0 {
		cfg.AuthConfig.TokenDuration = getEnvDurationOrDefault("JWT_TOKEN_DURATION", 24*time.Hour)
	}

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "info"))
	if v := os.Getenv("LOG_JSON"); v != "" {
		cfg.LoggingConfig.JSONFormat = v == "true"
	}

	// Analysis frames
	cfg.AnalysisConfig.HTFInterval = getEnvOrDefault("ANALYSIS_HTF", defaultString(cfg.AnalysisConfig.HTFInterval, "4h"))
	cfg.AnalysisConfig.ITFInterval = getEnvOrDefault("ANALYSIS_ITF", defaultString(cfg.AnalysisConfig.ITFInterval, "1h"))
	cfg.AnalysisConfig.LTFInterval = getEnvOrDefault("ANALYSIS_LTF", defaultString(cfg.AnalysisConfig.LTFInterval, "15m"))
	if cfg.AnalysisConfig.KlineLimit == 0 {
		cfg.AnalysisConfig.KlineLimit = getEnvIntOrDefault("ANALYSIS_KLINE_LIMIT", 200)
	}
	if v := os.Getenv("ANALYSIS_LIVE_SYMBOLS"); v != "" {
		symbols := make([]string, 0)
		for _, s := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				symbols = append(symbols, strings.ToUpper(trimmed))
			}
		}
		cfg.AnalysisConfig.LiveSymbols = symbols
	}

	// Detector thresholds: zero values fall back to the engine defaults.
	if cfg.AnalysisConfig.PipSize == 0 {
		cfg.AnalysisConfig.PipSize = getEnvFloatOrDefault("ANALYSIS_PIP_SIZE", 0.0001)
	}
	if cfg.AnalysisConfig.SwingLength == 0 {
		cfg.AnalysisConfig.SwingLength = getEnvIntOrDefault("ANALYSIS_SWING_LENGTH", 5)
	}
	if cfg.AnalysisConfig.ATRPeriod == 0 {
		cfg.AnalysisConfig.ATRPeriod = getEnvIntOrDefault("ANALYSIS_ATR_PERIOD", 14)
	}
	if cfg.AnalysisConfig.MinATRMultiple == 0 {
		cfg.AnalysisConfig.MinATRMultiple = getEnvFloatOrDefault("ANALYSIS_MIN_ATR_MULTIPLE", 1.5)
	}
	if cfg.AnalysisConfig.MinBodyRatio == 0 {
		cfg.AnalysisConfig.MinBodyRatio = getEnvFloatOrDefault("ANALYSIS_MIN_BODY_RATIO", 0.6)
	}
	if cfg.AnalysisConfig.MinGapPips == 0 {
		cfg.AnalysisConfig.MinGapPips = getEnvFloatOrDefault("ANALYSIS_MIN_GAP_PIPS", 1.0)
	}
	if cfg.AnalysisConfig.MinDisplacementPips == 0 {
		cfg.AnalysisConfig.MinDisplacementPips = getEnvFloatOrDefault("ANALYSIS_MIN_DISPLACEMENT_PIPS", 10.0)
	}
	if cfg.AnalysisConfig.OrderBlockLookback == 0 {
		cfg.AnalysisConfig.OrderBlockLookback = getEnvIntOrDefault("ANALYSIS_OB_LOOKBACK", 5)
	}
	if v := os.Getenv("ANALYSIS_CLOSE_MITIGATION"); v != "" {
		cfg.AnalysisConfig.CloseMitigation = v == "true"
	}
	if cfg.AnalysisConfig.TolerancePips == 0 {
		cfg.AnalysisConfig.TolerancePips = getEnvFloatOrDefault("ANALYSIS_TOLERANCE_PIPS", 2.0)
	}
	if cfg.AnalysisConfig.MinTouches == 0 {
		cfg.AnalysisConfig.MinTouches = getEnvIntOrDefault("ANALYSIS_MIN_TOUCHES", 2)
	}
	if cfg.AnalysisConfig.SweepConfirmation == 0 {
		cfg.AnalysisConfig.SweepConfirmation = getEnvIntOrDefault("ANALYSIS_SWEEP_CONFIRMATION", 3)
	}
}

// Validate fails fast on settings that would only surface as runtime
// errors deep inside a request.
func (c *Config) Validate() error {
	if c.ServerConfig.Port <= 0 || c.ServerConfig.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.ServerConfig.Port)
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return fmt.Errorf("auth enabled but JWT_SECRET is empty")
	}
	if c.DatabaseConfig.Enabled {
		if c.DatabaseConfig.User == "" || c.DatabaseConfig.Database == "" {
			return fmt.Errorf("database enabled but user or database name is empty")
		}
	}
	if c.AnalysisConfig.KlineLimit < 10 {
		return fmt.Errorf("kline limit %d too small for structure analysis", c.AnalysisConfig.KlineLimit)
	}
	intervals := map[string]string{
		"htf": c.AnalysisConfig.HTFInterval,
		"itf": c.AnalysisConfig.ITFInterval,
		"ltf": c.AnalysisConfig.LTFInterval,
	}
	for name, interval := range intervals {
		if interval == "" {
			return fmt.Errorf("%s interval is empty", name)
		}
	}
	return nil
}

// Origins splits the comma-separated allowed origins list.
func (s ServerConfig) Origins() []string {
	parts := strings.Split(s.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
