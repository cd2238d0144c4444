package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Execution modes.
const (
	ModeLive   = "live"
	ModeDryRun = "dry-run"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel      string
	HTTPPort      string
	ExecutionMode string

	// Exchange
	BybitAPIKey     string
	BybitAPISecret  string
	BybitTestnet    bool
	BybitDemo       bool
	BybitRecvWindow time.Duration
	BybitRateLimit  float64 // requests per second
	Category        string
	AccountType     string
	Quote           string

	// Sizing
	Leverage   int
	RiskPct    float64
	MarginMode string

	// Entry
	EntryExpiration     time.Duration
	EntryTooFarPct      float64
	EntryLimitOffsetPct float64

	// Take-profit / stop-loss
	TPSplits         []float64
	SLPct            float64
	SLMinPct         float64
	SLMaxPct         float64
	SLBufferPct      float64
	SLCandleInterval string
	SLCandleLookback int
	SLRetryAttempts  int
	SLRetryDelay     time.Duration
	OrderWorkers     int

	// Breakeven / trailing
	MoveSLToBEOnTP1     bool
	TrailActivateOnTP   bool
	TrailAfterTPIndex   int
	TrailDistancePct    float64
	BreakevenPnLEpsilon float64

	// Signal admission
	MaxConcurrentTrades int
	MaxTradesPerDay     int
	SignalsPerWindow    int
	SignalWindow        time.Duration
	SignalMaxLag        time.Duration
	ExcludedSymbols     []string

	// Maintenance
	SweepInterval      time.Duration
	HeartbeatInterval  time.Duration
	TradeRetention     time.Duration
	InstrumentCacheTTL time.Duration
	AlertROEThresholds []float64

	// Signal feed
	FeedWSURL          string
	FeedWebhookEnabled bool
	FeedWebhookToken   string

	// WebSocket
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// Circuit breaker
	CircuitBreakerEnabled         bool
	CircuitBreakerCheckInterval   time.Duration
	CircuitBreakerTradeMultiplier float64
	CircuitBreakerMinEquity       float64
	CircuitBreakerHysteresisRatio float64

	// Notifications
	TelegramBotToken string
	TelegramChatID   string

	// State and export
	StateMode    string // "file" or "postgres"
	StateFile    string
	ExportMode   string // "none", "console" or "postgres"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := ReadEnv()

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// ReadEnv reads configuration without validating it. Read-only commands use
// it so they work without exchange credentials or a signal feed.
func ReadEnv() *Config {
	return &Config{
		// Application defaults
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort:      getEnvOrDefault("HTTP_PORT", "8080"),
		ExecutionMode: getEnvOrDefault("EXECUTION_MODE", ModeLive),

		// Exchange defaults
		BybitAPIKey:     os.Getenv("BYBIT_API_KEY"),
		BybitAPISecret:  os.Getenv("BYBIT_API_SECRET"),
		BybitTestnet:    getBoolOrDefault("BYBIT_TESTNET", false),
		BybitDemo:       getBoolOrDefault("BYBIT_DEMO", false),
		BybitRecvWindow: getDurationOrDefault("BYBIT_RECV_WINDOW", 5*time.Second),
		BybitRateLimit:  getFloat64OrDefault("BYBIT_RATE_LIMIT", 10),
		Category:        getEnvOrDefault("CATEGORY", "linear"),
		AccountType:     getEnvOrDefault("ACCOUNT_TYPE", "UNIFIED"),
		Quote:           strings.ToUpper(getEnvOrDefault("QUOTE", "USDT")),

		// Sizing defaults
		Leverage:   getIntOrDefault("LEVERAGE", 10),
		RiskPct:    getFloat64OrDefault("RISK_PCT", 2),
		MarginMode: strings.ToUpper(getEnvOrDefault("MARGIN_MODE", "ISOLATED")),

		// Entry defaults
		EntryExpiration:     getDurationOrDefault("ENTRY_EXPIRATION", 60*time.Minute),
		EntryTooFarPct:      getFloat64OrDefault("ENTRY_TOO_FAR_PCT", 1.0),
		EntryLimitOffsetPct: getFloat64OrDefault("ENTRY_LIMIT_OFFSET_PCT", 0.1),

		// TP/SL defaults
		TPSplits:         getFloatListOrDefault("TP_SPLITS", []float64{15, 25, 25, 25}),
		SLPct:            getFloat64OrDefault("SL_PCT", 5),
		SLMinPct:         getFloat64OrDefault("SL_MIN_PCT", 1.5),
		SLMaxPct:         getFloat64OrDefault("SL_MAX_PCT", 5),
		SLBufferPct:      getFloat64OrDefault("SL_BUFFER_PCT", 0.2),
		SLCandleInterval: getEnvOrDefault("SL_CANDLE_INTERVAL", "60"),
		SLCandleLookback: getIntOrDefault("SL_CANDLE_LOOKBACK", 24),
		SLRetryAttempts:  getIntOrDefault("SL_RETRY_ATTEMPTS", 3),
		SLRetryDelay:     getDurationOrDefault("SL_RETRY_DELAY", 100*time.Millisecond),
		OrderWorkers:     getIntOrDefault("ORDER_WORKERS", 5),

		// Breakeven / trailing defaults
		MoveSLToBEOnTP1:     getBoolOrDefault("MOVE_SL_TO_BE_ON_TP1", true),
		TrailActivateOnTP:   getBoolOrDefault("TRAIL_ACTIVATE_ON_TP", true),
		TrailAfterTPIndex:   getIntOrDefault("TRAIL_AFTER_TP_INDEX", 4),
		TrailDistancePct:    getFloat64OrDefault("TRAIL_DISTANCE_PCT", 1.0),
		BreakevenPnLEpsilon: getFloat64OrDefault("BREAKEVEN_PNL_EPSILON", 1.0),

		// Signal admission defaults
		MaxConcurrentTrades: getIntOrDefault("MAX_CONCURRENT_TRADES", 5),
		MaxTradesPerDay:     getIntOrDefault("MAX_TRADES_PER_DAY", 20),
		SignalsPerWindow:    getIntOrDefault("SIGNALS_PER_WINDOW", 3),
		SignalWindow:        getDurationOrDefault("SIGNAL_WINDOW", 10*time.Minute),
		SignalMaxLag:        getDurationOrDefault("SIGNAL_MAX_LAG", 60*time.Second),
		ExcludedSymbols:     getListOrDefault("EXCLUDED_SYMBOLS", nil),

		// Maintenance defaults
		SweepInterval:      getDurationOrDefault("SWEEP_INTERVAL", 10*time.Second),
		HeartbeatInterval:  getDurationOrDefault("HEARTBEAT_INTERVAL", 5*time.Minute),
		TradeRetention:     getDurationOrDefault("TRADE_RETENTION", 24*time.Hour),
		InstrumentCacheTTL: getDurationOrDefault("INSTRUMENT_CACHE_TTL", 5*time.Minute),
		AlertROEThresholds: getFloatListOrDefault("ALERT_ROE_THRESHOLDS", []float64{-25, -50, -75}),

		// Feed defaults
		FeedWSURL:          os.Getenv("FEED_WS_URL"),
		FeedWebhookEnabled: getBoolOrDefault("FEED_WEBHOOK_ENABLED", false),
		FeedWebhookToken:   os.Getenv("FEED_WEBHOOK_TOKEN"),

		// WebSocket defaults
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 30*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 20*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 3*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 60*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),

		// Circuit breaker defaults
		CircuitBreakerEnabled:         getBoolOrDefault("CIRCUIT_BREAKER_ENABLED", true),
		CircuitBreakerCheckInterval:   getDurationOrDefault("CIRCUIT_BREAKER_CHECK_INTERVAL", time.Minute),
		CircuitBreakerTradeMultiplier: getFloat64OrDefault("CIRCUIT_BREAKER_TRADE_MULTIPLIER", 3.0),
		CircuitBreakerMinEquity:       getFloat64OrDefault("CIRCUIT_BREAKER_MIN_EQUITY", 10.0),
		CircuitBreakerHysteresisRatio: getFloat64OrDefault("CIRCUIT_BREAKER_HYSTERESIS_RATIO", 1.5),

		// Notification defaults
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),

		// State and export defaults
		StateMode:    getEnvOrDefault("STATE_MODE", "file"),
		StateFile:    getEnvOrDefault("STATE_FILE", "state.json"),
		ExportMode:   getEnvOrDefault("EXPORT_MODE", "none"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "signalbot"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "signalbot"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "signalbot"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.BybitAPIKey == "" || c.BybitAPISecret == "" {
		return fmt.Errorf("BYBIT_API_KEY and BYBIT_API_SECRET are required")
	}

	if c.FeedWSURL == "" && !c.FeedWebhookEnabled {
		return fmt.Errorf("a signal feed is required: set FEED_WS_URL or FEED_WEBHOOK_ENABLED=true")
	}

	if c.ExecutionMode != ModeLive && c.ExecutionMode != ModeDryRun {
		return fmt.Errorf("EXECUTION_MODE must be %q or %q, got %q", ModeLive, ModeDryRun, c.ExecutionMode)
	}

	if c.MarginMode != "ISOLATED" && c.MarginMode != "CROSS" {
		return fmt.Errorf("MARGIN_MODE must be ISOLATED or CROSS, got %q", c.MarginMode)
	}

	if c.Leverage < 1 {
		return fmt.Errorf("LEVERAGE must be >= 1, got %d", c.Leverage)
	}

	if c.RiskPct <= 0 || c.RiskPct > 100 {
		return fmt.Errorf("RISK_PCT must be in (0, 100], got %f", c.RiskPct)
	}

	if len(c.TPSplits) == 0 {
		return fmt.Errorf("TP_SPLITS cannot be empty")
	}

	splitSum := 0.0
	for _, s := range c.TPSplits {
		if s <= 0 {
			return fmt.Errorf("TP_SPLITS entries must be positive, got %v", c.TPSplits)
		}
		splitSum += s
	}
	if splitSum > 100 {
		return fmt.Errorf("TP_SPLITS must sum to at most 100, got %f", splitSum)
	}

	if c.SLMinPct <= 0 || c.SLMaxPct < c.SLMinPct {
		return fmt.Errorf("SL_MIN_PCT must be positive and <= SL_MAX_PCT, got %f/%f", c.SLMinPct, c.SLMaxPct)
	}

	if c.SLPct <= 0 {
		return fmt.Errorf("SL_PCT must be positive, got %f", c.SLPct)
	}

	if c.SLRetryAttempts < 1 {
		return fmt.Errorf("SL_RETRY_ATTEMPTS must be >= 1, got %d", c.SLRetryAttempts)
	}

	if c.OrderWorkers < 1 {
		return fmt.Errorf("ORDER_WORKERS must be >= 1, got %d", c.OrderWorkers)
	}

	if c.TrailAfterTPIndex < 1 {
		return fmt.Errorf("TRAIL_AFTER_TP_INDEX must be >= 1, got %d", c.TrailAfterTPIndex)
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}

	if c.StateMode != "file" && c.StateMode != "postgres" {
		return fmt.Errorf("STATE_MODE must be 'file' or 'postgres', got %q", c.StateMode)
	}

	if c.StateMode == "file" && c.StateFile == "" {
		return fmt.Errorf("STATE_FILE cannot be empty when STATE_MODE=file")
	}

	switch c.ExportMode {
	case "none", "console", "postgres":
	default:
		return fmt.Errorf("EXPORT_MODE must be 'none', 'console' or 'postgres', got %q", c.ExportMode)
	}

	return nil
}

// DryRun reports whether exchange writes should be simulated.
func (c *Config) DryRun() bool {
	return c.ExecutionMode == ModeDryRun
}

// PostgresDSN builds the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPass, c.PostgresDB, c.PostgresSSL)
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

// getListOrDefault reads a comma-separated list, trimming blanks.
func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}

	return out
}

func getFloatListOrDefault(key string, defaultValue []float64) []float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []float64
	for _, part := range strings.Split(value, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, f)
	}

	return out
}
