package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigError reports an invalid configuration key. The process must not start with one.
//
//nolint:revive // name used across the codebase
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Key, e.Reason)
}

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel  string
	LogFormat string // "json" or "console"
	HTTPPort  string

	// HTTPAdminToken guards mutating API routes. Empty disables them.
	HTTPAdminToken string

	// Polymarket API
	PolymarketWSURL         string
	PolymarketGammaURL      string
	PolymarketCLOBURL       string
	PolymarketAPIKey        string
	PolymarketSecret        string
	PolymarketPassphrase    string
	PolymarketPrivateKey    string
	PolymarketProxyAddress  string
	PolymarketSignatureType int

	// Scan loop
	ScanInterval        time.Duration
	ScanTimeout         time.Duration
	DetectorsEnabled    []string
	DetectorLexiconFile string

	// Detection, aggregation and ranking
	MinConfidence int
	MinProfit     float64
	ArbEpsilon    float64
	AggBoostStep  int
	AggBoostCap   int

	// Risk
	RiskCapital            float64
	RiskMaxExposurePct     float64
	RiskPerMarketCapPct    float64
	RiskMaxOpenPositions   int
	RiskKellyMaxFraction   float64
	RiskMinStake           float64
	RiskDrawdownBreakerPct float64
	RiskStateStore         string // "memory" or "redis"

	// Positions
	PositionStopLossPct        float64
	PositionTakeProfitFraction float64
	PositionMaxHoldDays        int
	PositionMonitorInterval    time.Duration

	// Execution
	ExecutionMode           string // "dry_run" or "live"
	ExecutionWorkers        int
	ExecutionQueueSize      int
	ExecutionMaxRetries     int
	ExecutionInitialBackoff time.Duration
	ExecutionMaxBackoff     time.Duration
	ExecutionBackoffMult    float64

	// Balance guard, live mode only
	BalanceGuardEnabled         bool
	BalanceGuardCheckInterval   time.Duration
	BalanceGuardTradeMultiplier float64
	BalanceGuardMinAbsolute     float64
	BalanceGuardHysteresisRatio float64
	PolygonRPCURL               string

	// Storage
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool
	RedisKey      string

	// Gamma API
	GammaRateLimit   float64
	GammaMarketLimit int
	GammaEventLimit  int
	GammaCacheTTL    time.Duration

	// Price stream
	PriceStreamEnabled      bool
	PriceStreamMaxAge       time.Duration
	WSDialTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
		HTTPPort:  getEnvOrDefault("HTTP_PORT", "8080"),

		HTTPAdminToken: os.Getenv("HTTP_ADMIN_TOKEN"),

		PolymarketWSURL:         getEnvOrDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		PolymarketGammaURL:      getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketCLOBURL:       getEnvOrDefault("POLYMARKET_CLOB_API_URL", "https://clob.polymarket.com"),
		PolymarketAPIKey:        os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:        os.Getenv("POLYMARKET_SECRET"),
		PolymarketPassphrase:    os.Getenv("POLYMARKET_PASSPHRASE"),
		PolymarketPrivateKey:    os.Getenv("POLYMARKET_PRIVATE_KEY"),
		PolymarketProxyAddress:  os.Getenv("POLYMARKET_PROXY_ADDRESS"),
		PolymarketSignatureType: getIntOrDefault("POLYMARKET_SIGNATURE_TYPE", 0),

		ScanInterval:        getDurationOrDefault("SCAN_INTERVAL", 60*time.Second),
		ScanTimeout:         getDurationOrDefault("SCAN_TIMEOUT", 30*time.Second),
		DetectorsEnabled:    getListOrDefault("DETECTORS_ENABLED", nil),
		DetectorLexiconFile: os.Getenv("DETECTOR_LEXICON_FILE"),

		MinConfidence: getIntOrDefault("MIN_CONFIDENCE", 55),
		MinProfit:     getFloat64OrDefault("MIN_PROFIT", 2.0),
		ArbEpsilon:    getFloat64OrDefault("ARB_EPSILON", 0.02),
		AggBoostStep:  getIntOrDefault("AGG_BOOST_STEP", 5),
		AggBoostCap:   getIntOrDefault("AGG_BOOST_CAP", 95),

		RiskCapital:            getFloat64OrDefault("RISK_CAPITAL", 1000),
		RiskMaxExposurePct:     getFloat64OrDefault("RISK_MAX_EXPOSURE_PCT", 0.80),
		RiskPerMarketCapPct:    getFloat64OrDefault("RISK_PER_MARKET_CAP_PCT", 0.20),
		RiskMaxOpenPositions:   getIntOrDefault("RISK_MAX_OPEN_POSITIONS", 10),
		RiskKellyMaxFraction:   getFloat64OrDefault("RISK_KELLY_MAX_FRACTION", 0.10),
		RiskMinStake:           getFloat64OrDefault("RISK_MIN_STAKE", 1.0),
		RiskDrawdownBreakerPct: getFloat64OrDefault("RISK_DRAWDOWN_BREAKER_PCT", 0.25),
		RiskStateStore:         getEnvOrDefault("RISK_STATE_STORE", "memory"),

		PositionStopLossPct:        getFloat64OrDefault("POSITION_STOP_LOSS_PCT", 0.30),
		PositionTakeProfitFraction: getFloat64OrDefault("POSITION_TAKE_PROFIT_FRACTION", 0.50),
		PositionMaxHoldDays:        getIntOrDefault("POSITION_MAX_HOLD_DAYS", 14),
		PositionMonitorInterval:    getDurationOrDefault("POSITION_MONITOR_INTERVAL", time.Minute),

		ExecutionMode:           getEnvOrDefault("EXECUTION_MODE", "dry_run"),
		ExecutionWorkers:        getIntOrDefault("EXECUTION_WORKERS", 4),
		ExecutionQueueSize:      getIntOrDefault("EXECUTION_QUEUE_SIZE", 64),
		ExecutionMaxRetries:     getIntOrDefault("EXECUTION_MAX_RETRIES", 3),
		ExecutionInitialBackoff: getDurationOrDefault("EXECUTION_INITIAL_BACKOFF", 500*time.Millisecond),
		ExecutionMaxBackoff:     getDurationOrDefault("EXECUTION_MAX_BACKOFF", 10*time.Second),
		ExecutionBackoffMult:    getFloat64OrDefault("EXECUTION_BACKOFF_MULTIPLIER", 2.0),

		BalanceGuardEnabled:         getBoolOrDefault("BALANCE_GUARD_ENABLED", true),
		BalanceGuardCheckInterval:   getDurationOrDefault("BALANCE_GUARD_CHECK_INTERVAL", 30*time.Second),
		BalanceGuardTradeMultiplier: getFloat64OrDefault("BALANCE_GUARD_TRADE_MULTIPLIER", 3.0),
		BalanceGuardMinAbsolute:     getFloat64OrDefault("BALANCE_GUARD_MIN_ABSOLUTE", 5.0),
		BalanceGuardHysteresisRatio: getFloat64OrDefault("BALANCE_GUARD_HYSTERESIS_RATIO", 1.5),
		PolygonRPCURL:               getEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),

		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "polymarket"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "polymarket123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "polymarket_bot"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getIntOrDefault("REDIS_DB", 0),
		RedisTLS:      getBoolOrDefault("REDIS_TLS", false),
		RedisKey:      getEnvOrDefault("REDIS_BREAKER_KEY", "polymarket:risk:breaker"),

		GammaRateLimit:   getFloat64OrDefault("GAMMA_RATE_LIMIT", 10),
		GammaMarketLimit: getIntOrDefault("GAMMA_MARKET_LIMIT", 500),
		GammaEventLimit:  getIntOrDefault("GAMMA_EVENT_LIMIT", 200),
		GammaCacheTTL:    getDurationOrDefault("GAMMA_CACHE_TTL", 20*time.Second),

		PriceStreamEnabled:      getBoolOrDefault("PRICE_STREAM_ENABLED", false),
		PriceStreamMaxAge:       getDurationOrDefault("PRICE_STREAM_MAX_AGE", time.Minute),
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid. It returns a *ConfigError.
func (c *Config) Validate() error {
	checks := []struct {
		ok     bool
		key    string
		reason string
	}{
		{c.HTTPPort != "", "HTTP_PORT", "cannot be empty"},
		{oneOf(c.LogFormat, "json", "console"), "LOG_FORMAT", "must be 'json' or 'console'"},
		{c.PolymarketGammaURL != "", "POLYMARKET_GAMMA_API_URL", "cannot be empty"},
		{c.ScanInterval > 0, "SCAN_INTERVAL", "must be positive"},
		{c.ScanTimeout > 0, "SCAN_TIMEOUT", "must be positive"},
		{c.PositionMonitorInterval > 0, "POSITION_MONITOR_INTERVAL", "must be positive"},

		{c.MinConfidence >= 0 && c.MinConfidence <= 100, "MIN_CONFIDENCE", "must be within 0-100"},
		{c.MinProfit >= 0, "MIN_PROFIT", "cannot be negative"},
		{c.ArbEpsilon >= 0 && c.ArbEpsilon < 1, "ARB_EPSILON", "must be within [0,1)"},
		{c.AggBoostStep >= 0, "AGG_BOOST_STEP", "cannot be negative"},
		{c.AggBoostCap >= 0 && c.AggBoostCap <= 100, "AGG_BOOST_CAP", "must be within 0-100"},

		{c.RiskCapital > 0, "RISK_CAPITAL", "must be positive"},
		{inUnit(c.RiskMaxExposurePct), "RISK_MAX_EXPOSURE_PCT", "must be within (0,1]"},
		{inUnit(c.RiskPerMarketCapPct), "RISK_PER_MARKET_CAP_PCT", "must be within (0,1]"},
		{c.RiskMaxOpenPositions > 0, "RISK_MAX_OPEN_POSITIONS", "must be positive"},
		{inUnit(c.RiskKellyMaxFraction), "RISK_KELLY_MAX_FRACTION", "must be within (0,1]"},
		{c.RiskMinStake >= 0, "RISK_MIN_STAKE", "cannot be negative"},
		{inUnit(c.RiskDrawdownBreakerPct), "RISK_DRAWDOWN_BREAKER_PCT", "must be within (0,1]"},
		{oneOf(c.RiskStateStore, "memory", "redis"), "RISK_STATE_STORE", "must be 'memory' or 'redis'"},

		{c.PositionStopLossPct > 0 && c.PositionStopLossPct < 1, "POSITION_STOP_LOSS_PCT", "must be within (0,1)"},
		{inUnit(c.PositionTakeProfitFraction), "POSITION_TAKE_PROFIT_FRACTION", "must be within (0,1]"},
		{c.PositionMaxHoldDays > 0, "POSITION_MAX_HOLD_DAYS", "must be positive"},

		{oneOf(c.ExecutionMode, "dry_run", "live"), "EXECUTION_MODE", "must be 'dry_run' or 'live'"},
		{c.ExecutionWorkers > 0, "EXECUTION_WORKERS", "must be positive"},
		{c.ExecutionQueueSize > 0, "EXECUTION_QUEUE_SIZE", "must be positive"},
		{c.ExecutionMaxRetries >= 0, "EXECUTION_MAX_RETRIES", "cannot be negative"},
		{c.ExecutionInitialBackoff > 0, "EXECUTION_INITIAL_BACKOFF", "must be positive"},
		{c.ExecutionMaxBackoff >= c.ExecutionInitialBackoff, "EXECUTION_MAX_BACKOFF", "must not be below the initial backoff"},
		{c.ExecutionBackoffMult >= 1, "EXECUTION_BACKOFF_MULTIPLIER", "must be at least 1"},

		{oneOf(c.StorageMode, "console", "postgres"), "STORAGE_MODE", "must be 'console' or 'postgres'"},

		{c.GammaRateLimit > 0, "GAMMA_RATE_LIMIT", "must be positive"},
		{c.GammaMarketLimit >= 0, "GAMMA_MARKET_LIMIT", "cannot be negative"},
		{c.GammaEventLimit >= 0, "GAMMA_EVENT_LIMIT", "cannot be negative"},
		{c.GammaCacheTTL >= 0, "GAMMA_CACHE_TTL", "cannot be negative"},
		{!c.PriceStreamEnabled || c.PolymarketWSURL != "", "POLYMARKET_WS_URL", "required when the price stream is enabled"},
	}

	for _, chk := range checks {
		if !chk.ok {
			return &ConfigError{Key: chk.key, Reason: chk.reason}
		}
	}

	if c.ExecutionMode == "live" {
		for key, v := range map[string]string{
			"POLYMARKET_API_KEY":     c.PolymarketAPIKey,
			"POLYMARKET_SECRET":      c.PolymarketSecret,
			"POLYMARKET_PASSPHRASE":  c.PolymarketPassphrase,
			"POLYMARKET_PRIVATE_KEY": c.PolymarketPrivateKey,
		} {
			if v == "" {
				return &ConfigError{Key: key, Reason: "required in live mode"}
			}
		}

		if c.BalanceGuardEnabled {
			guard := []struct {
				ok     bool
				key    string
				reason string
			}{
				{c.PolygonRPCURL != "", "POLYGON_RPC_URL", "required when the balance guard is enabled"},
				{c.BalanceGuardCheckInterval > 0, "BALANCE_GUARD_CHECK_INTERVAL", "must be positive"},
				{c.BalanceGuardTradeMultiplier > 0, "BALANCE_GUARD_TRADE_MULTIPLIER", "must be positive"},
				{c.BalanceGuardMinAbsolute > 0, "BALANCE_GUARD_MIN_ABSOLUTE", "must be positive"},
				{c.BalanceGuardHysteresisRatio >= 1, "BALANCE_GUARD_HYSTERESIS_RATIO", "must be at least 1"},
			}
			for _, chk := range guard {
				if !chk.ok {
					return &ConfigError{Key: chk.key, Reason: chk.reason}
				}
			}
		}
	}

	return nil
}

// MaxHold is the position holding limit.
func (c *Config) MaxHold() time.Duration {
	return time.Duration(c.PositionMaxHoldDays) * 24 * time.Hour
}

func inUnit(v float64) bool {
	return v > 0 && v <= 1
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
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

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return b
}

// getListOrDefault splits a comma-separated value, dropping blanks.
func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
