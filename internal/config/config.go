// Package config provides configuration management for the coin scanner.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Chain    ChainConfig
	Platform PlatformConfig
	Price    PriceConfig
	Analysis AnalysisConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// ChainConfig holds RPC endpoint configuration for the target chain
type ChainConfig struct {
	Slug          string // Chain slug used by price aggregators (e.g. "base")
	RPCPrimary    string
	RPCSecondary  string
	CallTimeout   time.Duration // Per-call timeout for chain reads
	HistorySource string        // "rpc" (Alchemy-compatible endpoint) or "clickhouse"
}

// PlatformConfig holds the on-chain constants identifying the posting
// platform's token deployments. All values are per-deployment and
// overridable through the environment.
type PlatformConfig struct {
	ReferrerAddress       string // Well-known platform referrer recorded at token creation
	ImplementationAddress string // Implementation behind the minimal-proxy clones
	CreatorHookAddress    string // Hook used by creator-coin pools
	ContentHookAddress    string // Hook used by content-coin pools
	PoolManagerAddress    string // Pool manager emitting Initialize events
	StateViewAddress      string // Read-only lens exposing slot0/liquidity by pool id
	WrappedNativeAddress  string // Wrapped native currency paired in platform pools
	NativeDecimals        int
}

// PriceConfig holds price aggregator configuration
type PriceConfig struct {
	DexScreenerBaseURL string
	MarketBaseURL      string
	HTTPTimeout        time.Duration
	NativeUSDFallback  float64 // Used when the native/USD spot lookup fails
	NativeCoinID       string  // Market aggregator id of the native currency
}

// AnalysisConfig holds tuning knobs for the analysis pipeline.
// BlockOffset and TimeWindow are empirically chosen matching parameters,
// not protocol guarantees; treat them as tunable.
type AnalysisConfig struct {
	Concurrency      int           // Bounded width for per-token fan-out
	BatchDelay       time.Duration // Fixed delay between batches
	BlockOffset      uint64        // Companion search window in blocks (± around the transfer)
	TimeWindow       time.Duration // Companion timestamp window
	ScanWindowBlocks uint64        // Pool-creation event scan range (recent blocks)
	MaxRetries       int           // Retries for transient classification reads
	Degraded         bool          // Degraded-network mode: smaller batches, longer delays
}

// DatabaseConfig holds optional storage configuration
type DatabaseConfig struct {
	Postgres         PostgresConfig
	ClickHouse       ClickHouseConfig
	Redis            RedisConfig
	SnapshotsEnabled bool // Persist analysis results to Postgres
}

// PostgresConfig holds Postgres configuration for snapshot persistence
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// DSN returns the Postgres connection string
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration for the indexed history provider
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration for the shared provenance cache
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Chain: ChainConfig{
			Slug:          getEnv("CHAIN_SLUG", "base"),
			RPCPrimary:    getEnv("RPC_PRIMARY", ""),
			RPCSecondary:  getEnv("RPC_SECONDARY", ""),
			CallTimeout:   getEnvAsDuration("RPC_CALL_TIMEOUT", 10*time.Second),
			HistorySource: getEnv("HISTORY_SOURCE", "rpc"),
		},
		Platform: PlatformConfig{
			ReferrerAddress:       getEnv("PLATFORM_REFERRER", ""),
			ImplementationAddress: getEnv("PLATFORM_IMPLEMENTATION", ""),
			CreatorHookAddress:    getEnv("PLATFORM_CREATOR_HOOK", ""),
			ContentHookAddress:    getEnv("PLATFORM_CONTENT_HOOK", ""),
			PoolManagerAddress:    getEnv("POOL_MANAGER_ADDRESS", "0x498581fF718922c3f8e6A244956aF099B2652b2b"),
			StateViewAddress:      getEnv("STATE_VIEW_ADDRESS", "0xA3c0c9b65baD0b08107Aa264b0f3dB444b867A71"),
			WrappedNativeAddress:  getEnv("WRAPPED_NATIVE_ADDRESS", "0x4200000000000000000000000000000000000006"),
			NativeDecimals:        getEnvAsInt("NATIVE_DECIMALS", 18),
		},
		Price: PriceConfig{
			DexScreenerBaseURL: getEnv("DEXSCREENER_BASE_URL", "https://api.dexscreener.com"),
			MarketBaseURL:      getEnv("MARKET_BASE_URL", "https://api.coingecko.com/api/v3"),
			HTTPTimeout:        getEnvAsDuration("PRICE_HTTP_TIMEOUT", 8*time.Second),
			NativeUSDFallback:  getEnvAsFloat("NATIVE_USD_FALLBACK", 3000.0),
			NativeCoinID:       getEnv("NATIVE_COIN_ID", "ethereum"),
		},
		Analysis: AnalysisConfig{
			Concurrency:      getEnvAsInt("ANALYSIS_CONCURRENCY", 5),
			BatchDelay:       getEnvAsDuration("ANALYSIS_BATCH_DELAY", 500*time.Millisecond),
			BlockOffset:      uint64(getEnvAsInt("ANALYSIS_BLOCK_OFFSET", 3)),
			TimeWindow:       getEnvAsDuration("ANALYSIS_TIME_WINDOW", 60*time.Second),
			ScanWindowBlocks: uint64(getEnvAsInt("ANALYSIS_SCAN_WINDOW_BLOCKS", 1_000_000)),
			MaxRetries:       getEnvAsInt("ANALYSIS_MAX_RETRIES", 3),
			Degraded:         getEnvAsBool("ANALYSIS_DEGRADED_MODE", false),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "coinscan"),
				User:           getEnv("POSTGRES_USER", "coinscan"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "coinscan"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Addr:     getEnv("REDIS_ADDR", ""),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
			},
			SnapshotsEnabled: getEnvAsBool("SNAPSHOTS_ENABLED", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// EffectiveConcurrency returns the fan-out width after applying degraded mode
func (a AnalysisConfig) EffectiveConcurrency() int {
	if a.Degraded {
		half := a.Concurrency / 2
		if half < 1 {
			half = 1
		}
		return half
	}
	return a.Concurrency
}

// EffectiveBatchDelay returns the inter-batch delay after applying degraded mode
func (a AnalysisConfig) EffectiveBatchDelay() time.Duration {
	if a.Degraded {
		return a.BatchDelay * 2
	}
	return a.BatchDelay
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
