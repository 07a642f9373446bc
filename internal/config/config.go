// Package config defines the top-level configuration for the trading venue
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by VENUE_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Exchange ExchangeConfig `toml:"exchange"`
	Hedge    HedgeConfig    `toml:"hedge"`
	Risk     RiskConfig     `toml:"risk"`
	Server   ServerConfig   `toml:"server"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for activity
// archival. Archival is disabled when Bucket is empty.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ExchangeConfig holds the external venue's endpoints and signing
// credentials for hedge orders.
type ExchangeConfig struct {
	ClobHost         string `toml:"clob_host"`
	WsHost           string `toml:"ws_host"`
	ChainID          int    `toml:"chain_id"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	ApiKey           string `toml:"api_key"`
	ApiSecret        string `toml:"api_secret"`
	ApiPassphrase    string `toml:"api_passphrase"`
}

// HedgeConfig holds the tunable parameters of the hedge pipeline. It is
// passed by value into the quote engine and executor; there is no
// process-wide mutable hedge state.
type HedgeConfig struct {
	SpreadBps          int     `toml:"spread_bps"`
	MinProfitUSD       float64 `toml:"min_profit_usd"`
	FeeRateBps         int     `toml:"fee_rate_bps"`
	MinOrderShares     float64 `toml:"min_order_shares"`
	FillWaitSeconds    int     `toml:"fill_wait_seconds"`
	PollIntervalMillis int     `toml:"poll_interval_millis"`
}

// FillWait returns the bounded fill-wait duration.
func (h HedgeConfig) FillWait() time.Duration {
	return time.Duration(h.FillWaitSeconds) * time.Second
}

// PollInterval returns the fill-status poll interval.
func (h HedgeConfig) PollInterval() time.Duration {
	return time.Duration(h.PollIntervalMillis) * time.Millisecond
}

// RiskConfig holds pre-trade risk limits.
type RiskConfig struct {
	MaxMarketExposureUSD float64 `toml:"max_market_exposure_usd"`
	MaxPriceImpactBps    float64 `toml:"max_price_impact_bps"`
	TradesPerMinute      int     `toml:"trades_per_minute"`
	LockTTLSeconds       int     `toml:"lock_ttl_seconds"`
}

// ServerConfig holds the HTTP API parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Defaults returns a Config populated with sane development defaults.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "venue",
			User:          "venue",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Exchange: ExchangeConfig{
			ClobHost: "https://clob.polymarket.com",
			WsHost:   "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:  137,
		},
		Hedge: HedgeConfig{
			SpreadBps:          50,
			MinProfitUSD:       0.05,
			FeeRateBps:         0,
			MinOrderShares:     5,
			FillWaitSeconds:    10,
			PollIntervalMillis: 1000,
		},
		Risk: RiskConfig{
			MaxMarketExposureUSD: 5000,
			MaxPriceImpactBps:    1500,
			TradesPerMinute:      30,
			LockTTLSeconds:       30,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for inconsistencies that would only
// surface later at runtime.
func (c *Config) Validate() error {
	var problems []string

	if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Database == "") {
		problems = append(problems, "postgres: either dsn or host+database is required")
	}
	if c.Redis.Addr == "" {
		problems = append(problems, "redis: addr is required")
	}
	if c.Hedge.SpreadBps < 0 {
		problems = append(problems, "hedge: spread_bps must not be negative")
	}
	if c.Hedge.MinOrderShares <= 0 {
		problems = append(problems, "hedge: min_order_shares must be positive")
	}
	if c.Hedge.FillWaitSeconds <= 0 {
		problems = append(problems, "hedge: fill_wait_seconds must be positive")
	}
	if c.Hedge.PollIntervalMillis <= 0 {
		problems = append(problems, "hedge: poll_interval_millis must be positive")
	}
	if c.Hedge.PollInterval() > c.Hedge.FillWait() {
		problems = append(problems, "hedge: poll interval exceeds fill wait")
	}
	if c.Risk.MaxPriceImpactBps <= 0 {
		problems = append(problems, "risk: max_price_impact_bps must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server: invalid port %d", c.Server.Port))
	}
	if c.S3.Bucket != "" && c.S3.Region == "" {
		problems = append(problems, "s3: region is required when bucket is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
