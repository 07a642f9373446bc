package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VENUE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VENUE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "VENUE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "VENUE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VENUE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VENUE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VENUE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VENUE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VENUE_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "VENUE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VENUE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VENUE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VENUE_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "VENUE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "VENUE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VENUE_S3_REGION")
	setStr(&cfg.S3.Bucket, "VENUE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VENUE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VENUE_S3_SECRET_KEY")

	// ── Exchange ──
	setStr(&cfg.Exchange.ClobHost, "VENUE_EXCHANGE_CLOB_HOST")
	setStr(&cfg.Exchange.WsHost, "VENUE_EXCHANGE_WS_HOST")
	setInt(&cfg.Exchange.ChainID, "VENUE_EXCHANGE_CHAIN_ID")
	setStr(&cfg.Exchange.PrivateKey, "VENUE_EXCHANGE_PRIVATE_KEY")
	setStr(&cfg.Exchange.EncryptedKeyPath, "VENUE_EXCHANGE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Exchange.KeyPassword, "VENUE_EXCHANGE_KEY_PASSWORD")
	setStr(&cfg.Exchange.ApiKey, "VENUE_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.ApiSecret, "VENUE_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.ApiPassphrase, "VENUE_EXCHANGE_API_PASSPHRASE")

	// ── Server ──
	setInt(&cfg.Server.Port, "VENUE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "VENUE_SERVER_API_KEY")

	// ── Misc ──
	setStr(&cfg.LogLevel, "VENUE_LOG_LEVEL")
}

func setStr(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
