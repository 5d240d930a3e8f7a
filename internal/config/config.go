// Package config defines the top-level configuration for the prediction
// market daemon and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PREDICTIOND_* environment
// variables.
type Config struct {
	Owner    OwnerConfig    `toml:"owner"`
	Engine   EngineConfig   `toml:"engine"`
	Token    TokenConfig    `toml:"token"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// OwnerConfig holds the admin identity. Either a raw hex private key or an
// encrypted keyfile; the public address is derived from whichever is given.
type OwnerConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// EngineConfig holds the market engine's economic parameters. Bond and
// supply amounts are decimal strings so they survive the full integer range.
type EngineConfig struct {
	CreatorBond       string   `toml:"creator_bond"`
	ResolverBond      string   `toml:"resolver_bond"`
	FeeBps            uint64   `toml:"fee_bps"`
	ReturnFeeBps      uint64   `toml:"return_fee_bps"`
	SoloBonusBps      uint64   `toml:"solo_bonus_bps"`
	ResolverRewardBps uint64   `toml:"resolver_reward_bps"`
	DisputeWindow     duration `toml:"dispute_window"`
	VotingPeriod      duration `toml:"voting_period"`
	Executors         []string `toml:"executors"`
}

// TokenConfig holds the governance token and exchange parameters.
type TokenConfig struct {
	InitialSupply    string `toml:"initial_supply"`
	Rate             string `toml:"rate"`
	BuyFeeBps        uint64 `toml:"buy_fee_bps"`
	SellFeeBps       uint64 `toml:"sell_fee_bps"`
	MaxBuyPerTx      string `toml:"max_buy_per_tx"`
	MaxSellPerTx     string `toml:"max_sell_per_tx"`
	MaxBuyPerAddress string `toml:"max_buy_per_address"`
	FeeRecipient     string `toml:"fee_recipient"`
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

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveEnabled  bool     `toml:"archive_enabled"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled          bool     `toml:"enabled"`
	Port             int      `toml:"port"`
	CORSOrigins      []string `toml:"cors_origins"`
	RateLimitPerMin  int      `toml:"rate_limit_per_min"`
	RequireSignature bool     `toml:"require_signature"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "72h", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "72h" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			CreatorBond:       "100000000000000000000", // 100 tokens at 18 decimals
			ResolverBond:      "50000000000000000000",
			FeeBps:            200,
			ReturnFeeBps:      8000,
			SoloBonusBps:      500,
			ResolverRewardBps: 100,
			DisputeWindow:     duration{24 * time.Hour},
			VotingPeriod:      duration{72 * time.Hour},
		},
		Token: TokenConfig{
			InitialSupply: "1000000000000000000000000",
			Rate:          "100",
			BuyFeeBps:     100,
			SellFeeBps:    100,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "predictiondao-archive",
			UseSSL:          false,
			ForcePathStyle:  true,
			ArchiveEnabled:  false,
			ArchiveInterval: duration{time.Hour},
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             8000,
			CORSOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin:  120,
			RequireSignature: true,
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "proposal_created", "proposal_executed", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Owner key is required: the engine and token need an admin address.
	if c.Owner.PrivateKey == "" && c.Owner.EncryptedKeyPath == "" {
		errs = append(errs, "owner: either private_key or encrypted_key_path must be set")
	}
	if c.Owner.EncryptedKeyPath != "" && c.Owner.KeyPassword == "" {
		errs = append(errs, "owner: key_password is required when encrypted_key_path is set")
	}

	// Engine amounts and basis points.
	if _, ok := parseAmount(c.Engine.CreatorBond); !ok {
		errs = append(errs, fmt.Sprintf("engine: creator_bond %q is not a valid integer", c.Engine.CreatorBond))
	}
	if _, ok := parseAmount(c.Engine.ResolverBond); !ok {
		errs = append(errs, fmt.Sprintf("engine: resolver_bond %q is not a valid integer", c.Engine.ResolverBond))
	}
	for _, bp := range []struct {
		name string
		v    uint64
	}{
		{"fee_bps", c.Engine.FeeBps},
		{"return_fee_bps", c.Engine.ReturnFeeBps},
		{"solo_bonus_bps", c.Engine.SoloBonusBps},
		{"resolver_reward_bps", c.Engine.ResolverRewardBps},
	} {
		if bp.v > 10_000 {
			errs = append(errs, fmt.Sprintf("engine: %s must be <= 10000, got %d", bp.name, bp.v))
		}
	}
	if c.Engine.DisputeWindow.Duration <= 0 {
		errs = append(errs, "engine: dispute_window must be positive")
	}
	if c.Engine.VotingPeriod.Duration <= 0 {
		errs = append(errs, "engine: voting_period must be positive")
	}

	// Token parameters.
	if v, ok := parseAmount(c.Token.Rate); !ok || v.Sign() <= 0 {
		errs = append(errs, fmt.Sprintf("token: rate %q must be a positive integer", c.Token.Rate))
	}
	if _, ok := parseAmount(c.Token.InitialSupply); !ok {
		errs = append(errs, fmt.Sprintf("token: initial_supply %q is not a valid integer", c.Token.InitialSupply))
	}
	if c.Token.BuyFeeBps > 10_000 || c.Token.SellFeeBps > 10_000 {
		errs = append(errs, "token: buy_fee_bps and sell_fee_bps must be <= 10000")
	}
	for _, lim := range []struct {
		name string
		v    string
	}{
		{"max_buy_per_tx", c.Token.MaxBuyPerTx},
		{"max_sell_per_tx", c.Token.MaxSellPerTx},
		{"max_buy_per_address", c.Token.MaxBuyPerAddress},
	} {
		if _, ok := parseAmount(lim.v); !ok {
			errs = append(errs, fmt.Sprintf("token: %s %q is not a valid integer", lim.name, lim.v))
		}
	}

	// Postgres.
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis.
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 only matters when archiving is on.
	if c.S3.ArchiveEnabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be positive")
		}
	}

	// Server.
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Amount parses a decimal amount string into a big.Int; empty reads as zero.
// Call Validate first; Amount falls back to zero for malformed input.
func Amount(s string) *big.Int {
	v, ok := parseAmount(s)
	if !ok {
		return new(big.Int)
	}
	return v
}

func parseAmount(s string) (*big.Int, bool) {
	if strings.TrimSpace(s) == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(strings.TrimSpace(s), 10)
}
