package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDICTIOND_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICTIOND_* environment variables
// and overwrites the corresponding Config fields when a variable is set.
// This lets operators inject secrets at deploy time without touching the
// TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Owner ──
	setStr(&cfg.Owner.PrivateKey, "PREDICTIOND_OWNER_PRIVATE_KEY")
	setStr(&cfg.Owner.EncryptedKeyPath, "PREDICTIOND_OWNER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Owner.KeyPassword, "PREDICTIOND_OWNER_KEY_PASSWORD")

	// ── Engine ──
	setStr(&cfg.Engine.CreatorBond, "PREDICTIOND_ENGINE_CREATOR_BOND")
	setStr(&cfg.Engine.ResolverBond, "PREDICTIOND_ENGINE_RESOLVER_BOND")
	setUint64(&cfg.Engine.FeeBps, "PREDICTIOND_ENGINE_FEE_BPS")
	setUint64(&cfg.Engine.ReturnFeeBps, "PREDICTIOND_ENGINE_RETURN_FEE_BPS")
	setUint64(&cfg.Engine.SoloBonusBps, "PREDICTIOND_ENGINE_SOLO_BONUS_BPS")
	setUint64(&cfg.Engine.ResolverRewardBps, "PREDICTIOND_ENGINE_RESOLVER_REWARD_BPS")
	setDuration(&cfg.Engine.DisputeWindow, "PREDICTIOND_ENGINE_DISPUTE_WINDOW")
	setDuration(&cfg.Engine.VotingPeriod, "PREDICTIOND_ENGINE_VOTING_PERIOD")
	setStringSlice(&cfg.Engine.Executors, "PREDICTIOND_ENGINE_EXECUTORS")

	// ── Token ──
	setStr(&cfg.Token.InitialSupply, "PREDICTIOND_TOKEN_INITIAL_SUPPLY")
	setStr(&cfg.Token.Rate, "PREDICTIOND_TOKEN_RATE")
	setUint64(&cfg.Token.BuyFeeBps, "PREDICTIOND_TOKEN_BUY_FEE_BPS")
	setUint64(&cfg.Token.SellFeeBps, "PREDICTIOND_TOKEN_SELL_FEE_BPS")
	setStr(&cfg.Token.MaxBuyPerTx, "PREDICTIOND_TOKEN_MAX_BUY_PER_TX")
	setStr(&cfg.Token.MaxSellPerTx, "PREDICTIOND_TOKEN_MAX_SELL_PER_TX")
	setStr(&cfg.Token.MaxBuyPerAddress, "PREDICTIOND_TOKEN_MAX_BUY_PER_ADDRESS")
	setStr(&cfg.Token.FeeRecipient, "PREDICTIOND_TOKEN_FEE_RECIPIENT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDICTIOND_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDICTIOND_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICTIOND_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICTIOND_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICTIOND_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICTIOND_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICTIOND_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICTIOND_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICTIOND_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICTIOND_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDICTIOND_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTIOND_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTIOND_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTIOND_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTIOND_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTIOND_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDICTIOND_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICTIOND_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICTIOND_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICTIOND_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICTIOND_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICTIOND_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICTIOND_S3_FORCE_PATH_STYLE")
	setBool(&cfg.S3.ArchiveEnabled, "PREDICTIOND_S3_ARCHIVE_ENABLED")
	setDuration(&cfg.S3.ArchiveInterval, "PREDICTIOND_S3_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PREDICTIOND_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PREDICTIOND_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICTIOND_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "PREDICTIOND_SERVER_RATE_LIMIT_PER_MIN")
	setBool(&cfg.Server.RequireSignature, "PREDICTIOND_SERVER_REQUIRE_SIGNATURE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDICTIOND_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDICTIOND_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDICTIOND_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDICTIOND_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDICTIOND_MODE")
	setStr(&cfg.LogLevel, "PREDICTIOND_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
