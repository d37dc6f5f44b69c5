package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ROUTER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ROUTER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). Per-venue credentials use ROUTER_VENUE_<NAME>_API_KEY and
// ROUTER_VENUE_<NAME>_RSA_PRIVATE_KEY_PATH.
func applyEnvOverrides(cfg *Config) {
	// ── Router ──
	setStr(&cfg.Router.Symbol, "ROUTER_SYMBOL")
	setInt64(&cfg.Router.PriceScale, "ROUTER_PRICE_SCALE")
	setDuration(&cfg.Router.CycleInterval, "ROUTER_CYCLE_INTERVAL")
	setDuration(&cfg.Router.PerVenueTimeout, "ROUTER_PER_VENUE_TIMEOUT")
	setDuration(&cfg.Router.CycleDeadline, "ROUTER_CYCLE_DEADLINE")
	setStr(&cfg.Router.Retention, "ROUTER_RETENTION")
	setDuration(&cfg.Router.ArchiveInterval, "ROUTER_ARCHIVE_INTERVAL")
	setInt64(&cfg.Router.ArchiveKeepCycles, "ROUTER_ARCHIVE_KEEP_CYCLES")
	setBool(&cfg.Router.MirrorBooks, "ROUTER_MIRROR_BOOKS")
	setBool(&cfg.Router.Buy.Enabled, "ROUTER_BUY_ENABLED")
	setStr(&cfg.Router.Buy.AvgPriceLimit, "ROUTER_BUY_AVG_PRICE_LIMIT")
	setStr(&cfg.Router.Buy.VolumeLimit, "ROUTER_BUY_VOLUME_LIMIT")
	setStr(&cfg.Router.Buy.MinVolume, "ROUTER_BUY_MIN_VOLUME")
	setBool(&cfg.Router.Sell.Enabled, "ROUTER_SELL_ENABLED")
	setStr(&cfg.Router.Sell.AvgPriceLimit, "ROUTER_SELL_AVG_PRICE_LIMIT")
	setStr(&cfg.Router.Sell.VolumeLimit, "ROUTER_SELL_VOLUME_LIMIT")
	setStr(&cfg.Router.Sell.MinVolume, "ROUTER_SELL_MIN_VOLUME")

	// ── Venues ──
	for i := range cfg.Venues {
		prefix := "ROUTER_VENUE_" + envName(cfg.Venues[i].Name) + "_"
		setStr(&cfg.Venues[i].APIKey, prefix+"API_KEY")
		setStr(&cfg.Venues[i].RSAPrivateKeyPath, prefix+"RSA_PRIVATE_KEY_PATH")
		setStr(&cfg.Venues[i].BaseURL, prefix+"BASE_URL")
		setStr(&cfg.Venues[i].WSURL, prefix+"WS_URL")
	}

	// ── Store ──
	setStr(&cfg.Store.Driver, "ROUTER_STORE_DRIVER")
	setStr(&cfg.Pebble.Dir, "ROUTER_PEBBLE_DIR")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ROUTER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ROUTER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ROUTER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ROUTER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ROUTER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ROUTER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ROUTER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ROUTER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ROUTER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ROUTER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ROUTER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ROUTER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ROUTER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ROUTER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ROUTER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ROUTER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ROUTER_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "ROUTER_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ROUTER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ROUTER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ROUTER_S3_REGION")
	setStr(&cfg.S3.Bucket, "ROUTER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ROUTER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ROUTER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ROUTER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ROUTER_S3_FORCE_PATH_STYLE")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "ROUTER_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "ROUTER_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "ROUTER_KAFKA_TOPIC")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ROUTER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ROUTER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ROUTER_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ROUTER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ROUTER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ROUTER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ROUTER_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "ROUTER_NOTIFY_COOLDOWN")

	// ── Top-level ──
	setStr(&cfg.Mode, "ROUTER_MODE")
	setStr(&cfg.LogLevel, "ROUTER_LOG_LEVEL")
}

// envName upper-cases a venue name and replaces anything that is not a
// letter or digit with '_'.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
