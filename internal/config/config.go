// Package config defines the top-level configuration for the order router
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ROUTER_* environment variables.
type Config struct {
	Router   RouterConfig   `toml:"router"`
	Venues   []VenueConfig  `toml:"venues"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Pebble   PebbleConfig   `toml:"pebble"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// RouterConfig holds the coordinating loop and evaluation parameters.
type RouterConfig struct {
	Symbol          string   `toml:"symbol"`
	PriceScale      int64    `toml:"price_scale"`
	CycleInterval   duration `toml:"cycle_interval"`
	PerVenueTimeout duration `toml:"per_venue_timeout"`
	// CycleDeadline bounds the whole fetch phase; venues still pending when
	// it elapses are marked stale for the cycle.
	CycleDeadline duration `toml:"cycle_deadline"`
	// Retention is one of "history", "latest" or "archive".
	Retention         string   `toml:"retention"`
	ArchiveInterval   duration `toml:"archive_interval"`
	ArchiveKeepCycles int64    `toml:"archive_keep_cycles"`
	MirrorBooks       bool     `toml:"mirror_books"`

	Buy  SideConfig `toml:"buy"`
	Sell SideConfig `toml:"sell"`
}

// SideConfig holds the limits for one trade direction. Values are decimal
// strings in instrument units so that they are never rounded through float.
type SideConfig struct {
	Enabled       bool   `toml:"enabled"`
	AvgPriceLimit string `toml:"avg_price_limit"`
	VolumeLimit   string `toml:"volume_limit"`
	MinVolume     string `toml:"min_volume"`
}

// Parse returns the side's limits as decimals. An empty MinVolume means 0.
func (s SideConfig) Parse() (avgPrice, volume, minVolume decimal.Decimal, err error) {
	if avgPrice, err = decimal.NewFromString(strings.TrimSpace(s.AvgPriceLimit)); err != nil {
		return avgPrice, volume, minVolume, fmt.Errorf("avg_price_limit %q: %w", s.AvgPriceLimit, err)
	}
	if volume, err = decimal.NewFromString(strings.TrimSpace(s.VolumeLimit)); err != nil {
		return avgPrice, volume, minVolume, fmt.Errorf("volume_limit %q: %w", s.VolumeLimit, err)
	}
	minVolume = decimal.Zero
	if strings.TrimSpace(s.MinVolume) != "" {
		if minVolume, err = decimal.NewFromString(strings.TrimSpace(s.MinVolume)); err != nil {
			return avgPrice, volume, minVolume, fmt.Errorf("min_volume %q: %w", s.MinVolume, err)
		}
	}
	return avgPrice, volume, minVolume, nil
}

// VenueConfig configures one venue adapter. Which fields are required
// depends on Type.
type VenueConfig struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
	// Market is the venue-native instrument id (Kalshi ticker, Polymarket
	// token id, dYdX pair).
	Market            string `toml:"market"`
	BaseURL           string `toml:"base_url"`
	WSURL             string `toml:"ws_url"`
	APIKey            string `toml:"api_key"`
	RSAPrivateKeyPath string `toml:"rsa_private_key_path"`
	// Path is the snapshot file read by the "file" adapter.
	Path  string `toml:"path"`
	Depth int    `toml:"depth"`
}

// StoreConfig selects the level store backend.
type StoreConfig struct {
	// Driver is one of "postgres", "pebble" or "none".
	Driver string `toml:"driver"`
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

// PebbleConfig holds the embedded store location.
type PebbleConfig struct {
	Dir string `toml:"dir"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// StreamMaxLen caps the decision stream (approximate trimming).
	StreamMaxLen int64 `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// KafkaConfig holds the decision topic producer parameters.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// Cooldown suppresses repeats of the same alert (e.g. one venue staying
	// stale for many cycles).
	Cooldown duration `toml:"cooldown"`
}

// Defaults returns a Config populated with sensible default values.
func Defaults() Config {
	return Config{
		Router: RouterConfig{
			PriceScale:        100_000,
			CycleInterval:     duration{2 * time.Second},
			PerVenueTimeout:   duration{1500 * time.Millisecond},
			CycleDeadline:     duration{1800 * time.Millisecond},
			Retention:         "history",
			ArchiveInterval:   duration{time.Hour},
			ArchiveKeepCycles: 10_000,
			Buy:               SideConfig{Enabled: true, MinVolume: "0"},
			Sell:              SideConfig{MinVolume: "0"},
		},
		Store: StoreConfig{Driver: "pebble"},
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
		Pebble: PebbleConfig{Dir: "data/levels"},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "orderrouter-data",
			ForcePathStyle: true,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "router.decisions",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events:   []string{"decision_eligible", "venue_stale", "error"},
			Cooldown: duration{5 * time.Minute},
		},
		Mode:     "route",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"route":  true,
	"replay": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validRetention = map[string]bool{
	"history": true,
	"latest":  true,
	"archive": true,
}

var validDrivers = map[string]bool{
	"postgres": true,
	"pebble":   true,
	"none":     true,
}

// VenueTypes lists the adapter types the router knows how to build.
var VenueTypes = map[string]bool{
	"kalshi":     true,
	"polymarket": true,
	"dydx":       true,
	"file":       true,
}

// Validate checks the configuration and returns one error listing every
// problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: route, replay)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	errs = append(errs, c.validateRouter()...)
	errs = append(errs, c.validateVenues()...)

	if !validDrivers[c.Store.Driver] {
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: postgres, pebble, none)", c.Store.Driver))
	}
	if c.Store.Driver == "pebble" && strings.TrimSpace(c.Pebble.Dir) == "" {
		errs = append(errs, "pebble: dir must not be empty")
	}
	if c.Store.Driver == "postgres" {
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
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}
	if c.Mode == "replay" && c.Store.Driver == "none" {
		errs = append(errs, "replay mode needs a store driver other than none")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.Router.MirrorBooks && !c.Redis.Enabled {
		errs = append(errs, "router: mirror_books requires redis.enabled")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validateRouter() []string {
	var errs []string
	r := c.Router

	if strings.TrimSpace(r.Symbol) == "" {
		errs = append(errs, "router: symbol must not be empty")
	}
	if r.PriceScale <= 0 {
		errs = append(errs, "router: price_scale must be > 0")
	}
	if r.CycleInterval.Duration <= 0 {
		errs = append(errs, "router: cycle_interval must be > 0")
	}
	if r.PerVenueTimeout.Duration <= 0 {
		errs = append(errs, "router: per_venue_timeout must be > 0")
	}
	if r.CycleDeadline.Duration <= 0 {
		errs = append(errs, "router: cycle_deadline must be > 0")
	}
	if !validRetention[r.Retention] {
		errs = append(errs, fmt.Sprintf("router: unknown retention %q (valid: history, latest, archive)", r.Retention))
	}
	if r.Retention == "archive" {
		if !c.S3.Enabled {
			errs = append(errs, "router: retention archive requires s3.enabled")
		}
		if c.Store.Driver == "none" {
			errs = append(errs, "router: retention archive requires a store driver")
		}
		if r.ArchiveKeepCycles <= 0 {
			errs = append(errs, "router: archive_keep_cycles must be > 0")
		}
		if r.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "router: archive_interval must be > 0")
		}
	}

	if !r.Buy.Enabled && !r.Sell.Enabled {
		errs = append(errs, "router: at least one of buy, sell must be enabled")
	}
	for _, ns := range []struct {
		name string
		side SideConfig
	}{{"buy", r.Buy}, {"sell", r.Sell}} {
		name, side := ns.name, ns.side
		if !side.Enabled {
			continue
		}
		avg, vol, minVol, err := side.Parse()
		if err != nil {
			errs = append(errs, fmt.Sprintf("router.%s: %v", name, err))
			continue
		}
		switch {
		case name == "sell" && avg.IsNegative():
			errs = append(errs, "router.sell: avg_price_limit must be >= 0")
		case name == "buy" && !avg.IsPositive():
			errs = append(errs, "router.buy: avg_price_limit must be > 0")
		}
		if !vol.IsPositive() {
			errs = append(errs, fmt.Sprintf("router.%s: volume_limit must be > 0", name))
		}
		if minVol.IsNegative() {
			errs = append(errs, fmt.Sprintf("router.%s: min_volume must be >= 0", name))
		}
	}
	return errs
}

func (c *Config) validateVenues() []string {
	var errs []string
	if len(c.Venues) == 0 {
		errs = append(errs, "venues: at least one venue must be configured")
	}
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		label := fmt.Sprintf("venues[%d]", i)
		if v.Name == "" {
			errs = append(errs, label+": name must not be empty")
		} else {
			label = fmt.Sprintf("venues[%s]", v.Name)
			if seen[v.Name] {
				errs = append(errs, label+": duplicate name")
			}
			seen[v.Name] = true
		}
		if !VenueTypes[v.Type] {
			errs = append(errs, fmt.Sprintf("%s: unknown type %q (valid: kalshi, polymarket, dydx, file)", label, v.Type))
			continue
		}
		switch v.Type {
		case "kalshi":
			if v.Market == "" {
				errs = append(errs, label+": kalshi needs market (ticker)")
			}
			if (v.APIKey == "") != (v.RSAPrivateKeyPath == "") {
				errs = append(errs, label+": kalshi api_key and rsa_private_key_path must be set together")
			}
		case "polymarket":
			if v.Market == "" {
				errs = append(errs, label+": polymarket needs market (token id)")
			}
		case "dydx":
			if v.Market == "" || v.WSURL == "" {
				errs = append(errs, label+": dydx needs market and ws_url")
			}
		case "file":
			if v.Path == "" {
				errs = append(errs, label+": file needs path")
			}
		}
	}
	return errs
}
