package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/orderrouter/internal/blob/s3"
	"github.com/alanyoungcy/orderrouter/internal/book"
	"github.com/alanyoungcy/orderrouter/internal/cache/redis"
	"github.com/alanyoungcy/orderrouter/internal/config"
	"github.com/alanyoungcy/orderrouter/internal/domain"
	"github.com/alanyoungcy/orderrouter/internal/feed"
	"github.com/alanyoungcy/orderrouter/internal/normalize"
	"github.com/alanyoungcy/orderrouter/internal/notify"
	"github.com/alanyoungcy/orderrouter/internal/platform"
	"github.com/alanyoungcy/orderrouter/internal/store/pebble"
	"github.com/alanyoungcy/orderrouter/internal/store/postgres"
)

// levelStore is what the router and the archiver need from a store driver.
type levelStore interface {
	domain.LevelStore
	domain.LevelArchiveSource
}

// Dependencies bundles everything the modes need. Optional parts are nil
// when their config section is disabled.
type Dependencies struct {
	Store levelStore

	SignalBus   *redis.SignalBus
	Mirror      domain.BookMirror
	LockManager domain.LockManager

	BlobReader domain.BlobReader
	Archiver   *s3blob.LevelArchiver

	Kafka    *feed.KafkaSink
	Notifier *notify.Notifier

	Adapters   []domain.VenueAdapter
	Normalizer *normalize.Normalizer
	Book       *book.Book

	// HealthChecks probe the connected backing services by name.
	HealthChecks map[string]func(context.Context) error
}

// Wire constructs the concrete dependencies from cfg and returns them with a
// cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{
		Normalizer:   normalize.New(cfg.Router.PriceScale),
		Book:         book.New(cfg.Router.Symbol),
		HealthChecks: map[string]func(context.Context) error{},
	}

	// --- Level store ---
	switch cfg.Store.Driver {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.Store = postgres.NewLevelStore(pgClient.Pool())
		deps.HealthChecks["postgres"] = pgClient.Health
	case "pebble":
		st, err := pebble.Open(cfg.Pebble.Dir)
		if err != nil {
			return fail("pebble", err)
		}
		closers = append(closers, func() {
			if err := st.Close(); err != nil {
				logger.Error("wire: close pebble", slog.String("error", err.Error()))
			}
		})
		deps.Store = st
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.HealthChecks["redis"] = redisClient.Health

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.LockManager = redis.NewLockManager(redisClient)
		if cfg.Router.MirrorBooks {
			deps.Mirror = redis.NewBookMirror(redisClient)
		}
	}

	// --- S3 ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.HealthChecks["s3"] = s3Client.Health
		if deps.Store != nil {
			deps.Archiver = s3blob.NewLevelArchiver(s3blob.NewWriter(s3Client), deps.Store)
		}
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		deps.Kafka = feed.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, func() {
			if err := deps.Kafka.Close(); err != nil {
				logger.Error("wire: close kafka writer", slog.String("error", err.Error()))
			}
		})
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Cooldown.Duration, logger)

	// --- Venues ---
	adapters, err := platform.NewAdapters(cfg.Venues, logger)
	if err != nil {
		return fail("venues", err)
	}
	deps.Adapters = adapters

	return deps, cleanup, nil
}
