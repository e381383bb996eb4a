// Package config loads statum settings from the environment. Every key is
// prefixed with STATUM_, and a .env file in the working directory is read
// first when present.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/anggasct/statum"
	"github.com/anggasct/statum/internal/logging"
	"github.com/anggasct/statum/pkg/adapters/mongo"
	"github.com/anggasct/statum/pkg/adapters/postgres"
	"github.com/anggasct/statum/pkg/adapters/redis"
)

// Prefix is prepended to every environment key
const Prefix = "STATUM_"

// Backend names a persistence adapter
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongo"
)

var (
	ErrParsingConfig   = errors.New("failed to parse environment variables into config")
	ErrUnknownBackend  = errors.New("unknown backend")
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Config holds the runtime settings
type Config struct {
	LogLevel  string  `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string  `env:"LOG_FORMAT" envDefault:"text"`
	Backend   Backend `env:"BACKEND" envDefault:"memory"`

	Redis    redis.Config
	Postgres postgres.Config
	Mongo    mongo.Config
}

// Load reads the given env files, or .env when none are given, and parses
// the environment. A missing default .env file is not an error.
func Load(files ...string) (*Config, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return nil, errors.Join(ErrParsingConfig, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Join(ErrParsingConfig, err)
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerated settings
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendMemory, BackendRedis, BackendPostgres, BackendMongo:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, errors.Join(ErrInvalidLogLevel, err))
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Logger creates the configured logger writing to w
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Join(ErrInvalidLogLevel, err)
	}
	format, err := logging.ParseFormat(c.LogFormat)
	if err != nil {
		return nil, err
	}
	return logging.New(level, format, w), nil
}

// OpenAdapter connects the configured backend. The returned function
// releases the connection.
func (c *Config) OpenAdapter(ctx context.Context, logger *slog.Logger) (statum.Adapter, func() error, error) {
	noop := func() error { return nil }
	switch c.Backend {
	case BackendMemory, "":
		return statum.NewMemoryAdapter(), noop, nil

	case BackendRedis:
		client, err := redis.Connect(ctx, c.Redis)
		if err != nil {
			return nil, nil, err
		}
		return redis.New(client, redis.WithPrefix(c.Redis.Prefix)), client.Close, nil

	case BackendPostgres:
		pool, err := postgres.Connect(ctx, c.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, pool, c.Postgres, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.New(pool), func() error { pool.Close(); return nil }, nil

	case BackendMongo:
		client, err := mongo.Connect(ctx, c.Mongo)
		if err != nil {
			return nil, nil, err
		}
		db := client.Database(c.Mongo.Database)
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		return mongo.NewFromDatabase(db), func() error { return client.Disconnect(context.Background()) }, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
}
