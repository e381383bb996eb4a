package postgres

import "time"

// Config describes the postgres connection, populated from STATUM_PG_* variables
type Config struct {
	ConnectionString string        `env:"PG_CONN_URL"`
	MaxOpenConns     int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns     int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"2"`
	MigrationsTable  string        `env:"PG_MIGRATIONS_TABLE" envDefault:"statum_migrations"`
	RetryAttempts    int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval    time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`
}
