package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	ErrEmptyConnectionString    = errors.New("empty postgres connection string")
	ErrFailedToParseDBConfig    = errors.New("failed to parse db config")
	ErrFailedToOpenDBConnection = errors.New("failed to open db connection")
	ErrFailedToApplyMigrations  = errors.New("failed to apply migrations")
)

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
