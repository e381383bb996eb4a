package redis

import (
	"context"
	"errors"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// Connect opens a client and pings it, retrying RetryAttempts times with
// RetryInterval between attempts
func Connect(ctx context.Context, cfg Config) (*backend.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts, err := backend.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseConnString, err)
	}

	attempts := max(cfg.RetryAttempts, 1)
	for range attempts {
		client := backend.NewClient(opts)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, ErrNotReady
}
