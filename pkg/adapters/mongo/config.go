package mongo

import "time"

// Config describes the mongo connection, populated from STATUM_MONGO_* variables
type Config struct {
	ConnectionURL  string        `env:"MONGO_URL"`
	Database       string        `env:"MONGO_DATABASE" envDefault:"statum"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"30s"`
	RetryAttempts  int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`
}
