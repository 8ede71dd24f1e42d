package redis

import "time"

type Config struct {
	// ConnectionURL is "redis://:password@host:6379/0". Empty means the
	// process runs on in-memory stores.
	ConnectionURL  string        `env:"REDIS_URL"`
	RetryAttempts  uint64        `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"1s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	KeyPrefix      string        `env:"REDIS_KEY_PREFIX" envDefault:"oauthcore:"`
}

// Enabled reports whether a Redis URL was configured.
func (c Config) Enabled() bool {
	return c.ConnectionURL != ""
}
