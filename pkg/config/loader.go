package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

type loadOptions struct {
	prefix   string
	files    []string
	skipDot  bool
	environs map[string]string
}

// Option tunes a single Load call.
type Option func(*loadOptions)

// WithPrefix only reads variables starting with prefix; the prefix is
// stripped before matching struct tags.
func WithPrefix(prefix string) Option {
	return func(o *loadOptions) { o.prefix = prefix }
}

// WithEnvFiles loads the given dotenv files instead of ./.env.
// Variables already present in the process environment win.
func WithEnvFiles(files ...string) Option {
	return func(o *loadOptions) { o.files = files }
}

// WithoutDotenv skips dotenv loading entirely.
func WithoutDotenv() Option {
	return func(o *loadOptions) { o.skipDot = true }
}

// WithEnvironment parses from the given map rather than the process
// environment. Mostly useful in tests.
func WithEnvironment(vars map[string]string) Option {
	return func(o *loadOptions) {
		o.environs = vars
		o.skipDot = true
	}
}

// Load fills v from environment variables according to its `env` tags.
//
//	type DatabaseConfig struct {
//		ConnURL string `env:"PG_CONN_URL,required"`
//		MaxConn int32  `env:"PG_MAX_CONN" envDefault:"10"`
//	}
//
//	var cfg DatabaseConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}

	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !o.skipDot {
		if len(o.files) > 0 {
			if err := godotenv.Load(o.files...); err != nil {
				return errors.Join(ErrReadingFile, err)
			}
		} else {
			dotenvOnce.Do(func() {
				// A missing .env file is fine.
				_ = godotenv.Load()
			})
		}
	}

	envOpts := env.Options{Prefix: o.prefix}
	if o.environs != nil {
		envOpts.Environment = o.environs
	}

	if err := env.ParseWithOptions(v, envOpts); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
