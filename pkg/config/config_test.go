package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauthcore/pkg/config"
)

type serverConfig struct {
	Addr    string        `env:"ADDR" envDefault:":8080"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	Hosts   []string      `env:"HOSTS" envSeparator:","`
}

type requiredConfig struct {
	Key string `env:"KEY,required"`
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		var cfg serverConfig
		require.NoError(t, config.Load(&cfg, config.WithEnvironment(map[string]string{})))
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, 10*time.Second, cfg.Timeout)
		assert.Empty(t, cfg.Hosts)
	})

	t.Run("values and prefix", func(t *testing.T) {
		t.Parallel()
		var cfg serverConfig
		err := config.Load(&cfg,
			config.WithPrefix("APP_"),
			config.WithEnvironment(map[string]string{
				"APP_ADDR":    ":9090",
				"APP_TIMEOUT": "1m",
				"APP_HOSTS":   "a.example.com,b.example.com",
				"ADDR":        ":1",
			}),
		)
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.Addr)
		assert.Equal(t, time.Minute, cfg.Timeout)
		assert.Equal(t, []string{"a.example.com", "b.example.com"}, cfg.Hosts)
	})

	t.Run("required missing", func(t *testing.T) {
		t.Parallel()
		var cfg requiredConfig
		err := config.Load(&cfg, config.WithEnvironment(map[string]string{}))
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, config.Load[serverConfig](nil), config.ErrNilPointer)
	})

	t.Run("must load panics", func(t *testing.T) {
		t.Parallel()
		var cfg requiredConfig
		assert.Panics(t, func() {
			config.MustLoad(&cfg, config.WithEnvironment(map[string]string{}))
		})
	})
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CFGTEST_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CFGTEST_KEY") })

	var cfg requiredConfig
	require.NoError(t, config.Load(&cfg, config.WithPrefix("CFGTEST_"), config.WithEnvFiles(path)))
	assert.Equal(t, "from-file", cfg.Key)

	err := config.Load(&cfg, config.WithEnvFiles(filepath.Join(dir, "missing.env")))
	assert.ErrorIs(t, err, config.ErrReadingFile)
}

type providersFile struct {
	Providers []struct {
		ID     string   `yaml:"id"`
		Secret string   `yaml:"client_secret"`
		Scopes []string `yaml:"scopes"`
	} `yaml:"providers"`
}

func TestDecodeYAML(t *testing.T) {
	t.Setenv("CFGTEST_SECRET", "s3cr3t")

	doc := []byte(`
providers:
  - id: gitlab
    client_secret: ${CFGTEST_SECRET}
    scopes: [read_user, openid]
`)

	var out providersFile
	require.NoError(t, config.DecodeYAML(doc, &out))
	require.Len(t, out.Providers, 1)
	assert.Equal(t, "gitlab", out.Providers[0].ID)
	assert.Equal(t, "s3cr3t", out.Providers[0].Secret)
	assert.Equal(t, []string{"read_user", "openid"}, out.Providers[0].Scopes)
}

func TestDecodeYAMLErrors(t *testing.T) {
	var out providersFile

	err := config.DecodeYAML([]byte("providers:\n  - id: x\n    client_secret: ${CFGTEST_DEFINITELY_UNSET}\n"), &out)
	assert.ErrorIs(t, err, config.ErrUnsetVariable)

	err = config.DecodeYAML([]byte("providers:\n  - id: x\n    unknown: 1\n"), &out)
	assert.ErrorIs(t, err, config.ErrParsingFile)

	err = config.LoadYAML("/nonexistent/providers.yaml", &out)
	assert.ErrorIs(t, err, config.ErrReadingFile)
}
