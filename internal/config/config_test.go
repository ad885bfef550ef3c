package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/regwatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9000
database:
  host: db.internal
  user: regwatch
  database: regwatch
pipeline:
  batch_size: 50
  batch_interval: 250ms
classifier:
  provider: none
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAMLThenEnvOverrides(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	t.Setenv("REGWATCH_PORT", "9100")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")

	cfg, err := config.Load[config.Config](path, false)
	require.NoError(t, err)
	cfg.SetDefaults()

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 50, cfg.Pipeline.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.BatchInterval)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, config.BlacklistStorePostgres, cfg.Blacklist.Store)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yml")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := config.Load[config.Config](missing, false)
	require.Error(t, err)

	cfg, err := config.Load[config.Config](missing, true)
	require.NoError(t, err)
	cfg.SetDefaults()
	assert.Equal(t, config.BlacklistStoreMemory, cfg.Blacklist.Store)
	assert.Equal(t, config.ClassifierNone, cfg.Classifier.Provider)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		mut   func(*config.Config)
		field string
	}{
		{"bad port", func(c *config.Config) { c.Server.Port = 70000 }, "server.port"},
		{"anthropic without key", func(c *config.Config) {
			c.Classifier.Provider = config.ClassifierAnthropic
			c.Classifier.APIKey = ""
		}, "classifier.api_key"},
		{"redis store without redis", func(c *config.Config) { c.Blacklist.Store = config.BlacklistStoreRedis }, "blacklist.store"},
		{"unknown store", func(c *config.Config) { c.Blacklist.Store = "etcd" }, "blacklist.store"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{}
			cfg.SetDefaults()
			tc.mut(cfg)

			err := cfg.Validate()
			var vErr *config.ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/regwatch.yml")
	assert.Equal(t, "custom.yml", config.ResolvePath("custom.yml"))
	assert.Equal(t, "/etc/regwatch.yml", config.ResolvePath(""))
}
