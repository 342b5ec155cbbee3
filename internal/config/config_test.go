package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
auth:
  jwt_secret: from-file
transactions:
  expire_after: 30m
`)
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("TICKETING_REDIS_CHECKOUT_LIMIT", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Minute, cfg.Transactions.ExpireAfter)
	assert.Equal(t, time.Minute, cfg.Transactions.SweepInterval)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, int64(3), cfg.Redis.CheckoutLimit)
	assert.Equal(t, "ticketing.notifications", cfg.RabbitMQ.Exchange)
}

func TestLoad_LegacyEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: from-file
`)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "7070", cfg.Server.Port)
}

func TestLoad_RequiresSecret(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"8080\"\n")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("TICKETING_AUTH_JWT_SECRET", "")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Auth: AuthConfig{JWTSecret: "s"}}
	}

	assert.NoError(t, base().Validate())

	c := base()
	c.Transactions.ExpireAfter = time.Minute
	assert.Error(t, c.Validate())
	c.Transactions.SweepInterval = time.Second
	assert.Error(t, c.Validate())
	c.Transactions.SweepBatch = 50
	assert.NoError(t, c.Validate())

	c = base()
	c.Redis.Addr = "localhost:6379"
	assert.Error(t, c.Validate())
	c.Redis.CheckoutLimit, c.Redis.CheckoutWindow = 5, time.Minute
	assert.NoError(t, c.Validate())
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())

	c.URL = "postgres://u:p@h/n"
	assert.Equal(t, "postgres://u:p@h/n", c.DSN())
}
