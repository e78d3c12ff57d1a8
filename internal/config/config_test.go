package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ConfigYAML(t *testing.T) {
	path := filepath.Join("..", "..", "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Database.Host, "expected database.host to be set")
	assert.NotZero(t, cfg.RabbitMQ.Port, "expected rabbitmq.port to be set")
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.False(t, cfg.Orders.EnforceTransitions)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  host: db
  database: foodhub
`))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "migrations", cfg.Database.Migrations)
	assert.Equal(t, 8, cfg.Orders.LookupConcurrency)
	assert.Equal(t, 16, cfg.Realtime.BufferSize)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Equal(t, time.Minute, cfg.Redis.PendingTTL)
	assert.False(t, cfg.BrokerEnabled())
	assert.Zero(t, cfg.RabbitMQ.Port)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "pg.internal")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("REDIS_ADDR", "cache:6379")

	cfg, err := Parse([]byte(`
database:
  host: localhost
  database: foodhub
`))
	require.NoError(t, err)

	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, "postgres://:@pg.internal:6543/foodhub?sslmode=disable", cfg.DatabaseURL())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing host", yaml: "database:\n  database: foodhub\n"},
		{name: "missing database", yaml: "database:\n  host: db\n"},
		{name: "bad port", yaml: "server:\n  port: 70000\ndatabase:\n  host: db\n  database: x\n"},
		{name: "malformed yaml", yaml: "database: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_BadEnvPort(t *testing.T) {
	t.Setenv("POSTGRES_PORT", "abc")
	_, err := Parse([]byte("database:\n  host: db\n  database: x\n"))
	assert.Error(t, err)
}
