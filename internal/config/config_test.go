package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Empty(t, cfg.Server.CORSAllowedOrigins)

	assert.Equal(t, "localhost", cfg.Database.Postgres.Host)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "file://migrations", cfg.Database.MigrationsPath)
	assert.Equal(t, 10*time.Second, cfg.Database.WriteTimeout)

	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)
	assert.Equal(t, "devicehub:presence", cfg.Redis.Key)

	assert.Empty(t, cfg.Stream.JWTSecret)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)

	assert.Equal(t, time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Sweeper.Threshold)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
  write_timeout: 30s
  cors_allowed_origins:
    - https://dash.example.com
    - "*.iot.example.com"
database:
  postgres:
    host: db.internal
    port: 5433
    database: devices
nats:
  enabled: false
mqtt:
  enabled: true
  broker: tcp://emqx:1883
sweeper:
  threshold: 5m
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"https://dash.example.com", "*.iot.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, 5433, cfg.Database.Postgres.Port)
	assert.Equal(t, "devices", cfg.Database.Postgres.Database)
	assert.False(t, cfg.NATS.Enabled)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://emqx:1883", cfg.MQTT.Broker)
	assert.Equal(t, 5*time.Minute, cfg.Sweeper.Threshold)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DEVICEHUB_SERVER_PORT", "7000")
	t.Setenv("DEVICEHUB_STREAM_JWT_SECRET", "s3cret")
	t.Setenv("DEVICEHUB_SERVER_CORS_ALLOWED_ORIGINS", "http://localhost:3000,https://dash.example.com")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000", "https://dash.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "s3cret", cfg.Stream.JWTSecret)
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Setenv("EMQX_API_KEY", "key")
	t.Setenv("EMQX_SECRET_KEY", "secret")
	t.Setenv("DB_HOST", "legacy-db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "iot")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "iot_db")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.EMQX.APIKey)
	assert.Equal(t, "secret", cfg.EMQX.SecretKey)
	assert.Equal(t, "legacy-db", cfg.Database.Postgres.Host)
	assert.Equal(t, 6543, cfg.Database.Postgres.Port)
	assert.Equal(t, "iot", cfg.Database.Postgres.User)
	assert.Equal(t, "pw", cfg.Database.Postgres.Password)
	assert.Equal(t, "iot_db", cfg.Database.Postgres.Database)
}

func TestLoad_PrefixedBeatsLegacy(t *testing.T) {
	t.Setenv("DB_HOST", "legacy-db")
	t.Setenv("DEVICEHUB_DATABASE_POSTGRES_HOST", "new-db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "new-db", cfg.Database.Postgres.Host)
}

func TestConnString(t *testing.T) {
	p := PostgresConfig{
		Host:     "db",
		Port:     5432,
		User:     "iot",
		Password: "p@ss word",
		Database: "iot_platform",
		SSLMode:  "disable",
	}
	assert.Equal(t, "postgres://iot:p%40ss%20word@db:5432/iot_platform?sslmode=disable", p.ConnString())
}
