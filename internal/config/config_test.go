package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", c.Auth.JWTSecret)
	assert.Equal(t, ":8080", c.Addr())
	assert.Equal(t, 256, c.WS.SendBuffer)
	assert.Equal(t, 25*time.Second, c.PingInterval)
	assert.Equal(t, 60*time.Second, c.PongWait)
	assert.Equal(t, "chat.message.sent", c.Kafka.TopicMessageSent)
	assert.False(t, c.KafkaEnabled())
	assert.Empty(t, c.Mongo.URI)
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  port: 9090
  internal_token: abc
auth:
  jwt_secret: from-file
mongo:
  uri: mongodb://localhost:27017
  database: jobs
kafka:
  brokers: ["k1:9092", " ", "k2:9092"]
ws:
  ping_interval_seconds: 5
  pong_wait_seconds: 12
log:
  level: debug
`), 0o600))
	t.Setenv("APP_PORT", "7070")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, c.App.Port)
	assert.Equal(t, "abc", c.App.InternalToken)
	assert.Equal(t, "from-file", c.Auth.JWTSecret)
	assert.Equal(t, "jobs", c.Mongo.Database)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.KafkaEnabled())
	assert.Equal(t, 5*time.Second, c.PingInterval)
	assert.Equal(t, 12*time.Second, c.PongWait)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoadRequiresVerificationKey(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadRejectsPongBelowPing(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "x")
	t.Setenv("WS_PONG_WAIT_SECONDS", "10")
	t.Setenv("WS_PING_INTERVAL_SECONDS", "20")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "x")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
