package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"STORAGE_DRIVER", "CACHE_TTL_SECONDS", "KAFKA_BROKERS", "AUTH_ENABLED", "STATS_WINDOW_HOURS", "WEBHOOK_TIMEOUT_SECONDS", "WEBHOOK_MAX_RETRIES", "WEBHOOK_WORKERS", "WEBHOOK_QUEUE_SIZE", "WORKER_MAX_RETRIES"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, "postgres", cfg.StorageDriver)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.AuthEnabled)
	assert.Equal(t, 24*time.Hour, cfg.StatsWindow)
	assert.Equal(t, "audit.events", cfg.KafkaEventsTopic)
	assert.Equal(t, 15*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, 2, cfg.WebhookMaxRetries)
	assert.Equal(t, 4, cfg.WebhookWorkers)
	assert.Equal(t, 1024, cfg.WebhookQueueSize)
	assert.Equal(t, 8, cfg.WorkerMaxRetries)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "SQLite")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("STATS_REFRESH_INTERVAL_MINUTES", "5")
	t.Setenv("API_CLIENTS", "ingest:writer:$2a$10$abc,bad-entry,ui:reader:$2a$10$def")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.StorageDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.AuthEnabled)
	assert.Equal(t, 5*time.Minute, cfg.StatsRefreshInterval)
	assert.Len(t, cfg.APIClients, 2)

	cl, ok := cfg.Client("ingest")
	assert.True(t, ok)
	assert.Equal(t, "writer", cl.Role)
	assert.Equal(t, "$2a$10$abc", cl.SecretHash)

	_, ok = cfg.Client("bad-entry")
	assert.False(t, ok)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "notanumber")
	t.Setenv("X_BOOL", "yes please")
	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.True(t, getEnvBool("X_BOOL", true))
	assert.Equal(t, "fallback", getEnv("X_MISSING_FOR_TEST", "fallback"))
}

func TestValidateResetsUnknownDriver(t *testing.T) {
	cfg := &Config{StorageDriver: "mongo", JWTSecret: "s", AllowedOrigins: "https://a"}
	cfg.Validate(zap.NewNop())
	assert.Equal(t, "postgres", cfg.StorageDriver)
}
