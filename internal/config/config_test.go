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

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, "9001", cfg.GRPCPort)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "audit_logs", cfg.Kafka.Topic)
	assert.Equal(t, "permissive", cfg.Policy.Transitions)
	assert.False(t, cfg.Policy.RequireVersion)
	assert.False(t, cfg.ExportEnabled())
	assert.Empty(t, cfg.AuditExportTopic())
	assert.Equal(t, 2*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 1000, cfg.Cache.Capacity)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CATALOG_HTTP_PORT", "8080")
	t.Setenv("CATALOG_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("CATALOG_POLICY_TRANSITIONS", "Strict")
	t.Setenv("CATALOG_POLICY_REQUIRE_VERSION", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.ExportEnabled())
	assert.Equal(t, "audit_logs", cfg.AuditExportTopic())
	assert.Equal(t, "strict", cfg.Policy.Transitions)
	assert.True(t, cfg.Policy.RequireVersion)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "db:\n  host: pg.internal\n  name: shop\noutbox:\n  batch_size: 7\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "pg.internal", cfg.DB.Host)
	assert.Equal(t, "shop", cfg.DB.Name)
	assert.Equal(t, 7, cfg.Outbox.BatchSize)
}

func TestLoad_InvalidTransitions(t *testing.T) {
	t.Setenv("CATALOG_POLICY_TRANSITIONS", "anything-goes")

	_, err := Load("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "policy.transitions")
}

func TestLoad_NegativeCacheCapacity(t *testing.T) {
	t.Setenv("CATALOG_CACHE_CAPACITY", "-1")

	_, err := Load("")
	assert.ErrorContains(t, err, "cache.capacity")
}
