package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("INGEST_IGNORED_SENDERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.SLA.MonitorInterval())
	assert.Equal(t, time.Minute, cfg.Ingestion.PollInterval())
	assert.Equal(t, 100*time.Millisecond, cfg.SLA.RegexTimeout())
	assert.Equal(t, 3, cfg.Ingestion.ConflictRetries)
	assert.Equal(t, 72*time.Hour, cfg.Ingestion.Lookback())
	assert.Empty(t, cfg.Ingestion.IgnoredSenders)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLA_MONITOR_INTERVAL_SECONDS", "30")
	t.Setenv("INGEST_IGNORED_SENDERS", " mailer-daemon@example.com, @noreply.example.com ,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.SLA.MonitorInterval())
	assert.Equal(t, []string{"mailer-daemon@example.com", "@noreply.example.com"}, cfg.Ingestion.IgnoredSenders)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsZeroConcurrency(t *testing.T) {
	t.Setenv("INGEST_TENANT_CONCURRENCY", "0")

	_, err := Load()
	assert.Error(t, err)
}
