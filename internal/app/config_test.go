package app

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("EVENTS_SINK", "none")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 30*time.Second, cfg.AppRequestTimeout)
	require.Equal(t, "*/15 * * * *", cfg.LedgerRebuildCron)
	require.True(t, cfg.SeedDemoData)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigKafkaSink(t *testing.T) {
	t.Setenv("EVENTS_SINK", "Kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("JOBS_ENABLED", "false")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, EventsSinkKafka, cfg.EventsSink)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.False(t, cfg.NeedsRedis())
}

func TestLoadConfigRejectsUnknownSink(t *testing.T) {
	t.Setenv("EVENTS_SINK", "carrier-pigeon")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "carrier-pigeon")
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "production", LogFormat: "json"})
	logger.Info("ledger rebuilt")
	logger.Debug("hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "ledger rebuilt", line["msg"])
	require.Equal(t, "facilitydesk", line["service"])
	require.Equal(t, "production", line["env"])
}
