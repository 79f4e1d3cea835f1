package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.ProductDir)
	assert.Equal(t, "ODC.REF_", cfg.ProductPrefix)
	assert.Equal(t, 30*time.Second, cfg.ProductPollInterval)
	assert.Equal(t, "hail_events.csv", cfg.EventLogPath)
	assert.Equal(t, domain.DefaultThresholds(), cfg.Thresholds)
	assert.Equal(t, domain.DefaultGeometry(), cfg.Geometry)
	assert.Equal(t, 4, cfg.GridCacheSize)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "radar-products", cfg.KafkaSourceTopic)
	assert.Equal(t, "hail-events", cfg.KafkaSinkTopic)
	assert.Equal(t, "hail-etl", cfg.KafkaGroupID)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("PRODUCT_DIR", "/data/odc")
	t.Setenv("PRODUCT_PREFIX", "TEST_")
	t.Setenv("PRODUCT_POLL_INTERVAL", "1m")
	t.Setenv("EVENT_LOG_PATH", "/var/lib/hail/events.csv")
	t.Setenv("DBZ_MIN", "60")
	t.Setenv("DBZ_MAX", "75.5")
	t.Setenv("QIND_MIN", "0.5")
	t.Setenv("GRID_XSIZE", "100")
	t.Setenv("GRID_YSIZE", "50")
	t.Setenv("GRID_CACHE_SIZE", "2")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SOURCE_TOPIC", "custom-source")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/odc", cfg.ProductDir)
	assert.Equal(t, "TEST_", cfg.ProductPrefix)
	assert.Equal(t, time.Minute, cfg.ProductPollInterval)
	assert.Equal(t, "/var/lib/hail/events.csv", cfg.EventLogPath)
	assert.Equal(t, domain.ThresholdConfig{ReflectivityMin: 60, ReflectivityMax: 75.5, QualityMin: 0.5}, cfg.Thresholds)
	assert.Equal(t, 100, cfg.Geometry.Columns)
	assert.Equal(t, 50, cfg.Geometry.Rows)
	assert.Equal(t, 2, cfg.GridCacheSize)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-source", cfg.KafkaSourceTopic)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1*time.Second, cfg.BatchFlushInterval)
}

func TestLoad_GridOrigin(t *testing.T) {
	t.Setenv("GRID_LAT_0", "52")
	t.Setenv("GRID_LON_0", "-0.5")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, domain.LatLon{Lat: 52, Lon: -0.5}, cfg.Geometry.Origin)
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration", "SHUTDOWN_TIMEOUT"},
		{"SHUTDOWN_TIMEOUT", "-1s", "SHUTDOWN_TIMEOUT"},
		{"BATCH_SIZE", "0", "BATCH_SIZE"},
		{"BATCH_SIZE", "9999", "BATCH_SIZE"},
		{"BATCH_FLUSH_INTERVAL", "not-a-duration", "BATCH_FLUSH_INTERVAL"},
		{"DBZ_MIN", "sixty", "DBZ_MIN"},
		{"DBZ_MIN", "90", "thresholds"},
		{"QIND_MIN", "1.5", "thresholds"},
		{"GRID_XSIZE", "-4", "GRID_XSIZE"},
		{"GRID_XSCALE", "0", "grid geometry"},
		{"GRID_LL_LAT", "95", "grid geometry"},
		{"GRID_CACHE_SIZE", "none", "GRID_CACHE_SIZE"},
		{"PRODUCT_POLL_INTERVAL", "0s", "PRODUCT_POLL_INTERVAL"},
		{"KAFKA_ENABLED", "maybe", "KAFKA_ENABLED"},
	}

	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_KafkaDisabledIgnoresBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " , ")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled)
	assert.Empty(t, cfg.KafkaBrokers)
}
