package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	ProductDir          string
	ProductPrefix       string
	ProductPollInterval time.Duration
	EventLogPath        string

	Thresholds    domain.ThresholdConfig
	Geometry      domain.GridGeometry
	GridCacheSize int

	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is read first; variables already set
// in the environment take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	pollInterval, err := parseDuration("PRODUCT_POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	thresholds, err := parseThresholds()
	if err != nil {
		return nil, err
	}

	geometry, err := parseGeometry()
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("GRID_CACHE_SIZE", 4)
	if err != nil {
		return nil, err
	}

	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProductDir:          sharedcfg.EnvOrDefault("PRODUCT_DIR", "."),
		ProductPrefix:       sharedcfg.EnvOrDefault("PRODUCT_PREFIX", "ODC.REF_"),
		ProductPollInterval: pollInterval,
		EventLogPath:        sharedcfg.EnvOrDefault("EVENT_LOG_PATH", "hail_events.csv"),

		Thresholds:    thresholds,
		Geometry:      geometry,
		GridCacheSize: cacheSize,

		KafkaEnabled:     kafkaEnabled,
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "radar-products"),
		KafkaSinkTopic:   sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "hail-events"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "hail-etl"),

		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

func parseThresholds() (domain.ThresholdConfig, error) {
	def := domain.DefaultThresholds()
	var t domain.ThresholdConfig
	var err error
	if t.ReflectivityMin, err = parseFloat("DBZ_MIN", def.ReflectivityMin); err != nil {
		return t, err
	}
	if t.ReflectivityMax, err = parseFloat("DBZ_MAX", def.ReflectivityMax); err != nil {
		return t, err
	}
	if t.QualityMin, err = parseFloat("QIND_MIN", def.QualityMin); err != nil {
		return t, err
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("invalid thresholds: %w", err)
	}
	return t, nil
}

func parseGeometry() (domain.GridGeometry, error) {
	g := domain.DefaultGeometry()
	floats := []struct {
		key string
		dst *float64
	}{
		{"GRID_XSCALE", &g.CellSizeX},
		{"GRID_YSCALE", &g.CellSizeY},
		{"GRID_LL_LAT", &g.LowerLeft.Lat},
		{"GRID_LL_LON", &g.LowerLeft.Lon},
		{"GRID_UR_LAT", &g.UpperRight.Lat},
		{"GRID_UR_LON", &g.UpperRight.Lon},
		{"GRID_LAT_0", &g.Origin.Lat},
		{"GRID_LON_0", &g.Origin.Lon},
	}
	for _, f := range floats {
		v, err := parseFloat(f.key, *f.dst)
		if err != nil {
			return g, err
		}
		*f.dst = v
	}

	var err error
	if g.Columns, err = parsePositiveInt("GRID_XSIZE", g.Columns); err != nil {
		return g, err
	}
	if g.Rows, err = parsePositiveInt("GRID_YSIZE", g.Rows); err != nil {
		return g, err
	}
	if err := g.Validate(); err != nil {
		return g, fmt.Errorf("invalid grid geometry: %w", err)
	}
	return g, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
