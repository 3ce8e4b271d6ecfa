// Package config populates service settings from environment variables,
// with an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tidemark-obs/obs-ingest/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL string
	CatalogSeed string
	InputDir    string

	StudyArea domain.Region

	Workers           int
	BatchSize         int
	LocationCacheSize int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Optional post-commit Kafka sink.
	KafkaBrokers   []string
	KafkaSinkTopic string
	KafkaEnabled   bool
}

// maxBatchSize bounds BATCH_SIZE; larger batches gain nothing and bloat the
// failure blast radius.
const maxBatchSize = 10000

// defaultStudyArea is the Tasmanian shelf bounding box.
const defaultStudyArea = "-45,-39,143,150"

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	region, err := parseStudyArea(envOrDefault("STUDY_AREA", defaultStudyArea))
	if err != nil {
		return nil, err
	}

	batchSize, err := parsePositiveInt("BATCH_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	if batchSize > maxBatchSize {
		return nil, fmt.Errorf("BATCH_SIZE must be at most %d", maxBatchSize)
	}

	workers, err := parsePositiveInt("WORKERS", 4)
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("LOCATION_CACHE_SIZE", 4096)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	kafkaTopic := os.Getenv("KAFKA_SINK_TOPIC")
	kafkaEnabled := kafkaTopic != ""
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		CatalogSeed: os.Getenv("CATALOG_SEED"),
		InputDir:    os.Getenv("INPUT_DIR"),

		StudyArea: region,

		Workers:           workers,
		BatchSize:         batchSize,
		LocationCacheSize: cacheSize,

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers:   splitBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: kafkaTopic,
		KafkaEnabled:   kafkaEnabled,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.CatalogSeed == "" {
		return nil, errors.New("CATALOG_SEED is required")
	}
	if cfg.InputDir == "" {
		return nil, errors.New("INPUT_DIR is required")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_SINK_TOPIC is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}

	return cfg, nil
}

// parseStudyArea parses "latMin,latMax,lonMin,lonMax".
func parseStudyArea(s string) (domain.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Region{}, errors.New("STUDY_AREA must be latMin,latMax,lonMin,lonMax")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.Region{}, fmt.Errorf("STUDY_AREA: bad number %q", p)
		}
		vals[i] = v
	}
	r := domain.Region{LatMin: vals[0], LatMax: vals[1], LonMin: vals[2], LonMax: vals[3]}
	if r.LatMin >= r.LatMax || r.LonMin >= r.LonMax {
		return domain.Region{}, errors.New("STUDY_AREA: min must be below max")
	}
	return r, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration", key)
	}
	return d, nil
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
