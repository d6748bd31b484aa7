// Package config loads service settings from environment variables and the
// analysis definition from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds service-level settings, populated from environment variables.
type Config struct {
	DatabasePath    string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Ingestion.
	IngestWorkers  int
	SourceLocation string // IANA zone for wall-clock raw timestamps

	// Zone reference data.
	ZoneFile     string
	ZoneIDProp   string
	ZoneNameProp string
	ZoneCRS      string
	// ZoneTolerance is the edge buffer in degrees for near-miss points.
	ZoneTolerance float64

	// Optional Kafka publishing of correlation results.
	KafkaBrokers      []string
	KafkaResultsTopic string
	KafkaEnabled      bool
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	workers, err := parsePositiveInt("INGEST_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	tolerance := 0.0
	if s := os.Getenv("ZONE_TOLERANCE_DEGREES"); s != "" {
		tolerance, err = strconv.ParseFloat(s, 64)
		if err != nil || tolerance < 0 {
			return nil, errors.New("invalid ZONE_TOLERANCE_DEGREES")
		}
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		DatabasePath:    envOrDefault("DATABASE_PATH", "citysignal.db"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		IngestWorkers:  workers,
		SourceLocation: envOrDefault("SOURCE_TIMEZONE", "America/New_York"),

		ZoneFile:      os.Getenv("ZONE_FILE"),
		ZoneIDProp:    envOrDefault("ZONE_ID_PROPERTY", "LocationID"),
		ZoneNameProp:  envOrDefault("ZONE_NAME_PROPERTY", "zone"),
		ZoneCRS:       envOrDefault("ZONE_CRS", "EPSG:4326"),
		ZoneTolerance: tolerance,

		KafkaBrokers:      brokers,
		KafkaResultsTopic: envOrDefault("KAFKA_RESULTS_TOPIC", "correlation-results"),
		KafkaEnabled:      kafkaEnabled,
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if _, err := time.LoadLocation(cfg.SourceLocation); err != nil {
		return nil, fmt.Errorf("invalid SOURCE_TIMEZONE %q: %w", cfg.SourceLocation, err)
	}

	return cfg, nil
}

// Location returns the parsed source time zone. Load validated it.
func (c *Config) Location() *time.Location {
	loc, _ := time.LoadLocation(c.SourceLocation)
	return loc
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
