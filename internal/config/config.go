package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Asset is the asset code the engine accepts orders for.
	Asset string

	HTTPPort    int
	MetricsPort int
	GRPCAddr    string
	NATSURL     string

	QueueSize      int
	RequestTimeout time.Duration

	Telemetry TelemetryConfig
}

type TelemetryConfig struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	LogLevel     string
}

// Load reads configuration from the environment. When envPath is set that
// file must exist and is applied first; otherwise ./.env is applied if
// present. Variables already set in the process environment win over the
// file.
func Load(envPath string) (*Config, error) {
	var err error
	if envPath != "" {
		if err = godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envPath, err)
		}
	} else if err = godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{
		Asset:    strings.TrimSpace(getEnv("ASSET", "")),
		GRPCAddr: getEnv("GRPC_ADDR", ":3050"),
		NATSURL:  getEnv("NATS_URL", ""),
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("SERVICE_NAME", "matching-engine"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			LogLevel:     getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.HTTPPort, err = getEnvInt("HTTP_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.MetricsPort, err = getEnvInt("METRICS_PORT", 9090); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = getEnvInt("QUEUE_SIZE", 4096); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges. An empty Asset is allowed here; the server
// requires one from either the environment or its arguments.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("METRICS_PORT out of range: %d", c.MetricsPort)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("QUEUE_SIZE must not be negative: %d", c.QueueSize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive: %s", c.RequestTimeout)
	}
	switch strings.ToLower(c.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error: %q", c.Telemetry.LogLevel)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
