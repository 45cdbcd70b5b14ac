package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces every environment variable, e.g. METPREP_LOG_LEVEL.
const envPrefix = "METPREP"

var validate = validator.New()

// Config holds the service settings, populated from environment variables.
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`

	KafkaEnabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092" validate:"required_if=KafkaEnabled true,dive,hostname_port"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"processed-weather-observations" validate:"required_if=KafkaEnabled true"`

	// SQLitePath enables the run store when set.
	SQLitePath string `envconfig:"SQLITE_PATH"`
	// MetricsTextfile is written at the end of every run when set.
	MetricsTextfile string `envconfig:"METRICS_TEXTFILE"`

	SinkRetryMaxElapsed time.Duration `envconfig:"SINK_RETRY_MAX_ELAPSED" default:"30s" validate:"gte=0"`
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
