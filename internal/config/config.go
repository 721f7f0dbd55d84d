package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration loaded from the environment.
type Config struct {
	Kafka struct {
		Brokers         []string
		Topic           string
		GroupID         string
		DeadLetterTopic string
	}
	DB struct {
		DSN string
	}
	Pipeline struct {
		Workers       int
		QueueCapacity int
	}
	HTTP struct {
		Addr string
	}
	LogLevel string
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (*Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}

	cfg.Kafka.Brokers = strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", "sensor-readings")
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", "analysis-service")
	cfg.Kafka.DeadLetterTopic = getEnv("KAFKA_DEAD_LETTER_TOPIC", cfg.Kafka.Topic+".deadletter")

	cfg.DB.DSN = os.Getenv("DB_DSN")

	cfg.Pipeline.Workers = getEnvInt("PIPELINE_WORKERS", 4)
	cfg.Pipeline.QueueCapacity = getEnvInt("PIPELINE_QUEUE_CAPACITY", 10)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	var missing []string
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if cfg.Pipeline.Workers <= 0 {
		return nil, fmt.Errorf("PIPELINE_WORKERS must be positive, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.QueueCapacity <= 0 {
		return nil, fmt.Errorf("PIPELINE_QUEUE_CAPACITY must be positive, got %d", cfg.Pipeline.QueueCapacity)
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
