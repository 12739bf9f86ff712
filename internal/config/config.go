package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything the admin console needs to reach its collaborators.
type Config struct {
	APIBaseURL  string
	StreamURL   string
	MetricsAddr string

	KafkaBrokers       []string
	AuditTopic         string
	AuditWorkers       int
	AuditBatchSize     int
	AuditFlushInterval time.Duration

	RequestTimeout time.Duration
}

func loadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Error getting working directory: %v", err)
		return
	}

	possiblePaths := []string{
		filepath.Join(wd, ".env"),
		filepath.Join(wd, "..", ".env"),
		filepath.Join(wd, "..", "..", ".env"),
	}

	for _, envPath := range possiblePaths {
		if err := godotenv.Load(envPath); err == nil {
			log.Printf("Loaded environment variables from %s", envPath)
			return
		}
	}
}

// Load reads configuration from the environment, looking for a .env file in
// the working directory and its parents first. Every value has a default
// suitable for local development.
func Load() Config {
	loadEnv()

	return Config{
		APIBaseURL:  getEnv("ADMIN_API_URL", "http://localhost:5000"),
		StreamURL:   getEnv("ADMIN_STREAM_URL", "ws://localhost:5000/ws"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9100"),

		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "")),
		AuditTopic:         getEnv("AUDIT_TOPIC", "staff_audit"),
		AuditWorkers:       getEnvInt("AUDIT_WORKERS", 2),
		AuditBatchSize:     getEnvInt("AUDIT_BATCH_SIZE", 5),
		AuditFlushInterval: getEnvDuration("AUDIT_FLUSH_INTERVAL", 500*time.Millisecond),

		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, raw, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %s", key, raw, fallback)
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
