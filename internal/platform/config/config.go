package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration for the audit service.
type Config struct {
	Addr          string
	DatabaseURL   string
	Redis         RedisConfig
	KafkaBrokers  []string
	KafkaTopic    string
	JWTSigningKey string

	BatchSize      int
	FlushInterval  time.Duration
	BufferCapacity int
	SweepInterval  time.Duration
}

// RedisConfig holds connection settings for the recent-events cache.
// An empty URL disables the cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:          envString("FLOWAUDIT_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("FLOWAUDIT_DATABASE_URL"),
		KafkaBrokers:  envList("FLOWAUDIT_KAFKA_BROKERS"),
		KafkaTopic:    envString("FLOWAUDIT_KAFKA_TOPIC", "audit.events"),
		JWTSigningKey: envString("FLOWAUDIT_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Redis: RedisConfig{
			URL:          os.Getenv("FLOWAUDIT_REDIS_URL"),
			PoolSize:     envInt("FLOWAUDIT_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("FLOWAUDIT_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("FLOWAUDIT_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("FLOWAUDIT_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("FLOWAUDIT_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		BatchSize:      envInt("FLOWAUDIT_BATCH_SIZE", 100),
		FlushInterval:  envDuration("FLOWAUDIT_FLUSH_INTERVAL", 5*time.Second),
		BufferCapacity: envInt("FLOWAUDIT_BUFFER_CAPACITY", 10000),
		SweepInterval:  envDuration("FLOWAUDIT_SWEEP_INTERVAL", 24*time.Hour),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
