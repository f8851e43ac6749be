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

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
)

// Config holds all runtime configuration for the market simulator.
type Config struct {
	Port             int
	LogLevel         string
	StoreBackend     string
	DataDir          string
	RedisAddr        string
	KafkaBrokers     []string
	KafkaTopic       string
	TickWebhookURL   string
	WebhookTimeout   time.Duration
	TickInterval     time.Duration
	GeneratorWorkers int
	Seed             uint64
	CORSOrigins      []string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
//
// Before reading the environment it loads the dotenv file named by ENV_FILE
// (default ".env"). A missing file is ignored and variables already set in
// the environment take precedence over the file.
func Load() (*Config, error) {
	envFile := getStr("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	backend := getStr("STORE_BACKEND", BackendMemory)
	if backend != BackendMemory && backend != BackendPebble {
		return nil, fmt.Errorf("invalid STORE_BACKEND: %q, must be one of: memory, pebble", backend)
	}

	webhookTimeout, err := getDuration("WEBHOOK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	tickInterval, err := getDuration("TICK_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid TICK_INTERVAL: %w", err)
	}
	if tickInterval < 0 {
		return nil, fmt.Errorf("invalid TICK_INTERVAL: %v, must not be negative", tickInterval)
	}

	workers, err := getInt("GENERATOR_WORKERS", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid GENERATOR_WORKERS: %w", err)
	}
	if workers < 1 {
		return nil, fmt.Errorf("invalid GENERATOR_WORKERS: %d, must be at least 1", workers)
	}

	seed, err := getUint64("SEED", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid SEED: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:             port,
		LogLevel:         logLevel,
		StoreBackend:     backend,
		DataDir:          getStr("DATA_DIR", "data"),
		RedisAddr:        getStr("REDIS_ADDR", ""),
		KafkaBrokers:     getList("KAFKA_BROKERS", nil),
		KafkaTopic:       getStr("KAFKA_TOPIC", "simulation.ticks"),
		TickWebhookURL:   getStr("TICK_WEBHOOK_URL", ""),
		WebhookTimeout:   webhookTimeout,
		TickInterval:     tickInterval,
		GeneratorWorkers: workers,
		Seed:             seed,
		CORSOrigins:      getList("CORS_ORIGINS", []string{"*"}),
		ReadTimeout:      readTimeout,
		WriteTimeout:     writeTimeout,
		IdleTimeout:      idleTimeout,
		ShutdownTimeout:  shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getUint64(key string, defaultVal uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getList splits a comma-separated value, dropping empty entries.
func getList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
