// Package config loads the service configuration from environment variables.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	MongoURI            string
	MongoDB             string
	DocumentsCollection string

	// RedisAddr empty disables session lifecycle publishing.
	RedisAddr string

	JWTSecret string

	CORSOrigin string

	SaveDebounce   time.Duration
	StorageTimeout time.Duration
	ShutdownGrace  time.Duration
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:                getEnvOrDefault("PORT", "8080"),
		MongoURI:            getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:             getEnvOrDefault("MONGO_DB", "docsync"),
		DocumentsCollection: getEnvOrDefault("DOCUMENTS_COLLECTION", "documents"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		CORSOrigin:          getEnvOrDefault("CORS_ORIGIN", "*"),
		SaveDebounce:        getEnvMillis("SAVE_DEBOUNCE_MS", 2000),
		StorageTimeout:      getEnvMillis("STORAGE_TIMEOUT_MS", 5000),
		ShutdownGrace:       getEnvMillis("SHUTDOWN_GRACE_MS", 15000),
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if cfg.SaveDebounce <= 0 {
		return errors.New("SAVE_DEBOUNCE_MS must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return time.Duration(defaultValue) * time.Millisecond
}
