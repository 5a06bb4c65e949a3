package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port    string
	Env     string
	BaseURL string

	// Storage
	StoreDriver string
	StoreDir    string
	DatabaseURL string

	// Redis (store backend and result notifications)
	RedisURL string

	// Token signing and secrets at rest
	SecretKey string

	// Activity media
	VideoBaseURL string

	// Frontend (CORS)
	FrontendURL string

	// Optional YAML file with evaluation criteria applied at startup
	CriteriaFile string

	// Grade delivery
	OutcomeTimeout      time.Duration
	GradeRetryWorkers   int
	GradeRetryInterval  time.Duration
	GradeRetryAttempts  int
	UploadTokenLifetime time.Duration
}

const devSecretKey = "orthobox-development-secret-change-me"

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                getEnvOrDefault("PORT", "8128"),
		Env:                 getEnvOrDefault("ENV", "development"),
		BaseURL:             strings.TrimRight(getEnvOrDefault("BASE_URL", ""), "/"),
		StoreDriver:         strings.ToLower(getEnvOrDefault("STORE_DRIVER", "sqlite")),
		StoreDir:            getEnvOrDefault("STORE_DIR", getEnvOrDefault("LMDB_DATADIR", "lmdb_data")),
		DatabaseURL:         getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:            getEnvOrDefault("REDIS_URL", ""),
		SecretKey:           getEnvOrDefault("SECRET_KEY", devSecretKey),
		VideoBaseURL:        strings.TrimRight(getEnvOrDefault("VIDEO_BASE_URL", "http://staging.xlms.org/videos"), "/"),
		FrontendURL:         getEnvOrDefault("FRONTEND_URL", "*"),
		CriteriaFile:        getEnvOrDefault("CRITERIA_FILE", ""),
		OutcomeTimeout:      time.Duration(getEnvAsIntOrDefault("OUTCOME_TIMEOUT_SECONDS", 10)) * time.Second,
		GradeRetryWorkers:   getEnvAsIntOrDefault("GRADE_RETRY_WORKERS", 2),
		GradeRetryInterval:  time.Duration(getEnvAsIntOrDefault("GRADE_RETRY_INTERVAL_SECONDS", 60)) * time.Second,
		GradeRetryAttempts:  getEnvAsIntOrDefault("GRADE_RETRY_MAX_ATTEMPTS", 10),
		UploadTokenLifetime: time.Duration(getEnvAsIntOrDefault("UPLOAD_TOKEN_HOURS", 24)) * time.Hour,
	}

	switch cfg.StoreDriver {
	case "postgres":
		cfg.DatabaseURL = mustGetEnv("DATABASE_URL")
	case "redis":
		cfg.RedisURL = mustGetEnv("REDIS_URL")
	}

	if cfg.IsProduction() && cfg.SecretKey == devSecretKey {
		panic("SECRET_KEY must be set in production")
	}

	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
