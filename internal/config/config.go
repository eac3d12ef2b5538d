package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL       string
	JWTSecret         string
	Port              string
	FCMServiceAccount string

	// KVBackend selects where goal and log blobs live: sql, redis or memory.
	KVBackend     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel string
	LogFile  string

	GoalCooldown                 time.Duration
	ActiveGoalCount              int
	RetainUnconsumedReplacements bool
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DatabaseURL:       getEnv("DATABASE_URL", "gutgoals.db"),
		JWTSecret:         getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		Port:              getEnv("PORT", "8080"),
		FCMServiceAccount: getEnv("FCM_SERVICE_ACCOUNT", ""),

		KVBackend:     getEnv("KV_BACKEND", "sql"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		GoalCooldown:                 getEnvDuration("GOAL_COOLDOWN", 24*time.Hour),
		ActiveGoalCount:              getEnvInt("ACTIVE_GOAL_COUNT", 3),
		RetainUnconsumedReplacements: getEnvBool("RETAIN_UNCONSUMED_REPLACEMENTS", false),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
