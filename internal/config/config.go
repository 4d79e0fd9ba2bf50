package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret  string
	ServerPort string

	CORSOrigins []string

	// Requests allowed per client IP per window, API-wide and for the
	// stricter auth endpoints.
	RateLimitMax        int
	RateLimitWindowSec  int
	AuthRateLimitMax    int
	AuthRateLimitWindow int

	// Background maintenance.
	SweepIntervalMin     int
	SessionRetentionDays int
}

func Load() *Config {
	// Missing .env is fine; the environment may be set by the deployment.
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "rotation"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:  getEnv("JWT_SECRET", "super-secret-key-change-me"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		CORSOrigins: []string{getEnv("CORS_ORIGIN", "*")},

		RateLimitMax:        getEnvInt("RATE_LIMIT_MAX", 100),
		RateLimitWindowSec:  getEnvInt("RATE_LIMIT_WINDOW_SEC", 60),
		AuthRateLimitMax:    getEnvInt("AUTH_RATE_LIMIT_MAX", 10),
		AuthRateLimitWindow: getEnvInt("AUTH_RATE_LIMIT_WINDOW_SEC", 60),

		SweepIntervalMin:     getEnvInt("SWEEP_INTERVAL_MIN", 60),
		SessionRetentionDays: getEnvInt("SESSION_RETENTION_DAYS", 30),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}
