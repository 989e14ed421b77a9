package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	Port                  string
	StoreDriver           string
	MongoURI              string
	DBName                string
	JWTSecret             string
	AccessTokenTTL        time.Duration
	LocalCachePath        string
	CacheTTL              time.Duration
	TaxRate               float64
	LowStockDefault       int
	PingTimeout           time.Duration
	OfflineReplaySchedule string
	CacheRefreshSchedule  string
	LogLevel              string
	LogMode               string
	LogFile               string
	AdminEmail            string
	AdminPassword         string
}

// Load reads .env (if present) and the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() Config {
	return Config{
		Port:                  getEnvOrDefault("PORT", "8080"),
		StoreDriver:           strings.ToLower(getEnvOrDefault("STORE_DRIVER", DriverMongo)),
		MongoURI:              getEnvOrDefault("MONGO_URI", ""),
		DBName:                getEnvOrDefault("DB_NAME", "pos"),
		JWTSecret:             getEnvOrDefault("JWT_SECRET", ""),
		AccessTokenTTL:        getDurationEnv("ACCESS_TOKEN_TTL", 720, time.Minute),
		LocalCachePath:        getEnvOrDefault("LOCAL_CACHE_PATH", "data/pos-cache.db"),
		CacheTTL:              getDurationEnv("CACHE_TTL", 24, time.Hour),
		TaxRate:               getFloatEnv("TAX_RATE", 0.05),
		LowStockDefault:       getIntEnv("LOW_STOCK_DEFAULT", 10),
		PingTimeout:           getDurationEnv("PING_TIMEOUT", 2, time.Second),
		OfflineReplaySchedule: getScheduleEnv("OFFLINE_REPLAY_SCHEDULE", "@every 5m"),
		CacheRefreshSchedule:  getScheduleEnv("CACHE_REFRESH_SCHEDULE", "@every 15m"),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
		LogMode:               getEnvOrDefault("LOG_MODE", "development"),
		LogFile:               getEnvOrDefault("LOG_FILE", ""),
		AdminEmail:            getEnvOrDefault("ADMIN_EMAIL", ""),
		AdminPassword:         getEnvOrDefault("ADMIN_PASSWORD", ""),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getScheduleEnv distinguishes "unset" (default) from "set to empty" (disabled).
func getScheduleEnv(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return strings.TrimSpace(value)
}

func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := cast.ToIntE(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := cast.ToFloat64E(value); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	return time.Duration(getIntEnv(key, defaultValue)) * unit
}
