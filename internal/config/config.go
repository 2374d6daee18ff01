// Package config loads application configuration from environment variables.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/radif/dropzone/internal/logger"
)

// Storage drivers accepted in STORAGE_DRIVER.
const (
	DriverMinio  = "minio"
	DriverS3     = "s3"
	DriverMemory = "memory"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port      string
	AppEnv    string
	LogLevel  string
	JWTSecret string // empty disables bearer auth

	// DatabaseURL points at the Postgres record ledger. Empty keeps records in memory.
	DatabaseURL string

	// Object storage (S3-compatible: MinIO locally, any S3 provider in production)
	StorageDriver     string
	StorageEndpoint   string
	StorageAccessKey  string
	StorageSecretKey  string
	StorageRegion     string
	StorageUseSSL     bool
	StoragePublicBase string // browser-accessible base URL, e.g. "http://localhost:9000"
	StorageNamespace  string
	StorageFolder     string

	UploadMaxFiles        int
	UploadMaxSize         int64
	UploadConcurrency     int
	QueueProgressInterval time.Duration

	CacheEnabled bool
	RedisURL     string
	CacheTTL     time.Duration

	ResendAPIKey string
	EmailFrom    string
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logger.Log.Debug().Msg("no .env file found, reading from environment")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	_ = v.BindEnv("APP_ENV", "APP_ENV", "ENVIRONMENT")

	return &Config{
		Port:      v.GetString("PORT"),
		AppEnv:    v.GetString("APP_ENV"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		JWTSecret: v.GetString("JWT_SECRET"),

		DatabaseURL: v.GetString("DATABASE_URL"),

		StorageDriver:     strings.ToLower(v.GetString("STORAGE_DRIVER")),
		StorageEndpoint:   v.GetString("STORAGE_ENDPOINT"),
		StorageAccessKey:  v.GetString("STORAGE_ACCESS_KEY"),
		StorageSecretKey:  v.GetString("STORAGE_SECRET_KEY"),
		StorageRegion:     v.GetString("STORAGE_REGION"),
		StorageUseSSL:     v.GetBool("STORAGE_USE_SSL"),
		StoragePublicBase: v.GetString("STORAGE_PUBLIC_BASE"),
		StorageNamespace:  v.GetString("STORAGE_NAMESPACE"),
		StorageFolder:     v.GetString("STORAGE_FOLDER"),

		UploadMaxFiles:        v.GetInt("UPLOAD_MAX_FILES"),
		UploadMaxSize:         v.GetInt64("UPLOAD_MAX_SIZE"),
		UploadConcurrency:     v.GetInt("UPLOAD_CONCURRENCY"),
		QueueProgressInterval: v.GetDuration("QUEUE_PROGRESS_INTERVAL"),

		CacheEnabled: v.GetBool("CACHE_ENABLED"),
		RedisURL:     v.GetString("REDIS_URL"),
		CacheTTL:     v.GetDuration("CACHE_TTL"),

		ResendAPIKey: v.GetString("RESEND_API_KEY"),
		EmailFrom:    v.GetString("EMAIL_FROM"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("DATABASE_URL", "")

	v.SetDefault("STORAGE_DRIVER", DriverMinio)
	v.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
	v.SetDefault("STORAGE_ACCESS_KEY", "minioadmin")
	v.SetDefault("STORAGE_SECRET_KEY", "minioadmin")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_USE_SSL", false)
	v.SetDefault("STORAGE_PUBLIC_BASE", "http://localhost:9000")
	v.SetDefault("STORAGE_NAMESPACE", "public")
	v.SetDefault("STORAGE_FOLDER", "uploads")

	v.SetDefault("UPLOAD_MAX_FILES", 5)
	v.SetDefault("UPLOAD_MAX_SIZE", 10*1024*1024)
	v.SetDefault("UPLOAD_CONCURRENCY", 4)
	v.SetDefault("QUEUE_PROGRESS_INTERVAL", 300*time.Millisecond)

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "redis://127.0.0.1:6379/0")
	v.SetDefault("CACHE_TTL", time.Minute)

	v.SetDefault("RESEND_API_KEY", "")
	v.SetDefault("EMAIL_FROM", "no-reply@updates.trytadam.com")
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
