package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	AllowedOrigins []string

	ReplicateAPIToken     string
	ReplicateBaseURL      string
	ReplicateModelVersion string
	PollInterval          time.Duration
	PollMaxAttempts       int

	QuotaBackend  string // postgres | redis | memory
	DailyQuota    int
	RedisAddr     string
	RedisPassword string

	StorageBackend string // s3 | filesystem
	StoragePath    string
	StorageBaseURL string
	SignedURLTTL   time.Duration
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UseSSL       bool

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RequestTimeout   time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		ReplicateAPIToken:     os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:      getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateModelVersion: getEnv("REPLICATE_MODEL_VERSION", ""),
		PollInterval:          time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 1)),
		PollMaxAttempts:       getEnvInt("POLL_MAX_ATTEMPTS", 3),

		QuotaBackend:  getEnv("QUOTA_BACKEND", "postgres"),
		DailyQuota:    getEnvInt("DAILY_QUOTA", 10),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		StorageBackend: getEnv("STORAGE_BACKEND", "filesystem"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage/images"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		SignedURLTTL:   time.Hour * time.Duration(getEnvInt("SIGNED_URL_TTL_HOURS", 72)),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3Region:       os.Getenv("S3_REGION"),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3AccessKey:    os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("S3_SECRET_KEY"),
		S3UseSSL:       getEnv("S3_USE_SSL", "true") != "false",

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RequestTimeout:   time.Second * time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 240)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.ReplicateAPIToken == "" {
		return nil, fmt.Errorf("REPLICATE_API_TOKEN is required")
	}
	if cfg.StorageBackend == "s3" {
		if cfg.S3Endpoint == "" || cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_ENDPOINT and S3_BUCKET are required when STORAGE_BACKEND=s3")
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
