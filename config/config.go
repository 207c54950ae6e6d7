package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr string
	JWTSecret  string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// 内容审核配置
	AnalyzerBaseURL string
	AnalyzerAPIKey  string
	// FlagThreshold is the confidence at or above which an automated verdict
	// flags a track instead of marking it clean.
	FlagThreshold float64
	// BadgeThreshold is the confidence at or above which the owner-facing
	// badge carries the confidence value even for clean/approved tracks.
	BadgeThreshold  float64
	WorkerInterval  time.Duration
	WorkerBatchSize int
	AnalysisTimeout time.Duration
	// ReclaimAfter is how long a row may sit in 'checking' before the worker
	// takes the claim back (a previous run died mid-batch).
	ReclaimAfter time.Duration
	// StaleThreshold is the age past which an unprogressed row is reported to
	// operators. Stale rows are never auto-resolved.
	StaleThreshold time.Duration
	AppealMinLen   int
	AppealMaxLen   int
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration gets an environment variable as time.Duration or returns a default value.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		JWTSecret:  getEnv("JWT_SECRET", "soundbridge-dev-secret"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "soundbridge"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// MinIO配置
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "soundbridge"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		// 内容审核配置
		AnalyzerBaseURL: getEnv("ANALYZER_BASE_URL", "http://localhost:3300"),
		AnalyzerAPIKey:  os.Getenv("ANALYZER_API_KEY"),
		FlagThreshold:   getEnvFloat("MODERATION_FLAG_THRESHOLD", 0.5),
		BadgeThreshold:  getEnvFloat("MODERATION_BADGE_THRESHOLD", 0.5),
		WorkerInterval:  getEnvDuration("MODERATION_WORKER_INTERVAL", 5*time.Minute),
		WorkerBatchSize: getEnvInt("MODERATION_WORKER_BATCH", 20),
		AnalysisTimeout: getEnvDuration("MODERATION_ANALYSIS_TIMEOUT", 30*time.Second),
		ReclaimAfter:    getEnvDuration("MODERATION_RECLAIM_AFTER", 15*time.Minute),
		StaleThreshold:  getEnvDuration("MODERATION_STALE_THRESHOLD", 24*time.Hour),
		AppealMinLen:    getEnvInt("APPEAL_MIN_LEN", 20),
		AppealMaxLen:    getEnvInt("APPEAL_MAX_LEN", 500),
	}
}
