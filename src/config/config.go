package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port           string
	DatabasePath   string
	MigrationsPath string
	LogLevel       string

	// Upload & parsing
	MaxUploadSizeBytes int64
	DefaultSource      string
	InputEncoding      string
	ExchangeSuffix     string
	LayoutsPath        string

	// Caching
	AnalysisCacheTTL time.Duration
	PriceCacheTTL    time.Duration
	RedisURL         string

	// Market data
	MarketDataBaseURL string
	MarketDataTimeout time.Duration

	// Events
	KafkaBrokers []string
	KafkaTopic   string

	// Security
	APIJWTSecret   string
	AllowedOrigins []string
	RateLimitRPS   int
	RateLimitBurst int
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
func LoadConfig() {
	// Current directory first, then the parent (common when running from /backend)
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables.")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	Cfg = fromEnv()

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, Source=%s, Encoding=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.DefaultSource, Cfg.InputEncoding)
	if Cfg.APIJWTSecret == "" {
		log.Println("WARNING: API_JWT_SECRET is not set. API routes are served without authentication.")
	}
}

func fromEnv() *AppConfig {
	return &AppConfig{
		Port:           getEnv("PORT", "8080"),
		DatabasePath:   getEnv("DATABASE_PATH", "./tradereview.db"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		MaxUploadSizeBytes: getEnvAsInt64("MAX_UPLOAD_SIZE_BYTES", 10*1024*1024),
		DefaultSource:      strings.ToLower(getEnv("DEFAULT_SOURCE", "sbi")),
		InputEncoding:      getEnv("INPUT_ENCODING", "auto"),
		ExchangeSuffix:     getEnv("EXCHANGE_SUFFIX", ".T"),
		LayoutsPath:        getEnv("LAYOUTS_PATH", ""),

		AnalysisCacheTTL: getEnvAsDuration("ANALYSIS_CACHE_TTL", 15*time.Minute),
		PriceCacheTTL:    getEnvAsDuration("PRICE_CACHE_TTL", time.Hour),
		RedisURL:         getEnv("REDIS_URL", ""),

		MarketDataBaseURL: getEnv("MARKET_DATA_BASE_URL", "https://query1.finance.yahoo.com"),
		MarketDataTimeout: getEnvAsDuration("MARKET_DATA_TIMEOUT", 15*time.Second),

		KafkaBrokers: getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "trade-analyses"),

		APIJWTSecret:   getEnv("API_JWT_SECRET", ""),
		AllowedOrigins: getEnvAsListOr("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil && value > 0 {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getEnvAsList parses a comma-separated variable, dropping empty entries.
func getEnvAsList(key string) []string {
	return getEnvAsListOr(key, []string{})
}

func getEnvAsListOr(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	items := make([]string, 0)
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
