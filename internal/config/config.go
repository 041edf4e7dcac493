package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

type Config struct {
	DatabaseURL string
	HTTPPort    string
	LogLevel    string

	JWTSecret string
	TokenTTL  time.Duration

	GeminiAPIKey  string
	GeminiModel   string
	ScorerTimeout time.Duration
	ScorerRPS     float64

	CacheTTL        time.Duration
	CacheCapacity   int
	CacheEvictBatch int

	RateLimitStore    string
	RedisURL          string
	RateLimitFailOpen bool

	AllowedOrigins       []string
	CopingStrategiesFile string

	// DotEnvLoaded reports whether a .env file was found.
	DotEnvLoaded bool
}

// Load reads a .env file if one exists and then the environment.
func Load() (*Config, error) {
	loaded := godotenv.Load() == nil
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	cfg.DotEnvLoaded = loaded
	return cfg, nil
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	var errs []error
	cfg := &Config{
		DatabaseURL:          getEnv("DATABASE_URL", "mchatbot.db"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		LogLevel:             strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		TokenTTL:             getEnvAsDuration("TOKEN_TTL", 30*24*time.Hour, &errs),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		ScorerTimeout:        getEnvAsDuration("SCORER_TIMEOUT", 5*time.Second, &errs),
		ScorerRPS:            getEnvAsFloat("SCORER_RPS", 10, &errs),
		CacheTTL:             getEnvAsDuration("CACHE_TTL", time.Hour, &errs),
		CacheCapacity:        getEnvAsInt("CACHE_CAPACITY", 1000, &errs),
		CacheEvictBatch:      getEnvAsInt("CACHE_EVICT_BATCH", 100, &errs),
		RateLimitStore:       strings.ToLower(getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory)),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RateLimitFailOpen:    getEnvAsBool("RATE_LIMIT_FAIL_OPEN", true, &errs),
		AllowedOrigins:       getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		CopingStrategiesFile: getEnv("COPING_STRATEGIES_FILE", ""),
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if cfg.RateLimitStore != RateLimitStoreMemory && cfg.RateLimitStore != RateLimitStoreRedis {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_STORE must be %q or %q, got %q", RateLimitStoreMemory, RateLimitStoreRedis, cfg.RateLimitStore))
	}
	if cfg.CacheCapacity <= 0 || cfg.CacheEvictBatch <= 0 {
		errs = append(errs, errors.New("CACHE_CAPACITY and CACHE_EVICT_BATCH must be positive"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int, errs *[]error) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64, errs *[]error) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool, errs *[]error) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
