package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	RedisURL     string
	OpenAIKey    string
	MetricsPort  string
	LogLevel     string
	CatalogFile  string
	SnapshotDir  string
	EncoderURL   string
	EncoderModel string

	BatchSize        int
	BatchDelay       time.Duration
	FetchMaxAttempts int
	FetchBackoff     time.Duration
	FetchConcurrency int
	HTTPTimeout      time.Duration
	EmbedWorkers     int
	IDCacheTTL       time.Duration
	DBMaxConns       int
}

func Load() *Config {
	// .env at the project root when started from cmd/<name>
	_ = godotenv.Load("../../.env")
	_ = godotenv.Load()
	return &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		MetricsPort:  getEnv("METRICS_PORT", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		CatalogFile:  getEnv("CATALOG_FILE", "catalog.yaml"),
		SnapshotDir:  getEnv("SNAPSHOT_DIR", "category_data"),
		EncoderURL:   getEnv("ENCODER_URL", "http://localhost:8000"),
		EncoderModel: getEnv("ENCODER_MODEL", "siglip-base-patch16-384"),

		BatchSize:        getEnvInt("BATCH_SIZE", 50),
		BatchDelay:       getEnvDuration("BATCH_DELAY", time.Second),
		FetchMaxAttempts: getEnvInt("FETCH_MAX_ATTEMPTS", 3),
		FetchBackoff:     getEnvDuration("FETCH_BACKOFF", time.Second),
		FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", 1),
		HTTPTimeout:      getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		EmbedWorkers:     getEnvInt("EMBED_WORKERS", 4),
		IDCacheTTL:       getEnvDuration("ID_CACHE_TTL", 24*time.Hour),
		DBMaxConns:       getEnvInt("DB_MAX_CONNS", 4),
	}
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getEnvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

// getEnvDuration accepts Go durations ("1500ms") or plain seconds ("2").
func getEnvDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return d
}
