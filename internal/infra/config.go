package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	StoragePath        string
	StorageBaseURL     string
	PlaceholderBaseURL string
	CORSAllowedOrigins []string

	ImageProvider string
	QwenAPIKey    string
	QwenModel     string
	QwenBaseURL   string

	ConceptProvider string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string

	ChunkSize         int
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	MediaConcurrency  int
	UploadTimeout     time.Duration
	ProgressBuffer    int
	ProgressRetention time.Duration
	ProgressRedisURL  string

	// DBMaxConns caps the pool; each running batch holds at most one
	// connection while it persists a chunk.
	DBMaxConns int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	// Missing env files are fine; the process environment always wins.
	_ = godotenv.Load(".env", ".env.local")

	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               port,
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     strings.TrimRight(getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"), "/"),
		PlaceholderBaseURL: strings.TrimRight(getEnv("PLACEHOLDER_BASE_URL", "https://placehold.mealgen.app/meals"), "/"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		ImageProvider:      strings.ToLower(getEnv("IMAGE_PROVIDER", "qwen")),
		QwenAPIKey:         strings.TrimSpace(os.Getenv("QWEN_API_KEY")),
		QwenModel:          getEnv("QWEN_MODEL", "qwen-image-plus"),
		QwenBaseURL:        getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		ConceptProvider:    strings.ToLower(getEnv("CONCEPT_PROVIDER", "catalog")),
		OpenAIAPIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ChunkSize:          getEnvInt("PIPELINE_CHUNK_SIZE", 5),
		MaxAttempts:        getEnvInt("PIPELINE_MAX_ATTEMPTS", 3),
		BackoffBase:        time.Millisecond * time.Duration(getEnvInt("PIPELINE_BACKOFF_BASE_MS", 500)),
		BackoffMax:         time.Millisecond * time.Duration(getEnvInt("PIPELINE_BACKOFF_MAX_MS", 10000)),
		MediaConcurrency:   getEnvInt("MEDIA_CONCURRENCY", 5),
		UploadTimeout:      time.Second * time.Duration(getEnvInt("UPLOAD_TIMEOUT_SECONDS", 30)),
		ProgressBuffer:     getEnvInt("PROGRESS_BUFFER", 16),
		ProgressRetention:  time.Minute * time.Duration(getEnvInt("PROGRESS_RETENTION_MINUTES", 60)),
		ProgressRedisURL:   strings.TrimSpace(os.Getenv("PROGRESS_REDIS_URL")),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 10),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects pipeline settings the coordinator cannot honour.
func (c *Config) Validate() error {
	if c.ChunkSize < 1 || c.ChunkSize > 25 {
		return fmt.Errorf("PIPELINE_CHUNK_SIZE must be between 1 and 25")
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > 10 {
		return fmt.Errorf("PIPELINE_MAX_ATTEMPTS must be between 1 and 10")
	}
	if c.MediaConcurrency < 1 {
		return fmt.Errorf("MEDIA_CONCURRENCY must be positive")
	}
	if c.UploadTimeout <= 0 {
		return fmt.Errorf("UPLOAD_TIMEOUT_SECONDS must be positive")
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("PIPELINE_BACKOFF_MAX_MS must not be lower than PIPELINE_BACKOFF_BASE_MS")
	}
	switch c.ImageProvider {
	case "qwen", "synthetic":
	default:
		return fmt.Errorf("unsupported IMAGE_PROVIDER %q", c.ImageProvider)
	}
	switch c.ConceptProvider {
	case "catalog", "openai":
	default:
		return fmt.Errorf("unsupported CONCEPT_PROVIDER %q", c.ConceptProvider)
	}
	return nil
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

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
