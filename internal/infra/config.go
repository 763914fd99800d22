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

	AllowedOrigins       []string
	PreviewOriginPattern string

	SubmitLimit    int
	SubmitWindow   time.Duration
	ThrottlePerMin int
	DefaultLocale  string
	GeoIPDBPath    string

	LeonardoBaseURL string
	GeminiBaseURL   string
	GeminiModel     string

	// BlobBackend selects where published images live: "minio" in
	// production, "filesystem" for local development.
	BlobBackend string
	BlobFSPath  string

	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioUseSSL     bool
	MinioBucket     string
	MinioPublicBase string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		AllowedOrigins: splitOrigins(getEnv("ALLOWED_ORIGINS",
			"https://gallinga.purakasaka.com,https://gallinga-story.vercel.app,https://purakasaka.com,http://localhost:3000")),
		PreviewOriginPattern: getEnv("PREVIEW_ORIGIN_PATTERN",
			`^https://gallinga-story-.*-zavalas-projects\.vercel\.app$`),

		SubmitLimit:    getEnvInt("SUBMIT_LIMIT", 2),
		SubmitWindow:   time.Duration(getEnvInt("SUBMIT_WINDOW_HOURS", 24)) * time.Hour,
		ThrottlePerMin: getEnvInt("THROTTLE_PER_MINUTE", 60),
		DefaultLocale:  getEnv("DEFAULT_LOCALE", "es"),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),

		LeonardoBaseURL: getEnv("LEONARDO_BASE_URL", "https://cloud.leonardo.ai/api/rest/v1"),
		GeminiBaseURL:   getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-pro-latest"),

		BlobBackend: getEnv("BLOB_BACKEND", "minio"),
		BlobFSPath:  getEnv("BLOB_FS_PATH", "./data/images"),

		MinioEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		MinioBucket:     getEnv("MINIO_BUCKET", "gallinga-images"),
		MinioPublicBase: getEnv("MINIO_PUBLIC_BASE", ""),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	switch cfg.BlobBackend {
	case "minio":
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return nil, fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required")
		}
	case "filesystem":
	default:
		return nil, fmt.Errorf("BLOB_BACKEND must be minio or filesystem, got %q", cfg.BlobBackend)
	}
	if cfg.SubmitLimit < 1 {
		return nil, fmt.Errorf("SUBMIT_LIMIT must be at least 1")
	}
	if cfg.MinioPublicBase == "" {
		scheme := "http"
		if cfg.MinioUseSSL {
			scheme = "https"
		}
		cfg.MinioPublicBase = scheme + "://" + cfg.MinioEndpoint
	}

	return cfg, nil
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
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

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
