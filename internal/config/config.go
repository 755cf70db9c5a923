package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// EnvProduction is the NODE_ENV value that switches on proxy trust and secure cookies.
	EnvProduction = "production"
	// EnvDevelopment is used when NODE_ENV is unset.
	EnvDevelopment = "development"

	// DefaultAllowedOrigin is the CORS allowlist used when ALLOWED_ORIGINS is empty.
	DefaultAllowedOrigin = "http://localhost:3000"
	// DefaultPort is the listen port used when PORT is unset or invalid.
	DefaultPort = 5000
	// DefaultJSONBodyLimit caps JSON request bodies (10MB).
	DefaultJSONBodyLimit int64 = 10 << 20
	// DefaultMaxUploadSize caps multipart form submissions (20MB).
	DefaultMaxUploadSize int64 = 20 << 20

	devSessionSecret = "formdrop-development-session-secret"
)

// Config holds application configuration. It is built once by Load and never mutated.
type Config struct {
	Environment         string
	Port                int
	AllowedOrigins      []string
	DatabaseURL         string
	RunMigrations       bool
	JSONBodyLimit       int64
	MaxUploadSize       int64
	UploadsDir          string
	EnableDemoEndpoints bool
	SessionSecret       string
	SessionTTL          time.Duration
	AuthRateLimit       string
	RedisURL            string
	RabbitMQURL         string
	EnableHSTS          bool
	ServerDebugMode     bool
	OTELEnabled         bool
	OTELEndpoint        string
}

// IsProduction reports whether the production-only behaviors apply.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Addr returns the listen address for the configured port.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Load reads an optional .env file from the working directory and then builds the
// configuration from the process environment.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	return FromEnv()
}

// LoadDotEnv copies variables from a .env file in the working directory into the process
// environment. Variables already set win; a missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env file: %w", err)
	}
	return nil
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Environment:         getEnv("NODE_ENV", EnvDevelopment),
		Port:                getEnvPort("PORT", DefaultPort),
		AllowedOrigins:      ParseAllowedOrigins(os.Getenv("ALLOWED_ORIGINS")),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RunMigrations:       getEnvBool("RUN_MIGRATIONS", true),
		JSONBodyLimit:       getEnvInt64("JSON_BODY_LIMIT", DefaultJSONBodyLimit),
		MaxUploadSize:       getEnvInt64("MAX_UPLOAD_SIZE", DefaultMaxUploadSize),
		UploadsDir:          getEnv("UPLOADS_DIR", defaultUploadsDir()),
		EnableDemoEndpoints: getEnvBool("ENABLE_DEMO_ENDPOINTS", true),
		SessionSecret:       getEnv("SESSION_SECRET", ""),
		SessionTTL:          getEnvDuration("SESSION_TTL", 24*time.Hour),
		AuthRateLimit:       getEnv("AUTH_RATE_LIMIT", "20-M"),
		RedisURL:            getEnv("REDIS_URL", ""),
		RabbitMQURL:         getEnv("RABBITMQ_URL", ""),
		EnableHSTS:          getEnvBool("ENABLE_HSTS", false),
		ServerDebugMode:     getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:         getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:        getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SessionSecret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("SESSION_SECRET is required when NODE_ENV=production")
		}
		cfg.SessionSecret = devSessionSecret
	}

	return cfg, nil
}

// ParseAllowedOrigins splits a comma-separated origin list, trimming whitespace and
// dropping empty and repeated entries. The result is never empty.
func ParseAllowedOrigins(raw string) []string {
	var origins []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		origin := strings.TrimSpace(part)
		if origin == "" || seen[origin] {
			continue
		}
		seen[origin] = true
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		return []string{DefaultAllowedOrigin}
	}
	return origins
}

// defaultUploadsDir resolves "uploads" next to the running executable.
func defaultUploadsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "uploads"
	}
	return filepath.Join(filepath.Dir(exe), "uploads")
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

// getEnvPort falls back to defaultValue for anything that is not a usable TCP port.
func getEnvPort(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if port, err := strconv.Atoi(value); err == nil && port > 0 && port <= 65535 {
			return port
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
