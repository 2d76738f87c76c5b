package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// MinSecretKeyLength is the shortest accepted SECRET_KEY.
const MinSecretKeyLength = 32

// placeholderSecrets are values copied from sample env files that must never
// reach a running deployment.
var placeholderSecrets = []string{
	"changeme",
	"secret",
	"your-secret-key-here",
	"change-this-to-a-random-secret-key",
	"dev-secret-key-change-in-production",
}

// AuthConfig holds token signing configuration.
type AuthConfig struct {
	SecretKey      []byte // signs access and invitation tokens (HS256)
	AccessTokenTTL time.Duration
	SystemAdmins   []string // emails allowed to administer all users
}

// EncryptionConfig holds the master key for connection credentials.
type EncryptionConfig struct {
	Key []byte // 32-byte key for AES-256-GCM
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // seconds
}

// RedisConfig is optional; an empty URL disables Redis-backed features.
type RedisConfig struct {
	URL string
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

type Config struct {
	Port            string
	Environment     string
	LogLevel        string
	FrontendBaseURL string
	Database        DatabaseConfig
	Auth            AuthConfig
	Encryption      EncryptionConfig
	Redis           RedisConfig
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Load reads configuration from environment variables.
// It fails fast with clear errors for missing required values.
func Load() (*Config, error) {
	var missing []string

	port := getEnv("PORT", "8080")

	env := getEnv("ENV", "development")
	if env != "development" && env != "staging" && env != "production" {
		return nil, fmt.Errorf("invalid ENV value %q: must be development, staging, or production", env)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	secretKey := os.Getenv("SECRET_KEY")
	if secretKey == "" {
		missing = append(missing, "SECRET_KEY")
	}

	encryptionKeyB64 := os.Getenv("ENCRYPTION_KEY")
	if encryptionKeyB64 == "" {
		missing = append(missing, "ENCRYPTION_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if err := validateDatabaseURL(databaseURL); err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	if err := validateSecretKey(secretKey); err != nil {
		return nil, fmt.Errorf("invalid SECRET_KEY: %w", err)
	}

	encryptionKey, err := decodeEncryptionKey(encryptionKeyB64)
	if err != nil {
		return nil, fmt.Errorf("invalid ENCRYPTION_KEY: %w", err)
	}

	frontendURL := getEnv("FRONTEND_BASE_URL", "http://localhost:5173")
	if _, err := url.ParseRequestURI(frontendURL); err != nil {
		return nil, fmt.Errorf("invalid FRONTEND_BASE_URL: %w", err)
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL != "" {
		if err := validateRedisURL(redisURL); err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
	}

	ttlMinutes := getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 30)
	if ttlMinutes <= 0 {
		return nil, fmt.Errorf("invalid ACCESS_TOKEN_TTL_MINUTES: must be positive, got %d", ttlMinutes)
	}

	return &Config{
		Port:            port,
		Environment:     env,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		FrontendBaseURL: frontendURL,
		Database: DatabaseConfig{
			URL:             databaseURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
		},
		Auth: AuthConfig{
			SecretKey:      []byte(secretKey),
			AccessTokenTTL: time.Duration(ttlMinutes) * time.Minute,
			SystemAdmins:   splitList(os.Getenv("SYSTEM_ADMINS")),
		},
		Encryption: EncryptionConfig{
			Key: encryptionKey,
		},
		Redis: RedisConfig{
			URL: redisURL,
		},
	}, nil
}

// splitList parses a comma-separated value, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validateSecretKey rejects short keys and well-known placeholder values.
func validateSecretKey(key string) error {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, p := range placeholderSecrets {
		if normalized == p {
			return fmt.Errorf("must not be a default or placeholder value")
		}
	}
	if len(key) < MinSecretKeyLength {
		return fmt.Errorf("must be at least %d characters, got %d", MinSecretKeyLength, len(key))
	}
	return nil
}

// decodeEncryptionKey decodes and validates a base64-encoded 32-byte key.
func decodeEncryptionKey(b64Key string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64Key))
	if err != nil {
		return nil, fmt.Errorf("must be valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("must be exactly 32 bytes (256 bits), got %d bytes", len(key))
	}
	return key, nil
}

// validateDatabaseURL ensures the database URL is a valid PostgreSQL connection string.
func validateDatabaseURL(dbURL string) error {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("URL must use postgres or postgresql scheme, got %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}

	return nil
}

func validateRedisURL(redisURL string) error {
	parsed, err := url.Parse(redisURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "redis" && parsed.Scheme != "rediss" {
		return fmt.Errorf("URL must use redis or rediss scheme, got %q", parsed.Scheme)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt reads an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}
