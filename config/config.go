package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/upb/accreditation-api/oidc"
	"github.com/upb/accreditation-api/utils"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	OIDC          OIDCConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	Environment   string `validate:"required,oneof=development dev test production prod"`
	Version       string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int `validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the optional PostgreSQL connection used by readiness checks.
// Empty ConnectionString disables the database.
type DatabaseConfig struct {
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// OIDCConfig holds identity provider settings for token verification
type OIDCConfig struct {
	IssuerURL string `validate:"required,url"`
	// ClientID and ClientSecret are not used for verification
	ClientID     string
	ClientSecret string
	JWKSURL      string        `validate:"omitempty,url"`
	CacheTTL     time.Duration `validate:"gt=0"`
	FetchTimeout time.Duration `validate:"gt=0"`
	RolesClaim   string        `validate:"required"`
}

// RateLimitConfig holds limits for remote key set fetches
type RateLimitConfig struct {
	JWKSFetchesPerMinute int `validate:"gt=0"`
	// RedisURL shares the fetch budget across instances when set
	RedisURL string `validate:"omitempty,url"`
}

// CORSConfig holds allowed origins for non-development environments
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel             string `validate:"required,oneof=debug info warn error"`
	LogFormat            string `validate:"oneof=json console text"`
	EnableRequestLogging bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", getEnv("APP_ENV", "development")),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			ConnectionString: getEnv("DATABASE_URL", ""),
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		OIDC: OIDCConfig{
			IssuerURL:    getEnv("OIDC_ISSUER_URL", ""),
			ClientID:     getEnv("OIDC_CLIENT_ID", ""),
			ClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
			JWKSURL:      getEnv("OIDC_JWKS_URL", ""),
			CacheTTL:     getEnvAsDuration("OIDC_JWKS_CACHE_TTL", oidc.DefaultCacheTTL),
			FetchTimeout: getEnvAsDuration("OIDC_JWKS_FETCH_TIMEOUT", oidc.DefaultFetchTimeout),
			RolesClaim:   getEnv("OIDC_ROLES_CLAIM", oidc.DefaultRolesClaim),
		},
		RateLimit: RateLimitConfig{
			JWKSFetchesPerMinute: getEnvAsInt("OIDC_JWKS_REQUESTS_PER_MINUTE", oidc.DefaultFetchesPerMinute),
			RedisURL:             getEnv("JWKS_RATE_LIMIT_REDIS_URL", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"https://app.example.com"}),
		},
		Observability: ObservabilityConfig{
			LogLevel:             getEnv("LOG_LEVEL", "info"),
			LogFormat:            getEnv("LOG_FORMAT", "json"),
			EnableRequestLogging: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks struct tags and cross-field rules
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	if c.IsProduction() {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("wildcard CORS origin is not allowed in production")
			}
		}
		if !strings.HasPrefix(c.OIDC.IssuerURL, "https://") {
			return fmt.Errorf("OIDC issuer must use https in production")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// JWKSEndpoint returns the configured JWKS URL or the one derived from the issuer
func (c *OIDCConfig) JWKSEndpoint() string {
	return oidc.ResolveJWKSURL(c.IssuerURL, c.JWKSURL)
}

// Enabled reports whether a database is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != ""
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString == "" {
		return "disabled"
	}
	u, err := url.Parse(c.ConnectionString)
	if err != nil {
		return "host=<from DATABASE_URL>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 3000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 3000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
