// Package config loads service configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries every tunable the service reads at startup.
type Config struct {
	// HTTP
	Port           string
	Environment    string
	AllowedOrigins string

	// Database
	DBDriver   string // "postgres" or "sqlite"
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPoolSize int

	// Auth
	JWTSecret    string
	SecretKey    string
	BcryptRounds int

	// Execution
	RunTimeout            int    // seconds per exec phase
	MemoryLimit           string // docker-style, e.g. "512m"
	DockerHost            string
	DockerNetworkDisabled bool

	// Submission limits
	MaxFileSize      int
	MaxTotalFileSize int

	// Deployment validation gate
	EnableDeploymentValidation bool
	MinSecurityScore           int

	// Optional problem cache
	RedisURL string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           envOr("PORT", "8080"),
		Environment:    envOr("ENVIRONMENT", "development"),
		AllowedOrigins: envOr("ALLOWED_ORIGINS", "*"),

		DBDriver:   envOr("DB_DRIVER", "postgres"),
		DBHost:     envOr("DB_HOST", "localhost"),
		DBPort:     envOr("DB_PORT", "5432"),
		DBUser:     envOr("DB_USER", "judge"),
		DBPassword: envOr("DB_PASS", ""),
		DBName:     envOr("DB_NAME", "judge"),
		DBPoolSize: envIntOr("DB_POOL_SIZE", 2),

		JWTSecret:    envOr("JWT_SECRET", ""),
		SecretKey:    envOr("SECRET_KEY", ""),
		BcryptRounds: envIntOr("BCRYPT_ROUNDS", 12),

		RunTimeout:            envIntOr("RUN_TIMEOUT", 15),
		MemoryLimit:           envOr("MEMORY_LIMIT", "512m"),
		DockerHost:            envOr("DOCKER_HOST", ""),
		DockerNetworkDisabled: envBoolOr("DOCKER_NETWORK_DISABLED", true),

		MaxFileSize:      envIntOr("MAX_FILE_SIZE", 50000),
		MaxTotalFileSize: envIntOr("MAX_TOTAL_FILES_SIZE", 200000),

		EnableDeploymentValidation: envBoolOr("ENABLE_DEPLOYMENT_VALIDATION", false),
		MinSecurityScore:           envIntOr("MIN_SECURITY_SCORE", 80),

		RedisURL: envOr("REDIS_URL", ""),
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = cfg.SecretKey
	}
	if cfg.JWTSecret == "" {
		if cfg.Environment == "production" {
			return nil, fmt.Errorf("config: JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-only-insecure-secret"
	}
	if cfg.BcryptRounds < 4 || cfg.BcryptRounds > 31 {
		return nil, fmt.Errorf("config: BCRYPT_ROUNDS %d out of range", cfg.BcryptRounds)
	}

	return cfg, nil
}

// PostgresDSN builds the connection string for the postgres driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
