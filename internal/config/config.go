package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything main needs to wire the service, loaded from the
// environment (.env honored if present).
type Config struct {
	HTTPAddr  string // HTTP_ADDR
	JWTSecret string // JWT_SECRET

	// PostgreSQL (archive)
	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	// Redis (document store)
	RedisAddr     string // REDIS_ADDR
	RedisPassword string // REDIS_PASSWORD
	RedisDB       int    // REDIS_DB

	// Matchmaking retry policy
	MatchMaxAttempts int           // MATCH_MAX_ATTEMPTS
	MatchBackoff     time.Duration // MATCH_BACKOFF

	// Typing auto-clear quiet period
	TypingQuiet time.Duration // TYPING_QUIET

	// ICE servers for video signaling, comma separated
	STUNServers []string // STUN_SERVERS
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "user")
	cfg.DB.Password = os.Getenv("DB_PASSWORD")
	cfg.DB.Database = getEnv("DB_NAME", "meetgogo")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.RedisDB, _ = strconv.Atoi(getEnv("REDIS_DB", "0"))
	cfg.MatchMaxAttempts, _ = strconv.Atoi(getEnv("MATCH_MAX_ATTEMPTS", "5"))

	var err error
	if cfg.MatchBackoff, err = time.ParseDuration(getEnv("MATCH_BACKOFF", "50ms")); err != nil {
		return nil, fmt.Errorf("MATCH_BACKOFF: %w", err)
	}
	if cfg.TypingQuiet, err = time.ParseDuration(getEnv("TYPING_QUIET", "2s")); err != nil {
		return nil, fmt.Errorf("TYPING_QUIET: %w", err)
	}

	if raw := os.Getenv("STUN_SERVERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.STUNServers = append(cfg.STUNServers, s)
			}
		}
	}
	return cfg, nil
}

// DSN renders the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DB.Host, c.DB.User, c.DB.Password, c.DB.Database, c.DB.Port, c.DB.SSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
