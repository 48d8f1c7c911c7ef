package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	Notification NotificationConfig
	Sweep        SweepConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	Database      string
	Schema        string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	RetryAttempts int
}

// DSN renders the connection string understood by the pgx stdlib driver
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&search_path=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode, c.Schema)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type JWTConfig struct {
	Secret       string
	AccessExpiry int // in minutes
}

type RateLimitConfig struct {
	JoinRequests int
	Window       time.Duration
}

type NotificationConfig struct {
	WebhookURLs  []string
	Workers      int
	QueueSize    int
	Timeout      time.Duration
	RedisChannel string
}

type SweepConfig struct {
	Interval time.Duration // 0 disables the sweeper
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func Load() *Config {
	// .env is optional; real deployments inject the environment directly
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not read .env file: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_RETRY_ATTEMPTS", 3)
	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ACCESS_EXPIRY", 60)
	v.SetDefault("RATE_LIMIT_JOIN_REQUESTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("NOTIFY_WEBHOOK_URLS", "")
	v.SetDefault("NOTIFY_WORKERS", 4)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
	v.SetDefault("NOTIFY_TIMEOUT", "5s")
	v.SetDefault("NOTIFY_REDIS_CHANNEL", "jam3a:events")
	v.SetDefault("SWEEP_INTERVAL", "1m")

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			LogLevel:       v.GetString("LOG_LEVEL"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:          v.GetString("DB_HOST"),
			Port:          v.GetString("DB_PORT"),
			User:          v.GetString("DB_USER"),
			Password:      v.GetString("DB_PASSWORD"),
			Database:      v.GetString("DB_DATABASE"),
			Schema:        v.GetString("DB_SCHEMA"),
			SSLMode:       v.GetString("DB_SSLMODE"),
			MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
			RetryAttempts: v.GetInt("DB_RETRY_ATTEMPTS"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:       v.GetString("JWT_SECRET"),
			AccessExpiry: v.GetInt("JWT_ACCESS_EXPIRY"),
		},
		RateLimit: RateLimitConfig{
			JoinRequests: v.GetInt("RATE_LIMIT_JOIN_REQUESTS"),
			Window:       v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Notification: NotificationConfig{
			WebhookURLs:  splitList(v.GetString("NOTIFY_WEBHOOK_URLS")),
			Workers:      v.GetInt("NOTIFY_WORKERS"),
			QueueSize:    v.GetInt("NOTIFY_QUEUE_SIZE"),
			Timeout:      v.GetDuration("NOTIFY_TIMEOUT"),
			RedisChannel: v.GetString("NOTIFY_REDIS_CHANNEL"),
		},
		Sweep: SweepConfig{
			Interval: v.GetDuration("SWEEP_INTERVAL"),
		},
	}
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
