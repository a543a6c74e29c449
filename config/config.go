package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds all configuration for the router service
type Config struct {
	Database            DatabaseConfig
	Redis               RedisConfig
	Kafka               KafkaConfig
	Logging             LoggingConfig
	Service             ServiceConfig
	SubscriptionService SubscriptionServiceConfig
	Gateway             GatewayConfig
	Engine              EngineConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds rate-limit counter store configuration
type RedisConfig struct {
	URL string
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers []string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Name string
}

// SubscriptionServiceConfig holds subscription service client configuration
type SubscriptionServiceConfig struct {
	URL     string
	Timeout time.Duration
}

// GatewayConfig holds the MTProto gateway client configuration
type GatewayConfig struct {
	URL     string
	Timeout time.Duration
}

// EngineConfig holds the routing engine timing knobs
type EngineConfig struct {
	SyncInterval  time.Duration
	ErrorBackoff  time.Duration
	AlbumDebounce time.Duration
	ForwardDelay  time.Duration
}

// Result is fx.Out struct for providing config dependencies
type Result struct {
	fx.Out

	Config                    *Config
	DatabaseConfig            *DatabaseConfig
	RedisConfig               *RedisConfig
	KafkaConfig               *KafkaConfig
	LoggingConfig             *LoggingConfig
	ServiceConfig             *ServiceConfig
	SubscriptionServiceConfig *SubscriptionServiceConfig
	GatewayConfig             *GatewayConfig
	EngineConfig              *EngineConfig
}

// Out returns fx-compatible config result
func Out() (Result, error) {
	cfg, err := Load()
	if err != nil {
		return Result{}, err
	}

	return Result{
		Config:                    cfg,
		DatabaseConfig:            &cfg.Database,
		RedisConfig:               &cfg.Redis,
		KafkaConfig:               &cfg.Kafka,
		LoggingConfig:             &cfg.Logging,
		ServiceConfig:             &cfg.Service,
		SubscriptionServiceConfig: &cfg.SubscriptionService,
		GatewayConfig:             &cfg.Gateway,
		EngineConfig:              &cfg.Engine,
	}, nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DATABASE_HOST", "localhost"),
			Port:     getEnv("DATABASE_PORT", "5432"),
			User:     getEnv("DATABASE_USER", "router_user"),
			Password: getEnv("DATABASE_PASSWORD", "router_pass"),
			DBName:   getEnv("DATABASE_NAME", "router_db"),
			SSLMode:  getEnv("DATABASE_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9093"), ","),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Service: ServiceConfig{
			Name: getEnv("SERVICE_NAME", "router-service"),
		},
		SubscriptionService: SubscriptionServiceConfig{
			URL:     getEnv("SUBSCRIPTION_SERVICE_URL", "http://subscription-service:8082"),
			Timeout: getEnvDuration("SUBSCRIPTION_SERVICE_TIMEOUT", 30*time.Second),
		},
		Gateway: GatewayConfig{
			URL:     getEnv("GATEWAY_URL", "http://telegram-gateway:8085"),
			Timeout: getEnvDuration("GATEWAY_TIMEOUT", 30*time.Second),
		},
		Engine: EngineConfig{
			SyncInterval:  getEnvDuration("ENGINE_SYNC_INTERVAL", 10*time.Second),
			ErrorBackoff:  getEnvDuration("ENGINE_ERROR_BACKOFF", 5*time.Second),
			AlbumDebounce: getEnvDuration("ENGINE_ALBUM_DEBOUNCE", 2*time.Second),
			ForwardDelay:  getEnvDuration("ENGINE_FORWARD_DELAY", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DATABASE_HOST is required")
	}

	if c.Database.User == "" {
		return fmt.Errorf("DATABASE_USER is required")
	}

	if c.Database.DBName == "" {
		return fmt.Errorf("DATABASE_NAME is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}

	if c.Gateway.URL == "" {
		return fmt.Errorf("GATEWAY_URL is required")
	}

	if c.Engine.SyncInterval <= 0 {
		return fmt.Errorf("ENGINE_SYNC_INTERVAL must be positive")
	}

	if c.Engine.AlbumDebounce <= 0 {
		return fmt.Errorf("ENGINE_ALBUM_DEBOUNCE must be positive")
	}

	return nil
}

// GetDSN returns database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvDuration gets environment variable as duration with default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
