package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

const (
	ServiceVersion = "0.1.0"
	OrderExchange  = "order.exchange"
)

type MySQL struct {
	User         string
	Password     string
	Host         string
	Port         string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
	ConnIdleTime time.Duration
}

func (m MySQL) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		m.User, m.Password, m.Host, m.Port, m.Database)
}

type Config struct {
	ServiceName        string
	Port               string
	MySQL              MySQL
	RedisAddr          string
	RabbitMQURL        string
	Exchange           string
	OtelEndpoint       string
	MaxConflictRetries int
	OrdersCacheTTL     time.Duration
	ShutdownTimeout    time.Duration
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "order-placement-service"),
		Port:        getEnv("PORT", "8080"),
		MySQL: MySQL{
			User:     os.Getenv("MYSQL_USER"),
			Password: os.Getenv("MYSQL_PASSWORD"),
			Host:     os.Getenv("MYSQL_HOST"),
			Port:     getEnv("MYSQL_PORT", "3306"),
			Database: os.Getenv("MYSQL_DATABASE"),
		},
		RedisAddr:    os.Getenv("REDIS_HOST"),
		RabbitMQURL:  os.Getenv("RABBITMQ_URL"),
		Exchange:     getEnv("ORDER_EXCHANGE", OrderExchange),
		OtelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
	}

	if cfg.MySQL.Host == "" {
		return nil, fmt.Errorf("MYSQL_HOST environment variable is required")
	}
	if cfg.MySQL.User == "" {
		return nil, fmt.Errorf("MYSQL_USER environment variable is required")
	}
	if cfg.MySQL.Database == "" {
		return nil, fmt.Errorf("MYSQL_DATABASE environment variable is required")
	}
	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL environment variable is required")
	}
	// Accept either a bare host or host:port, as older deployments set REDIS_HOST alone.
	if cfg.RedisAddr != "" && !hasPort(cfg.RedisAddr) {
		cfg.RedisAddr += ":6379"
	}

	var err error
	if cfg.MaxConflictRetries, err = getEnvInt("ORDER_MAX_CONFLICT_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.MaxConflictRetries < 0 {
		return nil, fmt.Errorf("ORDER_MAX_CONFLICT_RETRIES must not be negative")
	}
	if cfg.MySQL.MaxOpenConns, err = getEnvInt("DB_MAX_OPEN_CONNS", 100); err != nil {
		return nil, err
	}
	if cfg.MySQL.MaxIdleConns, err = getEnvInt("DB_MAX_IDLE_CONNS", 20); err != nil {
		return nil, err
	}
	if cfg.MySQL.ConnLifetime, err = getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MySQL.ConnIdleTime, err = getEnvDuration("DB_CONN_MAX_IDLE_TIME", time.Minute); err != nil {
		return nil, err
	}
	if cfg.OrdersCacheTTL, err = getEnvDuration("ORDERS_CACHE_TTL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func hasPort(addr string) bool {
	_, _, err := net.SplitHostPort(addr)
	return err == nil
}
