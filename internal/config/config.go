package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	LogLevel    string
	CRM         CRMConfig
	Integration IntegrationConfig
	Sync        SyncConfig
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
}

// CRMConfig holds the CRM REST API credentials and endpoint
type CRMConfig struct {
	APIKey         string
	APISecret      string
	BaseURL        string
	RequestTimeout time.Duration
}

// IntegrationConfig holds settings shared with the shaping integration.
// None of them are applied by the reconciler itself.
type IntegrationConfig struct {
	FindIPv6UsingMikrotik   bool
	BandwidthOverheadFactor float64
	ExcludeSites            []string
}

// SyncConfig holds scheduling and execution settings for a sync run
type SyncConfig struct {
	Schedule       string
	RunOnStart     bool
	RunTimeout     time.Duration
	Concurrency    int
	MaxRetries     int
	MaxShrinkRatio float64
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL            string
	MaxConns       int
	ConnectTimeout time.Duration
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL               string
	TriggerExchange   string
	TriggerQueue      string
	TriggerRoutingKey string
	DLQQueue          string
	PrefetchCount     int
	EventsExchange    string
	EventsRoutingKey  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "crm-topology-worker"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8081),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CRM: CRMConfig{
			APIKey:         getEnv("CRM_API_KEY", ""),
			APISecret:      getEnv("CRM_API_SECRET", ""),
			BaseURL:        strings.TrimRight(getEnv("CRM_API_URL", ""), "/"),
			RequestTimeout: getEnvAsDuration("CRM_REQUEST_TIMEOUT", 10*time.Second),
		},
		Integration: IntegrationConfig{
			FindIPv6UsingMikrotik:   getEnvAsBool("FIND_IPV6_USING_MIKROTIK", false),
			BandwidthOverheadFactor: getEnvAsFloat("BANDWIDTH_OVERHEAD_FACTOR", 1.0),
			ExcludeSites:            getEnvAsList("EXCLUDE_SITES"),
		},
		Sync: SyncConfig{
			Schedule:       getEnv("SYNC_SCHEDULE", "@every 30m"),
			RunOnStart:     getEnvAsBool("SYNC_RUN_ON_START", true),
			RunTimeout:     getEnvAsDuration("SYNC_RUN_TIMEOUT", 10*time.Minute),
			Concurrency:    getEnvAsInt("SYNC_CONCURRENCY", 4),
			MaxRetries:     getEnvAsInt("SYNC_MAX_RETRIES", 2),
			MaxShrinkRatio: getEnvAsFloat("SYNC_MAX_SHRINK_RATIO", 0),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       getEnvAsInt("DATABASE_MAX_CONNS", 4),
			ConnectTimeout: getEnvAsDuration("DATABASE_CONNECT_TIMEOUT", 5*time.Second),
		},
		RabbitMQ: RabbitMQConfig{
			URL:               getEnv("RABBITMQ_URL", ""),
			TriggerExchange:   getEnv("RABBITMQ_TRIGGER_EXCHANGE", "crm-topology.trigger.exchange"),
			TriggerQueue:      getEnv("RABBITMQ_TRIGGER_QUEUE", "crm-topology.trigger.queue"),
			TriggerRoutingKey: getEnv("RABBITMQ_TRIGGER_ROUTING_KEY", "topology.sync.requested"),
			DLQQueue:          getEnv("RABBITMQ_DLQ_QUEUE", "crm-topology.trigger.dlq"),
			PrefetchCount:     getEnvAsInt("RABBITMQ_PREFETCH", 1),
			EventsExchange:    getEnv("RABBITMQ_EVENTS_EXCHANGE", "crm-topology.events.exchange"),
			EventsRoutingKey:  getEnv("RABBITMQ_EVENTS_ROUTING_KEY", "topology.published"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.CRM.APIKey == "" {
		return fmt.Errorf("CRM_API_KEY is required but not set in environment variables")
	}
	if c.CRM.APISecret == "" {
		return fmt.Errorf("CRM_API_SECRET is required but not set in environment variables")
	}
	if c.CRM.BaseURL == "" {
		return fmt.Errorf("CRM_API_URL is required but not set in environment variables")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if c.RabbitMQ.URL == "" {
		return fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be at least 1, got %d", c.Sync.Concurrency)
	}
	if c.Sync.MaxShrinkRatio < 0 || c.Sync.MaxShrinkRatio > 1 {
		return fmt.Errorf("SYNC_MAX_SHRINK_RATIO must be between 0 and 1, got %v", c.Sync.MaxShrinkRatio)
	}
	return nil
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
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

// getEnvAsList splits a comma separated variable, dropping blank entries
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
