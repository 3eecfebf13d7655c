package config

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Server configuration
	Port string
	Mode string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL string

	// Master encryption key (protects private keys at rest)
	MasterEncryptionKey string
	MasterKeyMinLength  int

	// Admin API token
	AdminToken string

	// Afdian payment provider configuration
	AfdianUserID    string
	AfdianToken     string
	AfdianAPIURL    string
	OrderPaidStatus int

	// Outbound provider call policy
	ProviderTimeoutSeconds int
	ProviderMaxRetries     int

	// License tier policy
	PermanentThreshold    decimal.Decimal
	SubscriptionThreshold decimal.Decimal
	SubscriptionYears     int

	// plan_id -> product_id mapping; orders with an unmapped plan fall
	// back to the default product
	PlanProductMapping map[string]uint
	DefaultProductID   uint

	ServiceName string
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		Port:                   getEnv("PORT", "8080"),
		Mode:                   getEnv("GIN_MODE", "debug"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisURL:               getEnv("REDIS_URL", "redis://localhost:6379/0"),
		MasterEncryptionKey:    getEnv("MASTER_ENCRYPTION_KEY", ""),
		MasterKeyMinLength:     getEnvInt("MASTER_KEY_MIN_LENGTH", 32),
		AdminToken:             getEnv("ADMIN_TOKEN", ""),
		AfdianUserID:           getEnv("AFDIAN_USER_ID", ""),
		AfdianToken:            getEnv("AFDIAN_TOKEN", ""),
		AfdianAPIURL:           getEnv("AFDIAN_API_URL", "https://afdian.com/api/open/query-order"),
		OrderPaidStatus:        getEnvInt("ORDER_PAID_STATUS", 2),
		ProviderTimeoutSeconds: getEnvInt("PROVIDER_TIMEOUT_SECONDS", 10),
		ProviderMaxRetries:     getEnvInt("PROVIDER_MAX_RETRIES", 3),
		PermanentThreshold:     getEnvDecimal("PERMANENT_THRESHOLD", "100"),
		SubscriptionThreshold:  getEnvDecimal("SUBSCRIPTION_THRESHOLD", "30"),
		SubscriptionYears:      getEnvInt("SUBSCRIPTION_YEARS", 1),
		PlanProductMapping:     getEnvMapping("PLAN_PRODUCT_MAPPING"),
		DefaultProductID:       uint(getEnvInt("DEFAULT_PRODUCT_ID", 1)),
		ServiceName:            getEnv("SERVICE_NAME", "License Service"),
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(defaultValue)
	return d
}

// getEnvMapping parses a JSON object of plan_id -> product_id,
// e.g. {"plan-basic": 1, "plan-pro": 2}
func getEnvMapping(key string) map[string]uint {
	mapping := make(map[string]uint)
	if value := os.Getenv(key); value != "" {
		if err := json.Unmarshal([]byte(value), &mapping); err != nil {
			return make(map[string]uint)
		}
	}
	return mapping
}
