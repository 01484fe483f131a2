package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	RedisHost     string
	RedisPort     string
	SessionSecret string
	GinMode       string

	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	PayoutRefreshURL    string
	PayoutReturnURL     string
}

func Load() *Config {
	// A missing .env file is fine; deployments set the environment directly.
	_ = godotenv.Load()

	return &Config{
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "3306"),
		DBUser:        getEnv("DB_USER", "communityuser"),
		DBPassword:    getEnv("DB_PASSWORD", "communitypassword"),
		DBName:        getEnv("DB_NAME", "community_events"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		SessionSecret: getEnv("SESSION_SECRET", "default-secret-key-change-me"),
		GinMode:       getEnv("GIN_MODE", "debug"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		Currency:            getEnv("CURRENCY", "usd"),
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:8080/checkout/success"),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", "http://localhost:8080/checkout/cancel"),
		PayoutRefreshURL:    getEnv("PAYOUT_REFRESH_URL", "http://localhost:8080/payout/refresh"),
		PayoutReturnURL:     getEnv("PAYOUT_RETURN_URL", "http://localhost:8080/payout/return"),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
