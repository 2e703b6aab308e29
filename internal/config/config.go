package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port         string
	DatabaseURL  string
	RedisURL     string
	NatsURL      string
	KafkaBrokers string

	// Gateway credentials. MerchantKey and MerchantSalt sign every outbound
	// token request and verify every inbound callback; the callback handler
	// refuses to process anything while they are missing.
	MerchantID   string
	MerchantKey  string
	MerchantSalt string

	GatewayURL     string
	GatewayTimeout time.Duration
	OKRedirectURL  string
	ErrRedirectURL string

	Currency string
	TestMode bool
}

func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	gatewayURL := os.Getenv("GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = "https://www.paytr.com/odeme/api/get-token"
	}

	timeout := 20 * time.Second
	if v := os.Getenv("GATEWAY_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}

	currency := os.Getenv("CURRENCY")
	if currency == "" {
		currency = "TL"
	}

	testMode, _ := strconv.ParseBool(os.Getenv("GATEWAY_TEST_MODE"))

	return &Config{
		Port:           port,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		NatsURL:        os.Getenv("NATS_URL"),
		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		MerchantID:     os.Getenv("MERCHANT_ID"),
		MerchantKey:    os.Getenv("MERCHANT_KEY"),
		MerchantSalt:   os.Getenv("MERCHANT_SALT"),
		GatewayURL:     gatewayURL,
		GatewayTimeout: timeout,
		OKRedirectURL:  os.Getenv("MERCHANT_OK_URL"),
		ErrRedirectURL: os.Getenv("MERCHANT_FAIL_URL"),
		Currency:       currency,
		TestMode:       testMode,
	}
}

// SigningReady reports whether both signing secrets are configured. A false
// result is a configuration error, not a verification failure.
func (c *Config) SigningReady() bool {
	return c.MerchantKey != "" && c.MerchantSalt != ""
}
