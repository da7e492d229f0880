package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AdminTokenAudience is the audience of every admin access token
const AdminTokenAudience = "storefront-admin"

// Config holds all application configuration
type Config struct {
	DatabaseURL string
	Port        string
	GoEnv       string
	LogLevel    string
	RedisURL    string
	CORSOrigins []string

	AdminJWTSecret string
	AdminJWTIssuer string
	AdminTokenTTL  time.Duration
	SessionTTL     time.Duration
	OTPTTL         time.Duration
	OTPMaxAttempts int

	PaymentKeyID         string
	PaymentKeySecret     string
	PaymentWebhookSecret string
	PaymentAPIURL        string

	CarrierAPIURL         string
	CarrierAPIToken       string
	CarrierPickupLocation string
	CarrierTimeout        time.Duration
	TrackingConcurrency   int

	// Money settings are in paise, the tax rate in basis points.
	ShippingFlatFee       int64
	FreeShippingThreshold int64
	TaxRateBps            int64

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	AWSRegion          string
	AWSS3Bucket        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	SentryDSN    string
	OTLPEndpoint string
}

var appConfig *Config

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		if err := godotenv.Load(); err != nil {
			// Hosted environments set variables directly
			log.Printf("No .env file found, using system environment variables")
		}
	} else {
		log.Printf("Loaded configuration from %s", envFile)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	config := &Config{
		DatabaseURL: v.GetString("DATABASE_URL"),
		Port:        v.GetString("PORT"),
		GoEnv:       v.GetString("GO_ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		RedisURL:    v.GetString("REDIS_URL"),
		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),

		AdminJWTSecret: v.GetString("ADMIN_JWT_SECRET"),
		AdminJWTIssuer: v.GetString("ADMIN_JWT_ISSUER"),
		AdminTokenTTL:  v.GetDuration("ADMIN_TOKEN_TTL"),
		SessionTTL:     v.GetDuration("SESSION_TTL"),
		OTPTTL:         v.GetDuration("OTP_TTL"),
		OTPMaxAttempts: v.GetInt("OTP_MAX_ATTEMPTS"),

		PaymentKeyID:         v.GetString("PAYMENT_KEY_ID"),
		PaymentKeySecret:     v.GetString("PAYMENT_KEY_SECRET"),
		PaymentWebhookSecret: v.GetString("PAYMENT_WEBHOOK_SECRET"),
		PaymentAPIURL:        v.GetString("PAYMENT_API_URL"),

		CarrierAPIURL:         v.GetString("CARRIER_API_URL"),
		CarrierAPIToken:       v.GetString("CARRIER_API_TOKEN"),
		CarrierPickupLocation: v.GetString("CARRIER_PICKUP_LOCATION"),
		CarrierTimeout:        v.GetDuration("CARRIER_TIMEOUT"),
		TrackingConcurrency:   v.GetInt("TRACKING_CONCURRENCY"),

		ShippingFlatFee:       v.GetInt64("SHIPPING_FLAT_FEE"),
		FreeShippingThreshold: v.GetInt64("FREE_SHIPPING_THRESHOLD"),
		TaxRateBps:            v.GetInt64("TAX_RATE_BPS"),

		SMTPHost:     v.GetString("SMTP_HOST"),
		SMTPPort:     v.GetInt("SMTP_PORT"),
		SMTPUsername: v.GetString("SMTP_USERNAME"),
		SMTPPassword: v.GetString("SMTP_PASSWORD"),
		MailFrom:     v.GetString("MAIL_FROM"),

		AWSRegion:          v.GetString("AWS_REGION"),
		AWSS3Bucket:        v.GetString("AWS_S3_BUCKET"),
		AWSAccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),

		SentryDSN:    v.GetString("SENTRY_DSN"),
		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	appConfig = config
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("GO_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	v.SetDefault("ADMIN_JWT_ISSUER", "storefront-api")
	v.SetDefault("ADMIN_TOKEN_TTL", "12h")
	v.SetDefault("SESSION_TTL", "720h")
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)

	v.SetDefault("PAYMENT_API_URL", "https://api.razorpay.com/v1")
	v.SetDefault("CARRIER_TIMEOUT", "15s")
	v.SetDefault("CARRIER_PICKUP_LOCATION", "Primary")
	v.SetDefault("TRACKING_CONCURRENCY", 4)

	v.SetDefault("SHIPPING_FLAT_FEE", 5000)
	v.SetDefault("FREE_SHIPPING_THRESHOLD", 99900)
	v.SetDefault("TAX_RATE_BPS", 0)

	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("MAIL_FROM", "orders@localhost")
	v.SetDefault("AWS_REGION", "ap-south-1")
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !c.IsTest() && len(c.AdminJWTSecret) < 32 {
		return fmt.Errorf("ADMIN_JWT_SECRET must be at least 32 bytes")
	}
	if c.ShippingFlatFee < 0 || c.FreeShippingThreshold < 0 || c.TaxRateBps < 0 {
		return fmt.Errorf("shipping and tax settings must not be negative")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// GetConfig returns the configuration loaded by Load
func GetConfig() *Config {
	return appConfig
}

// SetConfig replaces the active configuration (primarily for testing)
func SetConfig(cfg *Config) {
	appConfig = cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
