/**
 * @description
 * This package handles configuration management for the payment settlement
 * core. It uses the Viper library to read configuration from environment
 * variables, providing a centralized way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the settlement core.
// These values are loaded from environment variables.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	RedisDedupPrefix      string `mapstructure:"REDIS_DEDUP_PREFIX"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	StripeAPIBaseURL      string `mapstructure:"STRIPE_API_BASE_URL"`
	StripeSecretKey       string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret   string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	AppBaseURL            string `mapstructure:"APP_BASE_URL"`
	AuthJWKSURL           string `mapstructure:"AUTH_JWKS_URL"`
	AuthIssuer            string `mapstructure:"AUTH_ISSUER"`
	AuthAudience          string `mapstructure:"AUTH_AUDIENCE"`
	GatewayTimeoutSeconds int    `mapstructure:"GATEWAY_TIMEOUT_SECONDS"`
	ConnectCountry        string `mapstructure:"CONNECT_COUNTRY"`
	ChargeCurrency        string `mapstructure:"CHARGE_CURRENCY"`
	ConnectBusinessMCC    string `mapstructure:"CONNECT_BUSINESS_MCC"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("STRIPE_API_BASE_URL", "https://api.stripe.com")
	viper.SetDefault("REDIS_DEDUP_PREFIX", "goredshirt:webhook_events")
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 15)
	viper.SetDefault("CONNECT_COUNTRY", "US")
	viper.SetDefault("CHARGE_CURRENCY", "usd")
	// 8299: "Educational Services" covers coaching.
	viper.SetDefault("CONNECT_BUSINESS_MCC", "8299")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_DEDUP_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("STRIPE_API_BASE_URL")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("APP_BASE_URL")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("AUTH_ISSUER")
	_ = viper.BindEnv("AUTH_AUDIENCE")
	_ = viper.BindEnv("GATEWAY_TIMEOUT_SECONDS")
	_ = viper.BindEnv("CONNECT_COUNTRY")
	_ = viper.BindEnv("CHARGE_CURRENCY")
	_ = viper.BindEnv("CONNECT_BUSINESS_MCC")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	config.AppBaseURL = strings.TrimSuffix(strings.TrimSpace(config.AppBaseURL), "/")
	config.StripeAPIBaseURL = strings.TrimSuffix(strings.TrimSpace(config.StripeAPIBaseURL), "/")

	if config.GatewayTimeoutSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"invalid gateway timeout; using default\" seconds=%d", config.GatewayTimeoutSeconds)
		config.GatewayTimeoutSeconds = 15
	}
	if strings.TrimSpace(config.ConnectCountry) == "" {
		config.ConnectCountry = "US"
	}
	if strings.TrimSpace(config.ChargeCurrency) == "" {
		config.ChargeCurrency = "usd"
	}

	return
}
