/**
 * @description
 * Configuration management for the checkout-service. Uses Viper to read an
 * optional .env file and bind environment variables, with sane defaults and
 * post-load sanitization for the values that must never be empty.
 */
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the checkout-service, loaded from
// environment variables.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	BillingEventQueue string `mapstructure:"BILLING_EVENT_QUEUE"`

	BillingAPIBaseURL string `mapstructure:"BILLING_API_BASE_URL"`
	BillingAPIKey     string `mapstructure:"BILLING_API_KEY"`
	GatewayAPIBaseURL string `mapstructure:"GATEWAY_API_BASE_URL"`
	GatewayAPIKey     string `mapstructure:"GATEWAY_API_KEY"`

	WebhookSecret string `mapstructure:"BILLING_WEBHOOK_SECRET"`
	JWTSecret     string `mapstructure:"JWT_SECRET"`

	SessionTTLMinutes int `mapstructure:"SESSION_TTL_MINUTES"`
	DailyAttemptLimit int `mapstructure:"DAILY_ATTEMPT_LIMIT"`

	PollMaxAttempts    int `mapstructure:"POLL_MAX_ATTEMPTS"`
	PollIntervalMs     int `mapstructure:"POLL_INTERVAL_MS"`
	PollMinTotalWaitMs int `mapstructure:"POLL_MIN_TOTAL_WAIT_MS"`

	SessionCleanupSchedule string `mapstructure:"SESSION_CLEANUP_SCHEDULE"`
	ReconcileSchedule      string `mapstructure:"RECONCILE_SCHEDULE"`

	AttemptCounterPrefix string `mapstructure:"ATTEMPT_COUNTER_PREFIX"`
}

// LoadConfig reads configuration from the optional .env file at path and
// from the environment.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("BILLING_EVENT_QUEUE", "checkout_service.billing_updates")
	viper.SetDefault("SESSION_TTL_MINUTES", 30)
	viper.SetDefault("DAILY_ATTEMPT_LIMIT", 20)
	viper.SetDefault("POLL_MAX_ATTEMPTS", 15)
	viper.SetDefault("POLL_INTERVAL_MS", 2000)
	viper.SetDefault("POLL_MIN_TOTAL_WAIT_MS", 12000)
	viper.SetDefault("SESSION_CLEANUP_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("RECONCILE_SCHEDULE", "12 * * * *")
	viper.SetDefault("ATTEMPT_COUNTER_PREFIX", "checkout:attempts")

	for _, key := range []string{
		"SERVER_PORT", "PORT", "DATABASE_URL", "REDIS_URL", "RABBITMQ_URL",
		"BILLING_EVENT_QUEUE", "BILLING_API_BASE_URL", "BILLING_API_KEY",
		"GATEWAY_API_BASE_URL", "GATEWAY_API_KEY", "BILLING_WEBHOOK_SECRET",
		"JWT_SECRET", "SESSION_TTL_MINUTES", "DAILY_ATTEMPT_LIMIT",
		"POLL_MAX_ATTEMPTS", "POLL_INTERVAL_MS", "POLL_MIN_TOTAL_WAIT_MS",
		"SESSION_CLEANUP_SCHEDULE", "RECONCILE_SCHEDULE", "ATTEMPT_COUNTER_PREFIX",
	} {
		_ = viper.BindEnv(key)
	}

	// The config file is optional; only the environment is required.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(viper.GetString("PORT")); port != "" {
		config.ServerPort = port
	}
	config.AttemptCounterPrefix = strings.TrimSpace(config.AttemptCounterPrefix)
	if config.AttemptCounterPrefix == "" {
		config.AttemptCounterPrefix = "checkout:attempts"
	}
	if config.SessionTTLMinutes <= 0 {
		config.SessionTTLMinutes = 30
	}
	if config.DailyAttemptLimit <= 0 {
		config.DailyAttemptLimit = 20
	}

	return
}
