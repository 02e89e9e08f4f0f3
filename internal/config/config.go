/**
 * @description
 * Configuration management for the billing bridge. Service settings load from
 * environment variables; the billing catalog loads from a YAML file and is
 * passed in explicitly wherever it is needed, replacing the source system's
 * env-var-driven global lookup.
 */
package config

import (
	"github.com/spf13/viper"
)

// Config holds all environment-driven settings.
type Config struct {
	Port                 string `mapstructure:"PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	LedgerBaseURL        string `mapstructure:"LEDGER_BASE_URL"`
	LedgerAPIKey         string `mapstructure:"LEDGER_API_KEY"`
	StripeSecretKey      string `mapstructure:"STRIPE_SECRET_KEY"`
	UsageBaseURL         string `mapstructure:"USAGE_BASE_URL"`
	UsageAPIKey          string `mapstructure:"USAGE_API_KEY"`
	UsageAccountID       string `mapstructure:"USAGE_ACCOUNT_ID"`
	OrderWebhookSecret   string `mapstructure:"ORDER_WEBHOOK_SECRET"`
	BookingWebhookSecret string `mapstructure:"BOOKING_WEBHOOK_SECRET"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`
	CatalogFile          string `mapstructure:"CATALOG_FILE"`
	PaymentLookbackHours int    `mapstructure:"PAYMENT_LOOKBACK_HOURS"`
	NetTermsDays         int    `mapstructure:"NET_TERMS_DAYS"`
	UsageBillingSchedule string `mapstructure:"USAGE_BILLING_SCHEDULE"`
	Timezone             string `mapstructure:"BILLING_TIMEZONE"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("CATALOG_FILE", "catalog.yaml")
	viper.SetDefault("PAYMENT_LOOKBACK_HOURS", 72)
	viper.SetDefault("NET_TERMS_DAYS", 30)
	viper.SetDefault("USAGE_BILLING_SCHEDULE", "0 3 1 * *") // At 03:00 on day-of-month 1.
	viper.SetDefault("BILLING_TIMEZONE", "UTC")
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("LEDGER_BASE_URL")
	_ = viper.BindEnv("LEDGER_API_KEY")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("USAGE_BASE_URL")
	_ = viper.BindEnv("USAGE_API_KEY")
	_ = viper.BindEnv("USAGE_ACCOUNT_ID")
	_ = viper.BindEnv("ORDER_WEBHOOK_SECRET")
	_ = viper.BindEnv("BOOKING_WEBHOOK_SECRET")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("CATALOG_FILE")
	_ = viper.BindEnv("PAYMENT_LOOKBACK_HOURS")
	_ = viper.BindEnv("NET_TERMS_DAYS")
	_ = viper.BindEnv("USAGE_BILLING_SCHEDULE")
	_ = viper.BindEnv("BILLING_TIMEZONE")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
