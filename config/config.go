package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all application configuration, constructed once at startup and
// passed explicitly through the handler layer.
type Config struct {
	ServerAddress string `mapstructure:"SERVER_ADDRESS"`

	DataAPIURL       string `mapstructure:"DATA_API_URL"`
	DataAPIAuthToken string `mapstructure:"DATA_API_AUTH_TOKEN"`

	NotifyAPIURL      string `mapstructure:"NOTIFY_API_URL"`
	NotifyAPIKey      string `mapstructure:"NOTIFY_API_KEY"`
	NotifyFromName    string `mapstructure:"NOTIFY_FROM_NAME"`
	NotifyFromAddress string `mapstructure:"NOTIFY_FROM_ADDRESS"`

	ClarificationEmail string `mapstructure:"CLARIFICATION_EMAIL"`
	FollowUpEmail      string `mapstructure:"FOLLOW_UP_EMAIL"`

	DocumentsBucket   string `mapstructure:"DOCUMENTS_BUCKET"`
	DocumentsRegion   string `mapstructure:"DOCUMENTS_REGION"`
	DocumentsEndpoint string `mapstructure:"DOCUMENTS_ENDPOINT"`
	AssetsURL         string `mapstructure:"ASSETS_URL"`

	SessionSecret string `mapstructure:"SESSION_SECRET"`
	SecureCookies bool   `mapstructure:"SECURE_COOKIES"`

	FeatureContractVariations bool `mapstructure:"FEATURE_CONTRACT_VARIATIONS"`

	RateLimitPerSecond float64 `mapstructure:"RATE_LIMIT_PER_SECOND"`
	RateLimitBurst     int     `mapstructure:"RATE_LIMIT_BURST"`
}

// Load reads configuration from the environment into a Config struct.
func Load() (Config, error) {
	v := viper.New()
	v.SetDefault("SERVER_ADDRESS", ":5003")
	v.SetDefault("NOTIFY_FROM_NAME", "Digital Marketplace Admin")
	v.SetDefault("NOTIFY_FROM_ADDRESS", "do-not-reply@digitalmarketplace.service.gov.uk")
	v.SetDefault("DOCUMENTS_REGION", "eu-west-1")
	v.SetDefault("SECURE_COOKIES", true)
	v.SetDefault("FEATURE_CONTRACT_VARIATIONS", true)
	v.SetDefault("RATE_LIMIT_PER_SECOND", 50.0)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	for _, key := range []string{
		"SERVER_ADDRESS",
		"DATA_API_URL", "DATA_API_AUTH_TOKEN",
		"NOTIFY_API_URL", "NOTIFY_API_KEY", "NOTIFY_FROM_NAME", "NOTIFY_FROM_ADDRESS",
		"CLARIFICATION_EMAIL", "FOLLOW_UP_EMAIL",
		"DOCUMENTS_BUCKET", "DOCUMENTS_REGION", "DOCUMENTS_ENDPOINT", "ASSETS_URL",
		"SESSION_SECRET", "SECURE_COOKIES",
		"FEATURE_CONTRACT_VARIATIONS",
		"RATE_LIMIT_PER_SECOND", "RATE_LIMIT_BURST",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.DataAPIURL == "" {
		return Config{}, fmt.Errorf("DATA_API_URL must be set")
	}
	if cfg.SessionSecret == "" {
		return Config{}, fmt.Errorf("SESSION_SECRET must be set")
	}
	return cfg, nil
}
