package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string   `mapstructure:"ENV"`
	LogLevel       string   `mapstructure:"LOG_LEVEL"`
	Port           string   `mapstructure:"PORT"`
	AllowedOrigins []string `mapstructure:"-"`

	ProjectID                    string `mapstructure:"FIREBASE_PROJECT_ID"`
	StorageBucket                string `mapstructure:"FIREBASE_STORAGE_BUCKET"`
	ServiceAccountJSON           string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON"`
	SignedURLServiceAccountEmail string `mapstructure:"SIGNED_URL_SERVICE_ACCOUNT_EMAIL"`

	Timezone string         `mapstructure:"TIMEZONE"`
	Location *time.Location `mapstructure:"-"`

	GoogleMapsAPIKey string `mapstructure:"GOOGLE_MAPS_API_KEY"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	ChatWebhookURL   string `mapstructure:"CHAT_WEBHOOK_URL"`
	ChatWebhookToken string `mapstructure:"CHAT_WEBHOOK_TOKEN"`

	TravelFeeFreeKm float64 `mapstructure:"TRAVEL_FEE_FREE_KM"`
	TravelFeePerKm  float64 `mapstructure:"TRAVEL_FEE_PER_KM"`
	RateLimitPerMin int     `mapstructure:"RATE_LIMIT_PER_MIN"`

	DailyResetCron string `mapstructure:"DAILY_RESET_CRON"`
}

func (c Config) IsProduction() bool { return c.Env == "production" }

var keys = []string{
	"ENV", "LOG_LEVEL", "PORT", "ALLOWED_ORIGINS",
	"FIREBASE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "FIREBASE_STORAGE_BUCKET",
	"FIREBASE_SERVICE_ACCOUNT_JSON", "SIGNED_URL_SERVICE_ACCOUNT_EMAIL",
	"TIMEZONE", "GOOGLE_MAPS_API_KEY",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"CHAT_WEBHOOK_URL", "CHAT_WEBHOOK_TOKEN",
	"TRAVEL_FEE_FREE_KM", "TRAVEL_FEE_PER_KM", "RATE_LIMIT_PER_MIN",
	"DAILY_RESET_CRON",
}

// Load reads config.yaml (from . or ./config, optional) and environment
// variables, the latter taking precedence.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("TIMEZONE", "Asia/Bangkok")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("TRAVEL_FEE_FREE_KM", 3)
	v.SetDefault("TRAVEL_FEE_PER_KM", 10)
	v.SetDefault("RATE_LIMIT_PER_MIN", 60)
	v.SetDefault("DAILY_RESET_CRON", "0 0 * * *")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	// FIREBASE_PROJECT_ID または GOOGLE_CLOUD_PROJECT を読む
	if cfg.ProjectID == "" {
		cfg.ProjectID = v.GetString("GOOGLE_CLOUD_PROJECT")
	}
	if cfg.StorageBucket == "" && cfg.ProjectID != "" {
		cfg.StorageBucket = cfg.ProjectID + ".appspot.com"
	}
	cfg.AllowedOrigins = splitList(v.GetString("ALLOWED_ORIGINS"))

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if cfg.TravelFeeFreeKm < 0 || cfg.TravelFeePerKm < 0 {
		return Config{}, fmt.Errorf("travel fee settings must not be negative")
	}
	if cfg.RateLimitPerMin <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_PER_MIN must be positive")
	}
	return cfg, nil
}

// Now returns the current time in the business time zone.
func (c Config) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

func splitList(s string) []string {
	out := []string{}
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
