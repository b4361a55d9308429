/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix       string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	IngestEventQueue     string `mapstructure:"INGEST_EVENT_QUEUE"`
	StatsTimezone        string `mapstructure:"STATS_TIMEZONE"`
	StatsCacheTTLSeconds int    `mapstructure:"STATS_CACHE_TTL_SECONDS"`
	RecentLimit          int    `mapstructure:"RECENT_TRANSACTIONS_LIMIT"`
	BackupRetentionCount int    `mapstructure:"BACKUP_RETENTION_COUNT"`
	BackupPruneSchedule  string `mapstructure:"BACKUP_PRUNE_SCHEDULE"`
	AllowZeroAmountMatch bool   `mapstructure:"ALLOW_ZERO_AMOUNT_MATCH"`
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
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("INGEST_EVENT_QUEUE", "ledger_service.sms_ingest")
	viper.SetDefault("REDIS_KEY_PREFIX", "smswatch")
	viper.SetDefault("STATS_TIMEZONE", "Asia/Dhaka")
	viper.SetDefault("STATS_CACHE_TTL_SECONDS", 10)
	viper.SetDefault("RECENT_TRANSACTIONS_LIMIT", 20)
	viper.SetDefault("BACKUP_RETENTION_COUNT", 100)
	viper.SetDefault("BACKUP_PRUNE_SCHEDULE", "@hourly")
	viper.SetDefault("ALLOW_ZERO_AMOUNT_MATCH", false)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("INGEST_EVENT_QUEUE")
	_ = viper.BindEnv("STATS_TIMEZONE")
	_ = viper.BindEnv("STATS_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("RECENT_TRANSACTIONS_LIMIT")
	_ = viper.BindEnv("BACKUP_RETENTION_COUNT")
	_ = viper.BindEnv("BACKUP_PRUNE_SCHEDULE")
	_ = viper.BindEnv("ALLOW_ZERO_AMOUNT_MATCH")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "smswatch"
	}

	if _, tzErr := time.LoadLocation(config.StatsTimezone); tzErr != nil {
		log.Printf("level=warn component=config msg=\"invalid STATS_TIMEZONE; falling back to Asia/Dhaka\" value=%q err=%v", config.StatsTimezone, tzErr)
		config.StatsTimezone = "Asia/Dhaka"
	}

	if config.StatsCacheTTLSeconds < 0 {
		log.Printf("level=warn component=config msg=\"negative stats cache ttl; coercing to zero\" ttl_seconds=%d", config.StatsCacheTTLSeconds)
		config.StatsCacheTTLSeconds = 0
	}
	if config.RecentLimit <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive recent limit; using default\" limit=%d", config.RecentLimit)
		config.RecentLimit = 20
	}
	// A non-positive retention count disables pruning entirely.
	if config.BackupPruneSchedule == "" {
		config.BackupPruneSchedule = "@hourly"
	}

	return
}

// StatsLocation resolves the configured statistics time zone. LoadConfig has
// already validated the name.
func (c Config) StatsLocation() *time.Location {
	loc, err := time.LoadLocation(c.StatsTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StatsCacheTTL returns the snapshot cache TTL as a duration.
func (c Config) StatsCacheTTL() time.Duration {
	return time.Duration(c.StatsCacheTTLSeconds) * time.Second
}
