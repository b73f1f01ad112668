package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "LOGOLAB"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabasePath       = "logolab.db"
	defaultLogLevel           = "info"
	defaultVotingIntervalDays = 30
	defaultSlackAPIBaseURL    = "https://slack.com/api"
	defaultAdminUserID        = "U078XLAFNMQ"
)

// AppConfig captures runtime configuration for the bot process.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	BotToken           string
	SigningSecret      string
	ReviewChannelID    string
	VotingChannelID    string
	VotingIntervalDays int
	AdminUserID        string
	SlackAPIBaseURL    string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("voting.interval_days", defaultVotingIntervalDays)
	configViper.SetDefault("slack.api_base_url", defaultSlackAPIBaseURL)
	configViper.SetDefault("admin.user_id", defaultAdminUserID)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		BotToken:           configViper.GetString("slack.bot_token"),
		SigningSecret:      configViper.GetString("slack.signing_secret"),
		ReviewChannelID:    configViper.GetString("channel.review"),
		VotingChannelID:    configViper.GetString("channel.voting"),
		VotingIntervalDays: configViper.GetInt("voting.interval_days"),
		AdminUserID:        configViper.GetString("admin.user_id"),
		SlackAPIBaseURL:    configViper.GetString("slack.api_base_url"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("slack.bot_token is required")
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("slack.signing_secret is required")
	}
	if strings.TrimSpace(c.ReviewChannelID) == "" {
		return fmt.Errorf("channel.review is required")
	}
	if strings.TrimSpace(c.VotingChannelID) == "" {
		return fmt.Errorf("channel.voting is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.VotingIntervalDays <= 0 {
		return fmt.Errorf("voting.interval_days must be positive")
	}
	return nil
}
