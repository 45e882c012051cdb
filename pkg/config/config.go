package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	AI        AIConfig        `mapstructure:"ai"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Admins    AdminsConfig    `mapstructure:"admins"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type AIConfig struct {
	OpenAIAPIKey    string  `mapstructure:"openai_api_key"`
	OpenAIModel     string  `mapstructure:"openai_model"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"`
	AnthropicModel  string  `mapstructure:"anthropic_model"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
}

type CacheConfig struct {
	GroupTTL    time.Duration `mapstructure:"group_ttl"`
	SettingsTTL time.Duration `mapstructure:"settings_ttl"`
	UserTTL     time.Duration `mapstructure:"user_ttl"`
	MemoryTTL   time.Duration `mapstructure:"memory_ttl"`
}

type LimitsConfig struct {
	UserRequestsPerMinute int           `mapstructure:"user_requests_per_minute"`
	ConfirmationTTL       time.Duration `mapstructure:"confirmation_ttl"`
	MemoryWindow          int           `mapstructure:"memory_window"`
}

type AdminsConfig struct {
	// SuperAdminIDs is the static allow-list; membership grants the
	// super_admin role in every group.
	SuperAdminIDs []int64 `mapstructure:"super_admin_ids"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("ai.openai_model", "gpt-4o-mini")
	v.SetDefault("ai.anthropic_model", "claude-3-5-haiku-latest")
	v.SetDefault("ai.max_tokens", 300)
	v.SetDefault("ai.temperature", 0.3)
	v.SetDefault("ai.timeout_seconds", 30)
	v.SetDefault("cache.group_ttl", 5*time.Minute)
	v.SetDefault("cache.settings_ttl", time.Hour)
	v.SetDefault("cache.user_ttl", 10*time.Minute)
	v.SetDefault("cache.memory_ttl", 5*time.Minute)
	v.SetDefault("limits.user_requests_per_minute", 30)
	v.SetDefault("limits.confirmation_ttl", 5*time.Minute)
	v.SetDefault("limits.memory_window", 10)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.AI.OpenAIAPIKey = apiKey
	}

	if apiKey := v.GetString("ANTHROPIC_API_KEY"); apiKey != "" {
		config.AI.AnthropicAPIKey = apiKey
	}

	if ids := v.GetString("SUPER_ADMIN_IDS"); ids != "" {
		parsed, err := parseAdminIDs(ids)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SUPER_ADMIN_IDS: %v", err)
		}
		config.Admins.SuperAdminIDs = parsed
	}

	return &config, nil
}

func parseAdminIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		var id int64
		if _, err := fmt.Sscanf(p, "%d", &id); err != nil {
			return nil, fmt.Errorf("invalid admin id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
