// Package config handles application configuration using Viper.
// Viper supports YAML files, environment variables, and defaults, merged in priority order.
// Go convention: configuration is loaded into structs, not accessed as raw key-value pairs.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: SITELEDGER_SERVER_PORT=9090.
const EnvPrefix = "SITELEDGER"

// ConfigPathEnv names the variable holding an explicit config file path.
const ConfigPathEnv = EnvPrefix + "_CONFIG_PATH"

// Config is the root configuration struct. Nested structs organize related settings.
// `mapstructure` tags tell Viper how to map YAML/env keys to struct fields.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Receipts  ReceiptsConfig  `mapstructure:"receipts"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type StorageConfig struct {
	// Driver is "sqlite3" or "postgres".
	Driver     string `mapstructure:"driver"`
	DSN        string `mapstructure:"dsn"`
	ReceiptDir string `mapstructure:"receipt_dir"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	AdminKeys []string      `mapstructure:"admin_keys"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LLMConfig holds per-vendor model and endpoint settings. API keys are not
// here: they are per user and live in the provider_configs table.
type LLMConfig struct {
	Gemini          VendorConfig  `mapstructure:"gemini"`
	Claude          ClaudeConfig  `mapstructure:"claude"`
	OpenAI          VendorConfig  `mapstructure:"openai"`
	SettingsTimeout time.Duration `mapstructure:"settings_timeout"`
	// RatePerMinute caps provider attempts across all users. Zero disables it.
	RatePerMinute int `mapstructure:"rate_per_minute"`
}

type VendorConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type ClaudeConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	// ProxyURL routes Claude calls through a relay that holds the key;
	// ProxyToken authenticates to that relay.
	ProxyURL   string `mapstructure:"proxy_url"`
	ProxyToken string `mapstructure:"proxy_token"`
}

type ReceiptsConfig struct {
	MaxDimension   int   `mapstructure:"max_dimension"`
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from a .env file, a YAML file and environment
// variables. In Go, functions return errors as the last return value and
// callers must check them. This pattern replaces try/catch.
func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults: these apply when neither file nor env provides a value
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.driver", "sqlite3")
	v.SetDefault("storage.dsn", "./storage/site-ledger.db")
	v.SetDefault("storage.receipt_dir", "./storage/receipts")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.admin_keys", []string{})
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("llm.gemini.model", "gemini-2.0-flash")
	v.SetDefault("llm.gemini.base_url", "")
	v.SetDefault("llm.claude.model", "claude-sonnet-4-5")
	v.SetDefault("llm.claude.base_url", "")
	v.SetDefault("llm.claude.proxy_url", "")
	v.SetDefault("llm.claude.proxy_token", "")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.settings_timeout", 10*time.Second)
	v.SetDefault("llm.rate_per_minute", 0)
	v.SetDefault("receipts.max_dimension", 1568)
	v.SetDefault("receipts.max_upload_bytes", 10<<20)
	v.SetDefault("rate_limit.requests_per_second", 2)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("log.level", "info")

	// Read from YAML config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Read config file (ignore "not found": defaults + env are enough)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && configPath != "" {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Environment variables override everything. AutomaticEnv only sees keys
	// viper already knows about, which is why every key above has a default.
	// SITELEDGER_ prefix + nested keys: SITELEDGER_LLM_CLAUDE_MODEL → llm.claude.model
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("storage.driver must be sqlite3 or postgres, got %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return errors.New("storage.dsn is required")
	}
	return nil
}

// Address returns the listen address string like "0.0.0.0:8080".
// This is a method on ServerConfig: Go attaches methods to types via receiver syntax.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
