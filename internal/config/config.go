// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.chatui/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Chat: default provider and per-provider model settings
//   - Storage: PostgreSQL connection (see storage.go)
//   - Services: agent runtime, RAG service, auth service, Ollama
//   - Server: listen address, CORS, rate limiting
//
// Security: sensitive data (the PostgreSQL password) is never logged;
// the config directory uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the chat provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidServerAddr indicates the server listen address is invalid.
	ErrInvalidServerAddr = errors.New("invalid server address")

	// ErrInvalidRateLimit indicates the rate limit settings are out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidServiceURL indicates a collaborating service URL is invalid.
	ErrInvalidServiceURL = errors.New("invalid service URL")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Chat provider identifiers used in Config.Provider.
const (
	ProviderAgent  = "agent"
	ProviderOllama = "ollama"
	ProviderAmazon = "amazon"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, tokens), update MarshalJSON.
type Config struct {
	// Default chat provider for new sessions: "agent", "ollama", or "amazon"
	Provider string `mapstructure:"provider" json:"provider"`

	// Collaborating services
	AgentRuntimeURL string `mapstructure:"agent_runtime_url" json:"agent_runtime_url"`
	RAGServiceURL   string `mapstructure:"rag_service_url" json:"rag_service_url"`
	AuthServiceURL  string `mapstructure:"auth_service_url" json:"auth_service_url"`
	OllamaHost      string `mapstructure:"ollama_host" json:"ollama_host"`

	// Provider settings forwarded to the RAG service with each plan request
	OllamaModel   string `mapstructure:"ollama_model" json:"ollama_model"`
	AmazonRegion  string `mapstructure:"amazon_region" json:"amazon_region"`
	AmazonModelID string `mapstructure:"amazon_model_id" json:"amazon_model_id"`

	// HTTP server configuration
	ServerAddr     string   `mapstructure:"server_addr" json:"server_addr"`
	CORSOrigins    []string `mapstructure:"cors_origins" json:"cors_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.chatui/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".chatui")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* settings
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Chat defaults
	viper.SetDefault("provider", ProviderAgent)

	// Service defaults
	viper.SetDefault("agent_runtime_url", "http://localhost:8000")
	viper.SetDefault("rag_service_url", "http://localhost:8001")
	viper.SetDefault("auth_service_url", "http://localhost:8002")
	viper.SetDefault("ollama_host", "http://localhost:11434")
	viper.SetDefault("ollama_model", "llama3.2")
	viper.SetDefault("amazon_region", "us-east-1")

	// Server defaults (Next.js dev server origin for CORS)
	viper.SetDefault("server_addr", ":8080")
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("rate_limit_rps", 10.0)
	viper.SetDefault("rate_limit_burst", 20)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "chatui")
	viper.SetDefault("postgres_password", "chatui_dev_password")
	viper.SetDefault("postgres_db_name", "chatui")
	viper.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variable overrides explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "CHATUI_PROVIDER")
	mustBind("agent_runtime_url", "CHATUI_AGENT_RUNTIME_URL")
	mustBind("rag_service_url", "CHATUI_RAG_SERVICE_URL")
	mustBind("auth_service_url", "CHATUI_AUTH_SERVICE_URL")
	mustBind("ollama_host", "CHATUI_OLLAMA_HOST")
	mustBind("ollama_model", "CHATUI_OLLAMA_MODEL")
	mustBind("amazon_region", "CHATUI_AMAZON_REGION")
	mustBind("amazon_model_id", "CHATUI_AMAZON_MODEL_ID")
	mustBind("server_addr", "CHATUI_SERVER_ADDR")
	mustBind("cors_origins", "CHATUI_CORS_ORIGINS")

	// NOTE: DATABASE_URL is read directly in parseDatabaseURL, not via Viper,
	// because it expands into several postgres_* fields at once.
}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	validProviders := []string{ProviderAgent, ProviderOllama, ProviderAmazon}
	if !slices.Contains(validProviders, c.Provider) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidProvider, c.Provider, validProviders)
	}

	if c.ServerAddr == "" {
		return fmt.Errorf("%w: server_addr cannot be empty", ErrInvalidServerAddr)
	}

	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("%w: rate_limit_rps must be positive, got %.2f",
			ErrInvalidRateLimit, c.RateLimitRPS)
	}
	if c.RateLimitBurst < 1 {
		return fmt.Errorf("%w: rate_limit_burst must be at least 1, got %d",
			ErrInvalidRateLimit, c.RateLimitBurst)
	}

	for name, u := range map[string]string{
		"agent_runtime_url": c.AgentRuntimeURL,
		"rag_service_url":   c.RAGServiceURL,
		"auth_service_url":  c.AuthServiceURL,
		"ollama_host":       c.OllamaHost,
	} {
		if u == "" {
			return fmt.Errorf("%w: %s cannot be empty", ErrInvalidServiceURL, name)
		}
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d",
			ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "chatui_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	// Reference: https://www.postgresql.org/docs/current/libpq-ssl.html
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid substring matching against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked; longer secrets show the
// first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
