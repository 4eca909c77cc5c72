package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables: CRM_AI_PROVIDER -> ai_provider.
const EnvPrefix = "CRM_"

// Import chunk bounds.
const (
	MinChunkSize = 15
	MaxChunkSize = 50
)

// Config holds all application configuration.
// Values come from defaults, then an optional YAML file, then CRM_* env vars.
type Config struct {
	// Server
	Port        int           `koanf:"port"`
	LogLevel    string        `koanf:"log_level"`
	HTTPTimeout time.Duration `koanf:"http_timeout"`

	// Model service
	AIProvider       string        `koanf:"ai_provider"` // gemini | openai
	AIAPIKey         string        `koanf:"ai_api_key"`
	AIModel          string        `koanf:"ai_model"`
	AIBaseURL        string        `koanf:"ai_base_url"`
	AITimeout        time.Duration `koanf:"ai_timeout"`
	AIMaxRetries     int           `koanf:"ai_max_retries"`
	AIInitialBackoff time.Duration `koanf:"ai_initial_backoff"`
	AIMaxConcurrency int           `koanf:"ai_max_concurrency"`

	// Import
	ImportChunkSize int   `koanf:"import_chunk_size"`
	ImportMaxBytes  int64 `koanf:"import_max_bytes"`

	// Advisor
	AdvisorMinChars int           `koanf:"advisor_min_chars"`
	AdvisorDebounce time.Duration `koanf:"advisor_debounce"`

	// Cache
	CacheTTL     time.Duration `koanf:"cache_ttl"`
	ImportJobTTL time.Duration `koanf:"import_job_ttl"`

	// Observability
	OTLPEndpoint string `koanf:"otlp_endpoint"`

	// Session
	JWTSecret         string `koanf:"jwt_secret"`
	DefaultTenantID   string `koanf:"default_tenant_id"`
	DefaultTenantName string `koanf:"default_tenant_name"`
	DefaultCurrency   string `koanf:"default_currency"`
	DefaultTimezone   string `koanf:"default_timezone"`
	DefaultUserID     string `koanf:"default_user_id"`
	DefaultUserName   string `koanf:"default_user_name"`

	// Persistence & events
	DBPath           string `koanf:"db_path"`
	RabbitMQURL      string `koanf:"rabbitmq_url"`
	RabbitMQExchange string `koanf:"rabbitmq_exchange"`
}

// Default returns a Config with the values used when nothing is configured.
func Default() *Config {
	return &Config{
		Port:        8080,
		LogLevel:    "info",
		HTTPTimeout: 10 * time.Second,

		AIProvider:       "gemini",
		AIModel:          "gemini-2.5-flash",
		AITimeout:        30 * time.Second,
		AIMaxRetries:     0,
		AIInitialBackoff: 200 * time.Millisecond,
		AIMaxConcurrency: 8,

		ImportChunkSize: 25,
		ImportMaxBytes:  10 << 20,

		AdvisorMinChars: 50,
		AdvisorDebounce: time.Second,

		CacheTTL:     5 * time.Minute,
		ImportJobTTL: time.Hour,

		DefaultTenantID:   "tenant-123",
		DefaultTenantName: "Neural Workspace",
		DefaultCurrency:   "PKR",
		DefaultTimezone:   "Asia/Karachi",
		DefaultUserID:     "user-456",
		DefaultUserName:   "Hamza",

		DBPath:           "data/crm.db",
		RabbitMQExchange: "crm.events",
	}
}

// Load reads configuration from the given YAML file, when it exists, then
// overlays CRM_* environment variables. An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.AIProvider = strings.ToLower(strings.TrimSpace(cfg.AIProvider))
	cfg.ImportChunkSize = ClampChunkSize(cfg.ImportChunkSize)
	return cfg, nil
}

// ClampChunkSize keeps the import chunk size within [MinChunkSize, MaxChunkSize].
func ClampChunkSize(n int) int {
	if n < MinChunkSize {
		return MinChunkSize
	}
	if n > MaxChunkSize {
		return MaxChunkSize
	}
	return n
}

var validProviders = map[string]bool{
	"gemini": true,
	"openai": true,
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if !validProviders[c.AIProvider] {
		return fmt.Errorf("invalid ai_provider %q: must be one of gemini, openai", c.AIProvider)
	}
	if c.AIModel == "" {
		return fmt.Errorf("ai_model is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.AITimeout <= 0 {
		return fmt.Errorf("ai_timeout must be positive")
	}
	if c.AIMaxRetries < 0 {
		return fmt.Errorf("ai_max_retries must be non-negative")
	}
	if c.AIMaxConcurrency < 1 {
		return fmt.Errorf("ai_max_concurrency must be at least 1")
	}
	if c.ImportChunkSize < MinChunkSize || c.ImportChunkSize > MaxChunkSize {
		return fmt.Errorf("import_chunk_size must be within %d-%d", MinChunkSize, MaxChunkSize)
	}
	if c.ImportMaxBytes <= 0 {
		return fmt.Errorf("import_max_bytes must be positive")
	}
	if c.AdvisorMinChars < 0 {
		return fmt.Errorf("advisor_min_chars must be non-negative")
	}
	if c.DefaultTenantID == "" || c.DefaultUserID == "" {
		return fmt.Errorf("default tenant and user are required")
	}
	return nil
}
