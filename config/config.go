package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProviderConfig holds the settings for one upstream LLM provider.
type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

type Config struct {
	// Server
	Port     string // default: 8000
	LogLevel string // debug, info, warn, error
	// LogFormat is "json" or "console".
	LogFormat string

	// LLM gateway
	DefaultLLMProvider string
	LLMRetryCount      int
	LLMRetryDelay      time.Duration
	LLMTimeout         time.Duration
	RetryTransientOnly bool
	CircuitBreaker     bool
	MockLLM            bool

	// Providers
	OpenAI ProviderConfig
	Claude ProviderConfig
	Kimi   ProviderConfig
	Gemini ProviderConfig

	// Observability
	OTELExporterType     string // "none", "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Cache, optional
	RedisAddr string

	// Rate Limiting
	RateLimitPerMinute int

	// Agents
	ChatHistorySize int
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8000"),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(getEnv("LOG_FORMAT", "json")),
		DefaultLLMProvider:   getEnv("DEFAULT_LLM_PROVIDER", "openai"),
		OTELExporterType:     strings.ToLower(getEnv("OTEL_EXPORTER_TYPE", "none")),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
	}

	var err error
	if cfg.LLMRetryCount, err = getInt("LLM_RETRY_COUNT", 3); err != nil {
		return nil, err
	}
	if cfg.LLMRetryDelay, err = getSeconds("LLM_RETRY_DELAY", 1.0); err != nil {
		return nil, err
	}
	if cfg.LLMTimeout, err = getSeconds("LLM_TIMEOUT", 30); err != nil {
		return nil, err
	}
	if cfg.RetryTransientOnly, err = getBool("LLM_RETRY_TRANSIENT_ONLY", false); err != nil {
		return nil, err
	}
	if cfg.CircuitBreaker, err = getBool("LLM_CIRCUIT_BREAKER", false); err != nil {
		return nil, err
	}
	if cfg.MockLLM, err = getBool("MOCK_LLM", false); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = getInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return nil, err
	}
	if cfg.ChatHistorySize, err = getInt("CHAT_HISTORY_SIZE", 100); err != nil {
		return nil, err
	}

	providers := []struct {
		prefix string
		dst    *ProviderConfig
		def    ProviderConfig
	}{
		{"OPENAI", &cfg.OpenAI, ProviderConfig{BaseURL: "https://api.openai.com/v1", Model: "gpt-3.5-turbo", MaxTokens: 2000, Temperature: 0.7}},
		{"CLAUDE", &cfg.Claude, ProviderConfig{BaseURL: "https://api.anthropic.com", Model: "claude-3-haiku-20240307", MaxTokens: 2000, Temperature: 0.7}},
		{"KIMI", &cfg.Kimi, ProviderConfig{BaseURL: "https://api.moonshot.cn", Model: "moonshot-v1-8k", MaxTokens: 2000, Temperature: 0.7}},
		{"GEMINI", &cfg.Gemini, ProviderConfig{BaseURL: "https://generativelanguage.googleapis.com", Model: "gemini-2.0-flash", MaxTokens: 2000, Temperature: 0.7}},
	}
	for _, p := range providers {
		pc, err := loadProvider(p.prefix, p.def)
		if err != nil {
			return nil, err
		}
		*p.dst = pc
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that parsing alone cannot catch.
func (c *Config) Validate() error {
	if c.LLMRetryCount < 1 {
		return fmt.Errorf("LLM_RETRY_COUNT must be at least 1, got %d", c.LLMRetryCount)
	}
	if c.LLMRetryDelay < 0 {
		return fmt.Errorf("LLM_RETRY_DELAY must not be negative")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if c.RateLimitPerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be at least 1, got %d", c.RateLimitPerMinute)
	}
	if c.ChatHistorySize < 1 {
		return fmt.Errorf("CHAT_HISTORY_SIZE must be at least 1, got %d", c.ChatHistorySize)
	}
	switch c.OTELExporterType {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("invalid OTEL_EXPORTER_TYPE %q", c.OTELExporterType)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

func loadProvider(prefix string, def ProviderConfig) (ProviderConfig, error) {
	pc := ProviderConfig{
		APIKey:  os.Getenv(prefix + "_API_KEY"),
		BaseURL: getEnv(prefix+"_API_BASE", def.BaseURL),
		Model:   getEnv(prefix+"_MODEL", def.Model),
	}
	var err error
	if pc.MaxTokens, err = getInt(prefix+"_MAX_TOKENS", def.MaxTokens); err != nil {
		return pc, err
	}
	if pc.Temperature, err = getFloat(prefix+"_TEMPERATURE", def.Temperature); err != nil {
		return pc, err
	}
	return pc, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// getSeconds reads a value in (possibly fractional) seconds.
func getSeconds(key string, fallback float64) (time.Duration, error) {
	f, err := getFloat(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}
