package gateway

import (
	"time"

	"go.uber.org/zap"

	"github.com/vnmchuo/puqee/config"
	"github.com/vnmchuo/puqee/internal/provider"
	"github.com/vnmchuo/puqee/internal/provider/breaker"
	"github.com/vnmchuo/puqee/internal/provider/claude"
	"github.com/vnmchuo/puqee/internal/provider/gemini"
	"github.com/vnmchuo/puqee/internal/provider/kimi"
	"github.com/vnmchuo/puqee/internal/provider/mock"
	"github.com/vnmchuo/puqee/internal/provider/openai"
)

const mockLatency = 200 * time.Millisecond

// mockAliases are the names the mock adapter answers to in mock mode, so any
// configured default provider keeps working offline.
var mockAliases = []string{"openai", "claude", "kimi", "gemini", "mock"}

// NewFromConfig builds a gateway with every provider the configuration
// enables. A default provider that ends up unregistered is only logged here;
// dispatch reports it as a ConfigurationError.
func NewFromConfig(cfg *config.Config, logger *zap.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := NewRegistry()

	if cfg.MockLLM {
		m := mock.New(mockLatency)
		for _, name := range mockAliases {
			reg.Register(name, m)
		}
		logger.Info("mock llm mode enabled", zap.Strings("providers", mockAliases))
	} else {
		for name, p := range buildProviders(cfg) {
			if cfg.CircuitBreaker {
				p = breaker.Wrap(p, breaker.DefaultSettings(), logger)
			}
			reg.Register(name, p)
			logger.Info("llm provider registered", zap.String("provider", name), zap.String("model", p.Model()))
		}
	}

	if reg.Len() == 0 {
		logger.Warn("no llm providers configured; set an API key or MOCK_LLM=true")
	}
	if _, err := reg.Resolve(cfg.DefaultLLMProvider); err != nil {
		logger.Warn("default llm provider is not registered",
			zap.String("default_provider", cfg.DefaultLLMProvider),
			zap.Strings("available", reg.List()),
		)
	}

	policy := RetryPolicy{
		MaxAttempts:    cfg.LLMRetryCount,
		BaseDelay:      cfg.LLMRetryDelay,
		AttemptTimeout: cfg.LLMTimeout,
	}
	if cfg.RetryTransientOnly {
		policy.Retryable = provider.IsRetryable
	}

	opts = append([]Option{WithLogger(logger)}, opts...)
	return New(Config{DefaultProvider: cfg.DefaultLLMProvider, Retry: policy}, reg, opts...)
}

func buildProviders(cfg *config.Config) map[string]provider.Provider {
	out := make(map[string]provider.Provider)
	if cfg.OpenAI.APIKey != "" {
		out["openai"] = openai.New(providerConfig(cfg.OpenAI, cfg.LLMTimeout))
	}
	if cfg.Claude.APIKey != "" {
		out["claude"] = claude.New(providerConfig(cfg.Claude, cfg.LLMTimeout))
	}
	if cfg.Kimi.APIKey != "" {
		out["kimi"] = kimi.New(providerConfig(cfg.Kimi, cfg.LLMTimeout))
	}
	if cfg.Gemini.APIKey != "" {
		out["gemini"] = gemini.New(providerConfig(cfg.Gemini, cfg.LLMTimeout))
	}
	return out
}

func providerConfig(pc config.ProviderConfig, timeout time.Duration) provider.Config {
	return provider.Config{
		APIKey:      pc.APIKey,
		BaseURL:     pc.BaseURL,
		Model:       pc.Model,
		MaxTokens:   pc.MaxTokens,
		Temperature: pc.Temperature,
		Timeout:     timeout,
	}
}
