package llm

import (
	"fmt"

	"github.com/anchorage-ai/anchorage/pkg/config"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// NewProvider builds the adapter selected by configuration. The returned
// provider is not connected yet; call Connect before serving traffic.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, config.ProviderDatabricks, config.ProviderOpenRouter:
		baseURL := cfg.BaseURL
		if cfg.Provider == config.ProviderOpenRouter && baseURL == "" {
			baseURL = openRouterBaseURL
		}
		return NewOpenAIClient(OpenAIConfig{
			ProviderLabel: cfg.Provider,
			APIKey:        cfg.APIKey,
			BaseURL:       baseURL,
			Model:         cfg.Model,
			Temperature:   cfg.Temperature,
			MaxTokens:     cfg.MaxTokens,
			Timeout:       cfg.Timeout,
		}), nil
	case config.ProviderClaude:
		return NewClaudeClient(ClaudeConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}), nil
	case config.ProviderGemini:
		return NewGeminiClient(GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}), nil
	case config.ProviderOllama:
		return NewOllamaClient(OllamaConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
