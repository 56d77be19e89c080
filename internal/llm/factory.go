package llm

import (
	"fmt"
	"strings"

	"github.com/sablehq/sable/internal/config"
)

// Provider type names accepted in config.
const (
	ProviderTypeAnthropic    = "anthropic"
	ProviderTypeOpenAI       = "openai"
	ProviderTypeOpenAICompat = "openai-compat"
	ProviderTypeOpenRouter   = "openrouter"
	ProviderTypeZAI          = "zai"
	ProviderTypeOllama       = "ollama"
)

// InferProviderType resolves the backend type for a provider entry: an
// explicit type wins, otherwise the entry's name must be a known type.
func InferProviderType(name string, pc *config.ProviderConfig) string {
	if pc.Type != "" {
		return pc.Type
	}
	return strings.ToLower(name)
}

// NewProvider creates the active provider from config, wrapped with the
// single-retry policy for transient failures.
func NewProvider(cfg *config.Config) (Provider, error) {
	name, pc, err := cfg.ActiveProviderConfig()
	if err != nil {
		return nil, err
	}
	return NewProviderByName(cfg, name, pc)
}

// NewProviderByName creates a named provider from its config entry.
func NewProviderByName(cfg *config.Config, name string, pc config.ProviderConfig) (Provider, error) {
	provider, err := newProviderInternal(name, pc)
	if err != nil {
		return nil, err
	}
	return WrapWithRetry(provider, DefaultRetryConfig()), nil
}

func newProviderInternal(name string, pc config.ProviderConfig) (Provider, error) {
	switch InferProviderType(name, &pc) {
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(pc.APIKey, pc.APIURL, pc.Model)
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(pc.APIKey, pc.APIURL, pc.Model)
	case ProviderTypeOpenRouter:
		if pc.APIKey == "" {
			return nil, NewError(KindAuthMissing, "openrouter API key not configured")
		}
		appURL := pc.AppURL
		if appURL == "" {
			appURL = "https://github.com/sablehq/sable"
		}
		appTitle := pc.AppTitle
		if appTitle == "" {
			appTitle = "sable"
		}
		return NewOpenRouterProvider(pc.APIKey, pc.Model, appURL, appTitle), nil
	case ProviderTypeZAI:
		if pc.APIKey == "" {
			return nil, NewError(KindAuthMissing, "z.ai API key not configured")
		}
		return NewZAIProvider(pc.APIURL, pc.APIKey, pc.Model), nil
	case ProviderTypeOllama:
		return NewOllamaProvider(pc.APIURL, pc.Model), nil
	case ProviderTypeOpenAICompat:
		if pc.APIURL == "" {
			return nil, NewErrorf(KindInvalidParams, "provider %s: api_url is required", name)
		}
		return NewOpenAICompatProvider(pc.APIURL, pc.APIKey, pc.Model, name), nil
	default:
		return nil, fmt.Errorf("unknown provider type for %q", name)
	}
}

// RequestFromConfig seeds a Request with the provider entry's
// generation options.
func RequestFromConfig(cfg *config.Config, pc config.ProviderConfig) Request {
	return Request{
		Model:           pc.Model,
		MaxOutputTokens: pc.MaxTokens,
		Temperature:     pc.Temperature,
		MaxTurns:        cfg.ToolLoopLimit,
		Debug:           cfg.Debug,
	}
}
