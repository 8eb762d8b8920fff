// internal/llmclient/factory.go
package llmclient

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/config"
)

// NewClient is a factory function that creates a tier-routing LLMClient based
// on the agent configuration.
func NewClient(cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	fastClient, err := newProviderClient(resolveModel(cfg, cfg.LLM.DefaultFastModel), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fast-tier client: %w", err)
	}

	powerfulClient, err := newProviderClient(resolveModel(cfg, cfg.LLM.DefaultPowerfulModel), logger)
	if err != nil {
		_ = fastClient.Close()
		return nil, fmt.Errorf("failed to create powerful-tier client: %w", err)
	}

	return NewLLMRouter(logger, fastClient, powerfulClient, cfg.LLM.RequestsPerMinute)
}

// resolveModel returns the named model's configuration, synthesizing a Gemini
// default when the model has no explicit entry in the config file.
func resolveModel(cfg config.AgentConfig, name string) config.LLMModelConfig {
	if mc, ok := cfg.LLM.Models[name]; ok {
		if mc.Model == "" {
			mc.Model = name
		}
		if mc.APIKey == "" {
			mc.APIKey = os.Getenv("GEMINI_API_KEY")
		}
		return mc
	}
	return config.LLMModelConfig{
		Provider: config.ProviderGemini,
		Model:    name,
		APIKey:   os.Getenv("GEMINI_API_KEY"),
	}
}

func newProviderClient(mc config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	provider := mc.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	switch provider {
	case config.ProviderGemini:
		return NewGeminiClient(mc, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", provider, config.ProviderGemini)
	}
}
