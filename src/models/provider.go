package models

import (
	"context"
	"fmt"
	"strings"
)

// NewLLMProvider builds the Agent for a provider name:
// openai|gemini|anthropic|ollama|dummy. The returned agent is wrapped
// with the LLM cache when the cache env vars are set.
func NewLLMProvider(ctx context.Context, provider, model, promptPrefix string) (Agent, error) {
	var (
		agent Agent
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "ollama":
		agent, err = NewOllamaLLM(model, promptPrefix)
	case "openai":
		agent = NewOpenAILLM(model, promptPrefix)
	case "anthropic":
		agent = NewAnthropicLLM(model, promptPrefix)
	case "gemini":
		agent, err = NewGeminiLLM(ctx, model, promptPrefix)
	case "dummy":
		agent = NewDummyLLM(promptPrefix)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	return TryCreateCachedLLM(agent), nil
}
