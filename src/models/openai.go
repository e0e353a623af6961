package models

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sashabaranov/go-openai"
)

// OpenAILLM speaks the OpenAI chat API. Pointing it at an
// OpenAI-compatible base URL (Ollama's /v1, vLLM, LM Studio) works the
// same way.
type OpenAILLM struct {
	Client       *openai.Client
	Model        string
	PromptPrefix string
}

func NewOpenAILLM(model string, promptPrefix string) *OpenAILLM {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY") // fallback
	}
	config := openai.DefaultConfig(apiKey)
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		config.BaseURL = base
	}
	return &OpenAILLM{Client: openai.NewClientWithConfig(config), Model: model, PromptPrefix: promptPrefix}
}

var _ Agent = (*OpenAILLM)(nil)

func (o *OpenAILLM) Generate(ctx context.Context, prompt string) (string, error) {
	return o.chat(ctx, prompt, nil)
}

func (o *OpenAILLM) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return o.chat(ctx, prompt+"\n\n"+jsonOnlyInstruction, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	})
}

func (o *OpenAILLM) chat(ctx context.Context, prompt string, format *openai.ChatCompletionResponseFormat) (string, error) {
	fullPrompt := prompt
	if o.PromptPrefix != "" {
		fullPrompt = o.PromptPrefix + "\n" + prompt
	}

	resp, err := o.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.Model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: fullPrompt,
		}},
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
