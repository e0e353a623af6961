package models

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// ---------------------------- Ollama -----------------------------------------

// OllamaLLM talks to a local Ollama daemon through its native API. It is
// the default backend for both generation and extraction.
type OllamaLLM struct {
	Client       *ollama.Client
	Model        string
	PromptPrefix string
}

func NewOllamaLLM(model string, promptPrefix string) (*OllamaLLM, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}

	httpClient := &http.Client{
		Timeout: 60 * time.Second,
	}

	return &OllamaLLM{
		Client:       ollama.NewClient(u, httpClient),
		Model:        model,
		PromptPrefix: promptPrefix,
	}, nil
}

var _ Agent = (*OllamaLLM)(nil)

func (o *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return o.generate(ctx, prompt, nil)
}

// GenerateJSON uses Ollama's structured output mode so extraction
// prompts come back as parseable objects even from small models.
func (o *OllamaLLM) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return o.generate(ctx, prompt, json.RawMessage(`"json"`))
}

func (o *OllamaLLM) generate(ctx context.Context, prompt string, format json.RawMessage) (string, error) {
	fullPrompt := prompt
	if o.PromptPrefix != "" {
		fullPrompt = fmt.Sprintf("%s\n\n%s", o.PromptPrefix, prompt)
	}

	req := &ollama.GenerateRequest{
		Model:  o.Model,
		Prompt: fullPrompt,
		Format: format,
	}

	var text strings.Builder
	err := o.Client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		if gr.Response != "" {
			text.WriteString(gr.Response)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return text.String(), nil
}
