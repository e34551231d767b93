// Package llm talks to OpenAI-compatible chat completion endpoints and runs
// the tool-calling agent loop for sales summaries.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/salessupport/salesagent/internal/config"
	openai "github.com/sashabaranov/go-openai"
)

var displayNames = map[string]string{
	config.ProviderLMStudio:     "LM Studio",
	config.ProviderOllama:       "Ollama",
	config.ProviderAzureOpenAI:  "Azure OpenAI",
	config.ProviderOpenAI:       "OpenAI",
	config.ProviderGitHubModels: "GitHub Models",
}

// ProviderError reports a failed completion call.
type ProviderError struct {
	Provider string
	Model    string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%s): HTTP %d: %v", e.Provider, e.Model, e.Status, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Provider is a configured OpenAI-compatible chat completion endpoint.
type Provider struct {
	kind   string
	model  string
	client *openai.Client
}

// NewProvider builds the provider selected by cfg.Provider. Missing
// required settings fail here rather than on the first request.
func NewProvider(cfg config.LLMConfig) (*Provider, error) {
	var (
		cc    openai.ClientConfig
		model string
	)
	switch cfg.Provider {
	case config.ProviderLMStudio:
		s := cfg.LMStudio
		cc = openai.DefaultConfig(s.APIKey)
		cc.BaseURL = strings.TrimRight(s.Endpoint, "/")
		model = s.Model

	case config.ProviderOllama:
		s := cfg.Ollama
		cc = openai.DefaultConfig(s.APIKey)
		cc.BaseURL = ollamaBaseURL(s.Endpoint)
		model = s.Model

	case config.ProviderAzureOpenAI:
		s := cfg.AzureOpenAI
		if s.Endpoint == "" || s.APIKey == "" || s.Model == "" {
			return nil, errors.New("azure openai: endpoint, api key and deployment are required")
		}
		cc = openai.DefaultAzureConfig(s.APIKey, s.Endpoint)
		if s.APIVersion != "" {
			cc.APIVersion = s.APIVersion
		}
		deployment := s.Model
		cc.AzureModelMapperFunc = func(string) string { return deployment }
		model = s.Model

	case config.ProviderOpenAI:
		s := cfg.OpenAI
		if s.APIKey == "" {
			return nil, errors.New("openai: api key is required")
		}
		cc = openai.DefaultConfig(s.APIKey)
		if s.Endpoint != "" {
			cc.BaseURL = strings.TrimRight(s.Endpoint, "/")
		}
		model = s.Model

	case config.ProviderGitHubModels:
		s := cfg.GitHubModels
		if s.APIKey == "" {
			return nil, errors.New("github models: token is required")
		}
		cc = openai.DefaultConfig(s.APIKey)
		cc.BaseURL = strings.TrimRight(s.Endpoint, "/")
		model = s.Model

	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	if model == "" {
		return nil, fmt.Errorf("%s: model is required", cfg.Provider)
	}
	return &Provider{
		kind:   cfg.Provider,
		model:  model,
		client: openai.NewClientWithConfig(cc),
	}, nil
}

func ollamaBaseURL(endpoint string) string {
	base := strings.TrimRight(endpoint, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// Name returns the display name of the provider.
func (p *Provider) Name() string {
	if n, ok := displayNames[p.kind]; ok {
		return n
	}
	return p.kind
}

// Model returns the model or deployment name.
func (p *Provider) Model() string { return p.model }

// complete sends one chat completion request and returns the first choice.
func (p *Provider) complete(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return openai.ChatCompletionMessage{}, p.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, p.wrap(errors.New("no choices in completion response"))
	}
	return resp.Choices[0].Message, nil
}

func (p *Provider) wrap(err error) error {
	pe := &ProviderError{Provider: p.Name(), Model: p.model, Err: err}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		pe.Status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		pe.Status = reqErr.HTTPStatusCode
	}
	return pe
}
