package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/pkg/config"
)

// ErrNoAPIKey means the provider is not configured; the chat answers with a
// maintenance message instead of failing.
var ErrNoAPIKey = errors.New("ai: provider api key not configured")

// Completion is the provider's answer with its token report.
type Completion struct {
	Content string
	Usage   domain.Usage
}

// Provider generates a reply for an assembled conversation.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (*Completion, error)
}

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	breaker     *apperrors.CircuitBreaker
}

// NewOpenAIProvider returns a provider for cfg. Without an API key every call fails with ErrNoAPIKey.
func NewOpenAIProvider(cfg config.AIConfig, breaker *apperrors.CircuitBreaker) *OpenAIProvider {
	p := &OpenAIProvider{
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		breaker:     breaker,
	}
	if cfg.APIKey == "" {
		return p
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	p.client = openai.NewClientWithConfig(oc)
	return p
}

func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	if p.client == nil {
		return nil, ErrNoAPIKey
	}

	req := openai.ChatCompletionRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	var out *Completion
	call := func() error {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("chat completion: empty choices")
		}
		out = &Completion{
			Content: strings.TrimSpace(resp.Choices[0].Message.Content),
			Usage: domain.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
		return nil
	}

	var err error
	if p.breaker != nil {
		err = p.breaker.Call(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// classify marks throttling and upstream failures as external API errors.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500) {
		return apperrors.NewExternalAPIError("openai", err)
	}
	return fmt.Errorf("chat completion: %w", err)
}
