package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vnmchuo/puqee/internal/provider"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-3.5-turbo"
)

type OpenAIProvider struct {
	cfg    provider.Config
	client *http.Client
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Model   string         `json:"model"`
}

type openAIChoice struct {
	Message openAIMessage `json:"message"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func New(cfg provider.Config) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAIProvider{
		cfg:    cfg,
		client: provider.NewHTTPClient(cfg.Timeout),
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []provider.Message, opts provider.Options) (*provider.Response, error) {
	if p.cfg.APIKey == "" {
		return nil, provider.NewError(p.Name(), 0, errors.New("api key not configured"))
	}

	var openAIResp openAIResponse
	err := provider.PostJSON(ctx, p.client, p.Name(),
		fmt.Sprintf("%s/chat/completions", p.cfg.BaseURL),
		map[string]string{"Authorization": fmt.Sprintf("Bearer %s", p.cfg.APIKey)},
		p.mapRequest(messages, opts), &openAIResp)
	if err != nil {
		return nil, err
	}

	if len(openAIResp.Choices) == 0 {
		return nil, provider.NewError(p.Name(), http.StatusOK, errors.New("openai api returned no choices"))
	}

	return &provider.Response{
		Content:  openAIResp.Choices[0].Message.Content,
		Model:    openAIResp.Model,
		Provider: p.Name(),
		Usage: &provider.Usage{
			PromptTokens:     openAIResp.Usage.PromptTokens,
			CompletionTokens: openAIResp.Usage.CompletionTokens,
			TotalTokens:      openAIResp.Usage.TotalTokens,
		},
		Metadata: map[string]any{"response_id": openAIResp.ID},
	}, nil
}

func (p *OpenAIProvider) mapRequest(msgs []provider.Message, opts provider.Options) openAIRequest {
	model, maxTokens, temperature := provider.ResolveOptions(p.cfg, opts)

	messages := make([]openAIMessage, len(msgs))
	for i, m := range msgs {
		messages[i] = openAIMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}

	return openAIRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Model() string {
	return p.cfg.Model
}

func (p *OpenAIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
