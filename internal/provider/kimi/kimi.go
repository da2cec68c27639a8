// Package kimi adapts the Moonshot (Kimi) chat API, which follows the
// OpenAI chat-completions wire format under a /v1 prefix.
package kimi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vnmchuo/puqee/internal/provider"
)

const (
	defaultBaseURL = "https://api.moonshot.cn"
	defaultModel   = "moonshot-v1-8k"
)

type KimiProvider struct {
	cfg    provider.Config
	client *http.Client
}

type kimiRequest struct {
	Model       string        `json:"model"`
	Messages    []kimiMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type kimiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type kimiResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []kimiChoice `json:"choices"`
	Usage   kimiUsage    `json:"usage"`
}

type kimiChoice struct {
	Message kimiMessage `json:"message"`
}

type kimiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func New(cfg provider.Config) *KimiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &KimiProvider{
		cfg:    cfg,
		client: provider.NewHTTPClient(cfg.Timeout),
	}
}

func (p *KimiProvider) Generate(ctx context.Context, messages []provider.Message, opts provider.Options) (*provider.Response, error) {
	if p.cfg.APIKey == "" {
		return nil, provider.NewError(p.Name(), 0, errors.New("api key not configured"))
	}

	model, maxTokens, temperature := provider.ResolveOptions(p.cfg, opts)
	req := kimiRequest{
		Model:       model,
		Messages:    make([]kimiMessage, len(messages)),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	for i, m := range messages {
		req.Messages[i] = kimiMessage{Role: string(m.Role), Content: m.Content}
	}

	var kimiResp kimiResponse
	err := provider.PostJSON(ctx, p.client, p.Name(),
		fmt.Sprintf("%s/v1/chat/completions", p.cfg.BaseURL),
		map[string]string{"Authorization": "Bearer " + p.cfg.APIKey},
		req, &kimiResp)
	if err != nil {
		return nil, err
	}

	if len(kimiResp.Choices) == 0 {
		return nil, provider.NewError(p.Name(), http.StatusOK, errors.New("kimi api returned no choices"))
	}

	return &provider.Response{
		Content:  kimiResp.Choices[0].Message.Content,
		Model:    kimiResp.Model,
		Provider: p.Name(),
		Usage: &provider.Usage{
			PromptTokens:     kimiResp.Usage.PromptTokens,
			CompletionTokens: kimiResp.Usage.CompletionTokens,
			TotalTokens:      kimiResp.Usage.TotalTokens,
		},
		Metadata: map[string]any{"response_id": kimiResp.ID},
	}, nil
}

func (p *KimiProvider) Name() string {
	return "kimi"
}

func (p *KimiProvider) Model() string {
	return p.cfg.Model
}

func (p *KimiProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
