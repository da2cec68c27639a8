package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vnmchuo/puqee/internal/provider"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-3-haiku-20240307"
	defaultMaxTokens = 2000
	apiVersion       = "2023-06-01"
)

type ClaudeProvider struct {
	cfg    provider.Config
	client *http.Client
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	ID      string          `json:"id"`
	Content []claudeContent `json:"content"`
	Model   string          `json:"model"`
	Usage   claudeUsage     `json:"usage"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func New(cfg provider.Config) *ClaudeProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ClaudeProvider{
		cfg:    cfg,
		client: provider.NewHTTPClient(cfg.Timeout),
	}
}

func (p *ClaudeProvider) Generate(ctx context.Context, messages []provider.Message, opts provider.Options) (*provider.Response, error) {
	if p.cfg.APIKey == "" {
		return nil, provider.NewError(p.Name(), 0, errors.New("api key not configured"))
	}

	var claudeResp claudeResponse
	err := provider.PostJSON(ctx, p.client, p.Name(),
		fmt.Sprintf("%s/v1/messages", p.cfg.BaseURL),
		map[string]string{
			"x-api-key":         p.cfg.APIKey,
			"anthropic-version": apiVersion,
		},
		p.mapRequest(messages, opts), &claudeResp)
	if err != nil {
		return nil, err
	}

	var content string
	for _, c := range claudeResp.Content {
		if c.Type == "text" {
			content = c.Text
			break
		}
	}

	model := claudeResp.Model
	if model == "" {
		model = p.cfg.Model
	}

	return &provider.Response{
		Content:  content,
		Model:    model,
		Provider: p.Name(),
		Usage: &provider.Usage{
			PromptTokens:     claudeResp.Usage.InputTokens,
			CompletionTokens: claudeResp.Usage.OutputTokens,
			TotalTokens:      claudeResp.Usage.InputTokens + claudeResp.Usage.OutputTokens,
		},
		Metadata: map[string]any{"response_id": claudeResp.ID},
	}, nil
}

// mapRequest lifts system turns into the top-level system field; the
// messages API only accepts user and assistant turns.
func (p *ClaudeProvider) mapRequest(msgs []provider.Message, opts provider.Options) claudeRequest {
	model, maxTokens, _ := provider.ResolveOptions(p.cfg, opts)

	var system []string
	var messages []claudeMessage

	for _, m := range msgs {
		if m.Role == provider.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		role := "user"
		if m.Role == provider.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, claudeMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	return claudeRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      strings.Join(system, "\n\n"),
		Messages:    messages,
		Temperature: opts.Temperature,
	}
}

func (p *ClaudeProvider) Name() string {
	return "claude"
}

func (p *ClaudeProvider) Model() string {
	return p.cfg.Model
}

func (p *ClaudeProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
