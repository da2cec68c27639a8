package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vnmchuo/puqee/internal/provider"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
)

type GeminiProvider struct {
	cfg    provider.Config
	client *http.Client
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate   `json:"candidates"`
	UsageMetadata geminiUsageMetadata `json:"usageMetadata"`
	ModelVersion  string              `json:"modelVersion"`
	ResponseID    string              `json:"responseId"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func New(cfg provider.Config) *GeminiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GeminiProvider{
		cfg:    cfg,
		client: provider.NewHTTPClient(cfg.Timeout),
	}
}

func (p *GeminiProvider) Generate(ctx context.Context, messages []provider.Message, opts provider.Options) (*provider.Response, error) {
	if p.cfg.APIKey == "" {
		return nil, provider.NewError(p.Name(), 0, errors.New("api key not configured"))
	}

	req, model := p.mapRequest(messages, opts)

	var geminiResp geminiResponse
	err := provider.PostJSON(ctx, p.client, p.Name(),
		fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.cfg.BaseURL, model),
		map[string]string{"x-goog-api-key": p.cfg.APIKey},
		req, &geminiResp)
	if err != nil {
		return nil, err
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return nil, provider.NewError(p.Name(), http.StatusOK, errors.New("gemini api returned no candidates"))
	}

	var text strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	if geminiResp.ModelVersion != "" {
		model = geminiResp.ModelVersion
	}

	total := geminiResp.UsageMetadata.TotalTokenCount
	if total == 0 {
		total = geminiResp.UsageMetadata.PromptTokenCount + geminiResp.UsageMetadata.CandidatesTokenCount
	}

	return &provider.Response{
		Content:  text.String(),
		Model:    model,
		Provider: p.Name(),
		Usage: &provider.Usage{
			PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      total,
		},
		Metadata: map[string]any{"response_id": geminiResp.ResponseID},
	}, nil
}

func (p *GeminiProvider) mapRequest(msgs []provider.Message, opts provider.Options) (geminiRequest, string) {
	model, maxTokens, temperature := provider.ResolveOptions(p.cfg, opts)

	var system []geminiPart
	contents := make([]geminiContent, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == provider.RoleSystem {
			system = append(system, geminiPart{Text: m.Content})
			continue
		}
		role := "user"
		if m.Role == provider.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	req := geminiRequest{
		Contents: contents,
		GenerationConfig: generationConfig{
			MaxOutputTokens: maxTokens,
			Temperature:     temperature,
		},
	}
	if len(system) > 0 {
		req.SystemInstruction = &geminiContent{Parts: system}
	}
	return req, model
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Model() string {
	return p.cfg.Model
}

func (p *GeminiProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
