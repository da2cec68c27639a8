// Package mock provides a canned-reply provider for development and tests.
// It never leaves the process.
package mock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vnmchuo/puqee/internal/provider"
)

const modelName = "mock-gpt-3.5-turbo"

type MockProvider struct {
	latency time.Duration
}

type rule struct {
	keywords []string
	reply    string
}

var rules = []rule{
	{
		keywords: []string{"你好", "hello", "hi", "嗨"},
		reply:    "Hello! I'm the Puqee assistant. I can answer questions and keep a conversation going. What can I do for you?",
	},
	{
		keywords: []string{"是谁", "你是", "who are you", "introduce"},
		reply:    "I'm the Puqee chatbot. I can hold a natural conversation, answer questions and offer suggestions.",
	},
	{
		keywords: []string{"能做", "功能", "能力", "what can you do", "help"},
		reply:    "Here is what I can do:\n• chat naturally\n• remember conversation context\n• answer questions\n• give suggestions\n• help with technical topics",
	},
	{
		keywords: []string{"python", "golang", "编程", "代码", "code", "programming"},
		reply:    "Happy to help with technical questions! Which part would you like to dig into?",
	},
	{
		keywords: []string{"谢谢", "感谢", "thank"},
		reply:    "You're welcome! Let me know if there's anything else.",
	},
	{
		keywords: []string{"再见", "拜拜", "bye", "goodbye"},
		reply:    "Goodbye! Looking forward to our next chat.",
	},
}

func New(latency time.Duration) *MockProvider {
	return &MockProvider{latency: latency}
}

func (p *MockProvider) Generate(ctx context.Context, messages []provider.Message, opts provider.Options) (*provider.Response, error) {
	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, provider.NewError(p.Name(), 0, ctx.Err())
		case <-timer.C:
		}
	}

	var last string
	found := false
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == provider.RoleUser {
			last = messages[i].Content
			found = true
			break
		}
	}
	if !found {
		return &provider.Response{
			Content:  "I didn't receive a message from you, please send it again.",
			Model:    modelName,
			Provider: p.Name(),
		}, nil
	}

	return &provider.Response{
		Content:  Reply(last),
		Model:    modelName,
		Provider: p.Name(),
		Usage:    &provider.Usage{PromptTokens: 50, CompletionTokens: 100, TotalTokens: 150},
		Metadata: map[string]any{"mock": true, "response_time": p.latency.Seconds()},
	}, nil
}

// Reply returns the canned answer for a user message.
func Reply(message string) string {
	lower := strings.ToLower(message)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.reply
			}
		}
	}
	return fmt.Sprintf("I understand you mentioned: %s. That's an interesting topic! What would you like me to answer specifically?", message)
}

func (p *MockProvider) Name() string {
	return "mock"
}

func (p *MockProvider) Model() string {
	return modelName
}
