// Package chatbot implements a multi-session conversational agent. Replies
// come from the LLM gateway when one is injected and from built-in rules
// otherwise.
package chatbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vnmchuo/puqee/internal/agent"
	"github.com/vnmchuo/puqee/internal/provider"
	"github.com/vnmchuo/puqee/internal/redact"
)

const (
	TypeName         = "chatbot"
	DefaultSessionID = "default"

	// DefaultAgentID is the chatbot created at startup and served by /chat.
	DefaultAgentID = "default_chatbot"

	historyWindow = 10
	contextWindow = 6
)

const systemPrompt = `You are ChatBot, the assistant of the Puqee agent framework. You are:
1. friendly, professional and helpful
2. able to remember the conversation context
3. good at technical questions as well as everyday conversation
4. ready to offer suggestions that fit the user's needs
5. concise and clear in your replies`

type Agent struct {
	*agent.Base
	conversations *ConversationStore
	logger        *zap.Logger
}

// Factory returns an agent.Factory producing chatbots that keep up to
// maxHistory messages per session.
func Factory(maxHistory int, logger *zap.Logger) agent.Factory {
	return func(id, name, description string) agent.Agent {
		return New(id, name, description, maxHistory, logger)
	}
}

func New(id, name, description string, maxHistory int, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if description == "" {
		description = "Conversational assistant"
	}
	return &Agent{
		Base:          agent.NewBase(TypeName, id, name, description),
		conversations: NewConversationStore(maxHistory),
		logger:        logger.With(zap.String("agent_id", id)),
	}
}

func (a *Agent) Initialize(context.Context) error {
	a.SetInitialized(true)
	a.logger.Info("chatbot initialized", zap.String("name", a.Name()))
	return nil
}

func (a *Agent) Shutdown(context.Context) error {
	a.conversations.ClearAll()
	a.SetInitialized(false)
	a.logger.Info("chatbot shut down", zap.String("name", a.Name()))
	return nil
}

// Process records the user turn, produces a reply and records it. A failing
// or empty LLM reply falls back to rule-based answers, so only blank input
// is an error.
func (a *Agent) Process(ctx context.Context, in agent.Input) (*agent.Output, error) {
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, agent.ErrEmptyMessage
	}

	a.conversations.Add(sessionID, agent.ChatMessage{Role: provider.RoleUser, Content: in.Message, Timestamp: time.Now()})

	reply := a.reply(ctx, in.Message, sessionID)

	now := time.Now()
	a.conversations.Add(sessionID, agent.ChatMessage{Role: provider.RoleAssistant, Content: reply, Timestamp: now})

	return &agent.Output{
		Status:             "success",
		Response:           reply,
		SessionID:          sessionID,
		AgentID:            a.ID(),
		Timestamp:          now,
		ConversationLength: len(a.conversations.History(sessionID, 0)),
	}, nil
}

func (a *Agent) reply(ctx context.Context, message, sessionID string) string {
	history := a.conversations.History(sessionID, historyWindow)

	llm := a.Deps().LLM
	if llm == nil {
		return fallbackReply(a.Name(), message, history)
	}

	text, err := llm.GenerateSimple(ctx, systemPrompt, withContext(history, message), "", provider.Options{})
	if err != nil {
		a.logger.Warn("llm reply failed, using fallback", zap.String("error", redact.Error(err)))
		return fallbackReply(a.Name(), message, history)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		a.logger.Warn("llm returned an empty reply, using fallback")
		return fallbackReply(a.Name(), message, history)
	}
	return text
}

// withContext renders the last few turns ahead of the current message.
func withContext(history []agent.ChatMessage, current string) string {
	if len(history) == 0 {
		return current
	}
	if len(history) > contextWindow {
		history = history[len(history)-contextWindow:]
	}

	var b strings.Builder
	b.WriteString("Conversation context:\n")
	for _, m := range history {
		speaker := "Assistant"
		if m.Role == provider.RoleUser {
			speaker = "User"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}
	b.WriteString("\nCurrent user message: ")
	b.WriteString(current)
	return b.String()
}

func (a *Agent) ConversationInfo(sessionID string) agent.ConversationInfo {
	history := a.conversations.History(sessionID, 0)
	info := agent.ConversationInfo{SessionID: sessionID, MessageCount: len(history)}
	for _, m := range history {
		switch m.Role {
		case provider.RoleUser:
			info.UserMessages++
		case provider.RoleAssistant:
			info.AssistantMessages++
		}
	}
	if len(history) > 0 {
		last := history[len(history)-1].Timestamp
		info.LastActivity = &last
	}
	return info
}

func (a *Agent) ExportConversation(sessionID string) []agent.ChatMessage {
	return a.conversations.History(sessionID, 0)
}

func (a *Agent) ClearConversation(sessionID string) bool {
	return a.conversations.Clear(sessionID)
}

func (a *Agent) Sessions() []string {
	return a.conversations.Sessions()
}
