// Package agent defines the agent contract and the manager that owns agent
// lifecycles. Agents reach LLMs only through the gateway's Generator surface.
package agent

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/vnmchuo/puqee/internal/provider"
)

var ErrEmptyMessage = errors.New("message must not be empty")

// Generator is the part of the LLM gateway an agent may call.
type Generator interface {
	GenerateSimple(ctx context.Context, systemPrompt, userMessage, providerName string, opts provider.Options) (string, error)
}

// Deps are the components injected into every agent.
type Deps struct {
	LLM Generator
}

type Input struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	Context   map[string]any `json:"context,omitempty"`
}

type Output struct {
	Status             string    `json:"status"`
	Response           string    `json:"response"`
	SessionID          string    `json:"session_id"`
	AgentID            string    `json:"agent_id"`
	Timestamp          time.Time `json:"timestamp"`
	ConversationLength int       `json:"conversation_length"`
}

type Info struct {
	AgentID     string    `json:"agent_id"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Initialized bool      `json:"is_initialized"`
	ContextKeys []string  `json:"context_keys"`
	CreatedAt   time.Time `json:"created_at"`
}

type Agent interface {
	ID() string
	Name() string
	Description() string
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Process(ctx context.Context, in Input) (*Output, error)
	Info() Info
	SetDeps(deps Deps)
}

// Factory builds an uninitialized agent of one registered type.
type Factory func(id, name, description string) Agent

// ChatMessage is one stored conversation turn.
type ChatMessage struct {
	Role      provider.Role `json:"role"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
}

type ConversationInfo struct {
	SessionID         string     `json:"session_id"`
	MessageCount      int        `json:"message_count"`
	LastActivity      *time.Time `json:"last_activity"`
	UserMessages      int        `json:"user_messages"`
	AssistantMessages int        `json:"assistant_messages"`
}

// Conversational is implemented by agents that keep per-session history.
type Conversational interface {
	ConversationInfo(sessionID string) ConversationInfo
	ExportConversation(sessionID string) []ChatMessage
	ClearConversation(sessionID string) bool
}

// Base carries the identity, context and dependencies shared by all agents.
// Concrete agents embed *Base and implement Initialize, Shutdown and Process.
type Base struct {
	mu          sync.RWMutex
	kind        string
	id          string
	name        string
	description string
	createdAt   time.Time
	initialized bool
	context     map[string]any
	deps        Deps
}

func NewBase(kind, id, name, description string) *Base {
	return &Base{
		kind:        kind,
		id:          id,
		name:        name,
		description: description,
		createdAt:   time.Now(),
		context:     make(map[string]any),
	}
}

func (b *Base) ID() string          { return b.id }
func (b *Base) Name() string        { return b.name }
func (b *Base) Description() string { return b.description }

func (b *Base) SetDeps(deps Deps) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deps = deps
}

func (b *Base) Deps() Deps {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.deps
}

func (b *Base) SetInitialized(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = v
}

func (b *Base) Initialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

func (b *Base) SetContext(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.context[key] = value
}

func (b *Base) GetContext(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.context[key]
	return v, ok
}

func (b *Base) ClearContext() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.context)
}

func (b *Base) Info() Info {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.context))
	for k := range b.context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Info{
		AgentID:     b.id,
		Type:        b.kind,
		Name:        b.name,
		Description: b.description,
		Initialized: b.initialized,
		ContextKeys: keys,
		CreatedAt:   b.createdAt,
	}
}
