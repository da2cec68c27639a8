package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownType   = errors.New("agent type not registered")
	ErrAgentExists   = errors.New("agent id already exists")
	ErrAgentNotFound = errors.New("agent not found")
)

// Recorder receives one call per processed message.
type Recorder interface {
	RecordAgentProcess(agentID string, success bool)
}

type Status struct {
	RegisteredAgentTypes int      `json:"registered_agent_types"`
	ActiveAgents         int      `json:"active_agents"`
	RegisteredTypes      []string `json:"registered_types"`
	ActiveAgentIDs       []string `json:"active_agent_ids"`
}

// Manager registers agent types and owns the live agent instances.
type Manager struct {
	mu       sync.RWMutex
	types    map[string]Factory
	agents   map[string]Agent
	deps     Deps
	recorder Recorder
	logger   *zap.Logger
}

type ManagerOption func(*Manager)

func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) { m.recorder = r }
}

func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		types:  make(map[string]Factory),
		agents: make(map[string]Agent),
		logger: logger.With(zap.String("component", "agent_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterType makes kind available to CreateAgent, replacing any previous
// factory of the same name.
func (m *Manager) RegisterType(kind string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[kind] = f
	m.logger.Info("agent type registered", zap.String("type", kind))
}

// InjectDependencies sets the deps for future agents and pushes them to the
// live ones.
func (m *Manager) InjectDependencies(deps Deps) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps = deps
	for _, a := range m.agents {
		a.SetDeps(deps)
	}
}

func (m *Manager) CreateAgent(ctx context.Context, kind, id, name, description string) (Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.types[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, kind)
	}
	if _, exists := m.agents[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAgentExists, id)
	}
	if name == "" {
		name = titleCase(kind) + "_" + id
	}

	a := f(id, name, description)
	a.SetDeps(m.deps)
	if err := a.Initialize(ctx); err != nil {
		m.logger.Error("agent initialization failed", zap.String("agent_id", id), zap.Error(err))
		return nil, fmt.Errorf("initialize agent %s: %w", id, err)
	}
	m.agents[id] = a

	m.logger.Info("agent created", zap.String("agent_id", id), zap.String("type", kind))
	return a, nil
}

func (m *Manager) Get(id string) (Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	return a, ok
}

// Remove shuts the agent down and forgets it. It reports false when the id
// is unknown or shutdown fails; a failed shutdown leaves the agent registered.
func (m *Manager) Remove(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return false
	}
	if err := a.Shutdown(ctx); err != nil {
		m.logger.Error("agent shutdown failed", zap.String("agent_id", id), zap.Error(err))
		return false
	}
	delete(m.agents, id)
	m.logger.Info("agent removed", zap.String("agent_id", id))
	return true
}

func (m *Manager) Process(ctx context.Context, id string, in Input) (*Output, error) {
	a, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}

	out, err := a.Process(ctx, in)
	if m.recorder != nil {
		m.recorder.RecordAgentProcess(id, err == nil)
	}
	if err != nil {
		m.logger.Warn("agent failed to process request", zap.String("agent_id", id), zap.Error(err))
		return nil, err
	}
	out.AgentID = id
	return out, nil
}

func (m *Manager) RegisteredTypes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.types)
}

func (m *Manager) ActiveAgents() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.agents))
	for _, id := range sortedKeys(m.agents) {
		infos = append(infos, m.agents[id].Info())
	}
	return infos
}

func (m *Manager) AgentInfo(id string) (Info, bool) {
	a, ok := m.Get(id)
	if !ok {
		return Info{}, false
	}
	return a.Info(), true
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		RegisteredAgentTypes: len(m.types),
		ActiveAgents:         len(m.agents),
		RegisteredTypes:      sortedKeys(m.types),
		ActiveAgentIDs:       sortedKeys(m.agents),
	}
}

// ShutdownAll stops every live agent in parallel. Individual failures are
// logged; the manager is always left empty.
func (m *Manager) ShutdownAll(ctx context.Context) {
	m.mu.Lock()
	agents := m.agents
	m.agents = make(map[string]Agent)
	m.mu.Unlock()

	m.logger.Info("shutting down all agents", zap.Int("count", len(agents)))

	var g errgroup.Group
	for id, a := range agents {
		g.Go(func() error {
			if err := a.Shutdown(ctx); err != nil {
				m.logger.Error("agent shutdown failed", zap.String("agent_id", id), zap.Error(err))
				return nil
			}
			m.logger.Info("agent shut down", zap.String("agent_id", id))
			return nil
		})
	}
	_ = g.Wait()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
