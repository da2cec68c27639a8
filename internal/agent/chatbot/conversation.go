package chatbot

import (
	"sort"
	"sync"

	"github.com/vnmchuo/puqee/internal/agent"
)

const DefaultMaxHistory = 100

// ConversationStore keeps the most recent messages of every session,
// dropping the oldest once a session exceeds maxHistory.
type ConversationStore struct {
	mu         sync.RWMutex
	maxHistory int
	sessions   map[string][]agent.ChatMessage
}

func NewConversationStore(maxHistory int) *ConversationStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &ConversationStore{
		maxHistory: maxHistory,
		sessions:   make(map[string][]agent.ChatMessage),
	}
}

func (s *ConversationStore) Add(sessionID string, msg agent.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.sessions[sessionID], msg)
	if len(msgs) > s.maxHistory {
		msgs = append([]agent.ChatMessage(nil), msgs[len(msgs)-s.maxHistory:]...)
	}
	s.sessions[sessionID] = msgs
}

// History returns a copy of the last limit messages, or all of them when
// limit is zero.
func (s *ConversationStore) History(sessionID string, limit int) []agent.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.sessions[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]agent.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

func (s *ConversationStore) Clear(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	return true
}

func (s *ConversationStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.sessions)
}

func (s *ConversationStore) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
