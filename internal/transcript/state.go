package transcript

import (
	"sync"
	"time"
)

// CopiedTTL is how long a message stays marked as copied.
const CopiedTTL = 2 * time.Second

// ConversationState is owned by one client. It is safe for concurrent use.
type ConversationState struct {
	mu          sync.Mutex
	sessionID   string
	loaded      []Message
	live        []Message
	copied      map[string]time.Time
	showWelcome bool
}

func NewConversationState() *ConversationState {
	return &ConversationState{copied: make(map[string]time.Time), showWelcome: true}
}

func (s *ConversationState) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *ConversationState) ShowWelcome() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showWelcome
}

// Reset starts a new chat.
func (s *ConversationState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
	s.loaded = nil
	s.live = nil
	s.copied = make(map[string]time.Time)
	s.showWelcome = true
}

// Adopt switches to sessionID. Switching to a different session drops the
// current transcript; adopting the same id is a no-op.
func (s *ConversationState) Adopt(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID == sessionID {
		return
	}
	if s.sessionID != "" {
		s.loaded = nil
		s.live = nil
		s.copied = make(map[string]time.Time)
	}
	s.sessionID = sessionID
}

// SetLoaded replaces the server history.
func (s *ConversationState) SetLoaded(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = append([]Message(nil), msgs...)
	if len(msgs) > 0 {
		s.showWelcome = false
	}
}

func (s *ConversationState) AppendLive(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = append(s.live, msgs...)
	if len(msgs) > 0 {
		s.showWelcome = false
	}
}

// Transcript is the merged view. Copied marks for messages no longer in it
// are dropped.
func (s *ConversationState) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.live
	if s.sessionID == "" {
		// new chat: nothing loaded to reconcile against
		live = append([]Message(nil), s.live...)
		s.prune(live)
		return live
	}
	out := Merge(s.loaded, append([]Message(nil), live...))
	s.prune(out)
	return out
}

func (s *ConversationState) prune(present []Message) {
	if len(s.copied) == 0 {
		return
	}
	ids := make(map[string]struct{}, len(present))
	for _, m := range present {
		ids[m.ID] = struct{}{}
	}
	for id := range s.copied {
		if _, ok := ids[id]; !ok {
			delete(s.copied, id)
		}
	}
}

func (s *ConversationState) MarkCopied(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.copied[id] = now.Add(CopiedTTL)
}

func (s *ConversationState) IsCopied(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.copied[id]
	if !ok {
		return false
	}
	if !now.Before(until) {
		delete(s.copied, id)
		return false
	}
	return true
}
