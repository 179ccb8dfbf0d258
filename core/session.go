package orchestration

import (
	"context"
	"sync"
)

// Session binds one participant to one character and enforces the
// single-turn-in-flight rule for that pair. Sessions are cheap handles;
// state lives in the stores.
type Session struct {
	participantID string
	characterID   string

	mu       sync.Mutex
	inFlight bool
	cancel   context.CancelFunc
}

func (s *Session) ParticipantID() string { return s.participantID }
func (s *Session) CharacterID() string   { return s.characterID }

// beginTurn claims the session for a new turn. It fails with ErrSessionBusy
// when a turn is already running; concurrent requests are rejected, never
// queued.
func (s *Session) beginTurn(cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		return ErrSessionBusy
	}
	s.inFlight = true
	s.cancel = cancel
	return nil
}

// endTurn releases the claim. The session accepts the next turn immediately
// after this returns, regardless of how the previous one ended.
func (s *Session) endTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = false
	s.cancel = nil
}

// CancelTurn aborts the in-flight turn, if any. Cancelling an idle session
// is a no-op. The turn's goroutines observe the cancellation through their
// context; already-delivered audio is not retracted.
func (s *Session) CancelTurn() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

type sessionKey struct {
	participantID string
	characterID   string
}

// sessionRegistry hands out one Session per (participant, character) pair.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: map[sessionKey]*Session{}}
}

func (r *sessionRegistry) get(participantID, characterID string) *Session {
	key := sessionKey{participantID: participantID, characterID: characterID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[key]; ok {
		return session
	}
	session := &Session{participantID: participantID, characterID: characterID}
	r.sessions[key] = session
	return session
}

func (r *sessionRegistry) remove(participantID, characterID string) *Session {
	key := sessionKey{participantID: participantID, characterID: characterID}

	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.sessions[key]
	delete(r.sessions, key)
	return session
}
