package engine

import (
	"sync"

	"github.com/ashita-ai/monban/internal/model"
)

// SessionKey identifies one interview slot: a requester may hold at most one
// active interview per channel.
type SessionKey struct {
	Requester string
	Channel   string
}

// session is the engine's in-memory wrapper around a live interview: the
// domain state plus the armed deadline handle. pending is true between
// Begin's reservation and the moment questions arrive from the examiner.
type session struct {
	iv      *model.Interview
	timer   Handle
	pending bool
}

// sessionStore owns the set of live sessions. It is a plain keyed map with
// its own lock; cross-store transition ordering is the engine's job.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[SessionKey]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[SessionKey]*session)}
}

func (s *sessionStore) Get(key SessionKey) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	return sess, ok
}

func (s *sessionStore) Put(key SessionKey, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = sess
}

// Remove deletes the session for key. Reports whether a session was removed;
// both terminal paths use this as their final, idempotent step.
func (s *sessionStore) Remove(key SessionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; !ok {
		return false
	}
	delete(s.sessions, key)
	return true
}

func (s *sessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Keys returns the keys of all live sessions, in no particular order.
func (s *sessionStore) Keys() []SessionKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]SessionKey, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	return keys
}
