package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxTurns bounds the history kept per session.
	DefaultMaxTurns = 20

	maxSessionIDLength = 256
)

type entry struct {
	turns     []Turn
	system    string
	createdAt time.Time
	updatedAt time.Time
}

// Store holds bounded history for many sessions. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	maxTurns int
	now      func() time.Time
}

// NewStore creates a store keeping at most maxTurns turns per session.
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		sessions: make(map[string]*entry),
		maxTurns: maxTurns,
		now:      time.Now,
	}
}

// MaxTurns returns the per-session bound.
func (s *Store) MaxTurns() int {
	return s.maxTurns
}

// ValidateID rejects ids that cannot be used as session keys.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if len(id) > maxSessionIDLength {
		return fmt.Errorf("session id exceeds %d characters", maxSessionIDLength)
	}
	if strings.ContainsAny(id, "\x00\n\r") {
		return fmt.Errorf("session id contains control characters")
	}
	return nil
}

// Append adds turns to a session, creating it on first use, and trims the history to
// the most recent MaxTurns. It returns the resulting length.
func (s *Store) Append(id string, turns ...Turn) int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		e = &entry{createdAt: now}
		s.sessions[id] = e
	}

	for _, t := range turns {
		if t.Timestamp.IsZero() {
			t.Timestamp = now
		}
		e.turns = append(e.turns, t)
	}
	if over := len(e.turns) - s.maxTurns; over > 0 {
		trimmed := make([]Turn, s.maxTurns)
		copy(trimmed, e.turns[over:])
		e.turns = trimmed
	}
	e.updatedAt = now

	return len(e.turns)
}

// History returns a copy of the session's turns, oldest first.
func (s *Store) History(id string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

// LastTurn returns the most recent turn of a session.
func (s *Store) LastTurn(id string) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok || len(e.turns) == 0 {
		return Turn{}, false
	}
	return e.turns[len(e.turns)-1], true
}

// SetSystem records the system prompt a session's requests are sent with. It is a no-op
// for an unknown session.
func (s *Store) SetSystem(id, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok {
		e.system = prompt
	}
}

// System returns the prompt recorded by SetSystem.
func (s *Store) System(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return "", false
	}
	return e.system, true
}

// Clear removes a session. It reports whether the session existed.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Sessions returns the ids of every session with history, sorted.
func (s *Store) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Info describes a session.
func (s *Store) Info(id string) (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return Info{}, false
	}
	return Info{ID: id, Turns: len(e.turns), CreatedAt: e.createdAt, UpdatedAt: e.updatedAt}, true
}

// PruneIdle removes sessions not updated within maxIdle and returns their ids.
func (s *Store) PruneIdle(maxIdle time.Duration) []string {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned []string
	for id, e := range s.sessions {
		if e.updatedAt.Before(cutoff) {
			delete(s.sessions, id)
			pruned = append(pruned, id)
		}
	}
	sort.Strings(pruned)
	return pruned
}
