// Package session keeps per-browser state between page renders.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Brownie44l1/snaplabel/internal/metrics"
	"github.com/Brownie44l1/snaplabel/internal/model"
)

// State is one browser session's view of its last submission.
type State struct {
	ID         string
	LastImage  []byte
	LastLabel  string
	LastResult *model.PredictionResult

	lastSeen time.Time
}

// HasImage reports whether an image has been classified in this session.
func (s State) HasImage() bool {
	return len(s.LastImage) > 0
}

// Store holds sessions in memory. Sessions idle for longer than the
// configured timeout are dropped.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*State
	idle     time.Duration
	now      func() time.Time
}

func NewStore(idle time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*State),
		idle:     idle,
		now:      time.Now,
	}
}

// Acquire returns a snapshot of the session with the given id, creating a
// new session when the id is unknown or expired. created is true in that case.
func (s *Store) Acquire(id string) (state State, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	st, ok := s.sessions[id]
	if !ok {
		st = &State{ID: uuid.NewString()}
		s.sessions[st.ID] = st
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
		created = true
	}
	st.lastSeen = now
	return *st, created
}

// Commit records a successfully classified image. Unknown ids are ignored.
func (s *Store) Commit(id string, image []byte, result *model.PredictionResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok {
		return false
	}
	st.LastImage = image
	st.LastResult = result
	if result != nil {
		st.LastLabel = result.Label
	}
	st.lastSeen = s.now()
	return true
}

// Len is the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) sweep(now time.Time) {
	if s.idle <= 0 {
		return
	}
	removed := false
	for id, st := range s.sessions {
		if now.Sub(st.lastSeen) > s.idle {
			delete(s.sessions, id)
			removed = true
		}
	}
	if removed {
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
	}
}
