package memory

import (
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("not found")

// States holds pending OAuth state values until the callback consumes
// them. Each value is accepted once and only within ttl of being issued.
type States struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	issued map[string]time.Time
}

func NewStates(ttl time.Duration) *States {
	return &States{ttl: ttl, now: time.Now, issued: make(map[string]time.Time)}
}

func (s *States) Save(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, at := range s.issued {
		if now.Sub(at) > s.ttl {
			delete(s.issued, k)
		}
	}
	s.issued[state] = now
}

func (s *States) Consume(state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.issued[state]
	if !ok {
		return ErrNotFound
	}
	delete(s.issued, state)
	if s.now().Sub(at) > s.ttl {
		return ErrNotFound
	}
	return nil
}
