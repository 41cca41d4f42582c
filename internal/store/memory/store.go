package memory

import (
	"context"
	"sync"
	"time"

	"meliseller/internal/domain"
)

// Store keeps the token pair in process memory only. It is the fallback
// when no durable backend is configured or reachable.
type Store struct {
	mu sync.RWMutex

	creds     domain.Credentials
	updatedAt time.Time
	saves     int
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Load(_ context.Context) (domain.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, nil
}

func (s *Store) Save(_ context.Context, creds domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.updatedAt = time.Now().UTC()
	s.saves++
	return nil
}

// UpdatedAt returns when the pair was last saved.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Saves returns how many times Save has been called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
