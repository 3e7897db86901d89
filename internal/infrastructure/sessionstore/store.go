package sessionstore

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/pkg/errcodes"
)

const (
	defaultActiveTTL    = 24 * time.Hour
	defaultAbandonedTTL = time.Hour
	cleanupInterval     = 10 * time.Minute
)

// Store keeps session snapshots in process memory. ACTIVE and FINALIZED
// sessions live for the active TTL; ABANDONED ones are shortened to the
// abandoned TTL and evicted by the cache janitor.
type Store struct {
	sessions     *cache.Cache
	abandonedTTL time.Duration
}

func New(activeTTL, abandonedTTL time.Duration) *Store {
	if activeTTL <= 0 {
		activeTTL = defaultActiveTTL
	}

	if abandonedTTL <= 0 {
		abandonedTTL = defaultAbandonedTTL
	}

	return &Store{
		sessions:     cache.New(activeTTL, cleanupInterval),
		abandonedTTL: abandonedTTL,
	}
}

func (s *Store) Save(_ context.Context, snapshot *entity.SessionSnapshot) error {
	s.sessions.Set(snapshot.SessionID, snapshot, cache.DefaultExpiration)
	return nil
}

func (s *Store) Get(_ context.Context, sessionID string) (*entity.SessionSnapshot, error) {
	v, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.NewError(errcodes.SessionNotFound, "session not found or expired")
	}

	return v.(*entity.SessionSnapshot), nil
}

func (s *Store) SaveAbandoned(_ context.Context, snapshot *entity.SessionSnapshot) error {
	s.sessions.Set(snapshot.SessionID, snapshot, s.abandonedTTL)
	return nil
}
