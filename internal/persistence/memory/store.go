// Package memory provides in-process stores for local development and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"example.com/raidsync/internal/domain"
)

// UserStore keeps sync states in a map guarded by a RWMutex.
type UserStore struct {
	mu     sync.RWMutex
	states map[string]domain.UserSyncState
	now    func() time.Time
}

// NewUserStore constructs an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		states: make(map[string]domain.UserSyncState),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Exists implements domain.UserStore.
func (s *UserStore) Exists(ctx context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.states[username]
	return ok, nil
}

// Get implements domain.UserStore.
func (s *UserStore) Get(ctx context.Context, username string) (*domain.UserSyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	out := cloneState(state)
	return &out, nil
}

// Save implements domain.UserStore using the same version rules as Postgres.
func (s *UserStore) Save(ctx context.Context, state domain.UserSyncState) (*domain.UserSyncState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(state.Username) == "" {
		return nil, domain.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, ok := s.states[state.Username]
	switch {
	case state.Version == 0 && ok:
		return nil, domain.ErrConflict
	case state.Version == 0:
		state.CreatedAt = now
	case !ok:
		return nil, domain.ErrUserNotFound
	case existing.Version != state.Version:
		return nil, domain.ErrConflict
	default:
		state.CreatedAt = existing.CreatedAt
	}
	state.Version++
	state.UpdatedAt = now

	stored := cloneState(state)
	s.states[state.Username] = stored
	out := cloneState(stored)
	return &out, nil
}

func cloneState(state domain.UserSyncState) domain.UserSyncState {
	state.RaidHistory = append([]domain.RaidDetail(nil), state.RaidHistory...)
	return state
}

// AuthorizationStore keeps authorization records in memory.
type AuthorizationStore struct {
	mu      sync.RWMutex
	records map[string]domain.AuthorizationRecord
}

// NewAuthorizationStore constructs an empty AuthorizationStore.
func NewAuthorizationStore() *AuthorizationStore {
	return &AuthorizationStore{records: make(map[string]domain.AuthorizationRecord)}
}

// Exists implements domain.AuthorizationStore.
func (s *AuthorizationStore) Exists(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[userID]
	return ok, nil
}

// Get implements domain.AuthorizationStore.
func (s *AuthorizationStore) Get(ctx context.Context, userID string) (*domain.AuthorizationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[userID]
	if !ok {
		return nil, domain.ErrNotAuthorized
	}
	return &record, nil
}

// Save implements domain.AuthorizationStore.
func (s *AuthorizationStore) Save(ctx context.Context, record domain.AuthorizationRecord) error {
	if strings.TrimSpace(record.UserID) == "" {
		return domain.ErrInvalidRequest
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.UserID] = record
	return nil
}
