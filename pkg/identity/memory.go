package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation. It is used by the demo
// server when no database is configured and by tests that need an isolated
// store per run.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	users  map[string]*User // keyed by SubjectID
}

// NewMemoryStore creates an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		users:  make(map[string]*User),
	}
}

// FindBySubject returns the user for the subject identifier, or ErrNotFound.
func (s *MemoryStore) FindBySubject(ctx context.Context, subjectID string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

// Create provisions a new user from the profile. The uniqueness check and
// the insert happen under a single lock, so two concurrent creates for the
// same subject cannot both succeed.
func (s *MemoryStore) Create(ctx context.Context, profile *Profile) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[profile.SubjectID]; exists {
		return nil, ErrDuplicateSubject
	}

	cp := profile.Clone()
	user := &User{
		ID:         s.nextID,
		SubjectID:  cp.SubjectID,
		Attributes: cp.Attributes,
		CreatedAt:  time.Now().UTC(),
	}
	s.nextID++

	s.users[user.SubjectID] = user
	return user, nil
}

// Count returns the number of provisioned users.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
