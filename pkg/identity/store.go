package identity

import "context"

// Store is the persistence contract the resolver depends on. Implementations
// must guarantee SubjectID uniqueness: a second Create for the same subject
// fails with ErrDuplicateSubject, and a user returned from Create is
// immediately visible to FindBySubject.
type Store interface {
	// FindBySubject returns the user for the given subject identifier,
	// or ErrNotFound if none exists.
	FindBySubject(ctx context.Context, subjectID string) (*User, error)

	// Create persists a new user from the profile and assigns a fresh
	// internal ID. Fails with ErrDuplicateSubject if the subject is
	// already provisioned.
	Create(ctx context.Context, profile *Profile) (*User, error)
}
