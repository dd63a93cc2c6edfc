package identity

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Store.FindBySubject when no user exists for
// the given subject identifier.
var ErrNotFound = errors.New("identity: user not found")

// ErrDuplicateSubject is returned by Store.Create when a user already
// exists for the subject identifier. The resolver treats it as a lost
// create race and falls back to a lookup.
var ErrDuplicateSubject = errors.New("identity: subject already exists")

// ResolutionError wraps store failures encountered while resolving a
// profile to a user.
type ResolutionError struct {
	SubjectID string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("identity: failed to resolve subject %q: %v", e.SubjectID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
