package identity

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Resolver maps validated profiles to internal users, provisioning a user
// on first login. Concurrent first logins for the same subject are
// collapsed into a single find-or-create, and the store's uniqueness
// guarantee covers races this process cannot see (other instances).
type Resolver struct {
	store       Store
	group       singleflight.Group
	onProvision func(*User)
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithProvisionHook registers a callback invoked whenever Resolve creates
// a user. Used for provisioning metrics.
func WithProvisionHook(fn func(*User)) ResolverOption {
	return func(r *Resolver) {
		r.onProvision = fn
	}
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the user for the profile's subject, creating one if this
// is the subject's first login. The returned user is always findable by a
// subsequent FindBySubject before Resolve returns.
func (r *Resolver) Resolve(ctx context.Context, profile *Profile) (*User, error) {
	if profile == nil || profile.SubjectID == "" {
		return nil, &ResolutionError{Err: errors.New("profile has no subject identifier")}
	}

	v, err, _ := r.group.Do(profile.SubjectID, func() (interface{}, error) {
		// The flight's result is shared with every collapsed caller, so
		// it must not die with whichever caller happened to start it.
		return r.findOrCreate(context.WithoutCancel(ctx), profile)
	})
	if err != nil {
		return nil, err
	}
	return v.(*User), nil
}

func (r *Resolver) findOrCreate(ctx context.Context, profile *Profile) (*User, error) {
	user, err := r.store.FindBySubject(ctx, profile.SubjectID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, &ResolutionError{SubjectID: profile.SubjectID, Err: fmt.Errorf("lookup failed: %w", err)}
	}

	user, err = r.store.Create(ctx, profile)
	if err == nil {
		if r.onProvision != nil {
			r.onProvision(user)
		}
		return user, nil
	}
	if !errors.Is(err, ErrDuplicateSubject) {
		return nil, &ResolutionError{SubjectID: profile.SubjectID, Err: fmt.Errorf("create failed: %w", err)}
	}

	// Lost the create race to another instance; the row must exist now.
	user, err = r.store.FindBySubject(ctx, profile.SubjectID)
	if err != nil {
		return nil, &ResolutionError{SubjectID: profile.SubjectID, Err: fmt.Errorf("lookup after lost create race failed: %w", err)}
	}
	return user, nil
}
