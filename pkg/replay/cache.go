// Package replay tracks consumed SAML assertion identifiers so a captured
// response cannot be posted to the callback twice. Entries only need to
// live as long as the assertion validity window; after that the validator
// rejects the assertion on timing grounds anyway.
package replay

import "context"

// Cache records consumed assertion IDs.
type Cache interface {
	// Consume marks the assertion ID as used. It returns true if the ID
	// was fresh and false if it had already been consumed.
	Consume(ctx context.Context, assertionID string) (bool, error)
}
