package identity

import "time"

// Profile holds the normalized claims extracted from a validated SAML
// assertion. It is produced by the validator and never modified afterwards.
type Profile struct {
	// SubjectID is the stable external identifier asserted by the IdP
	// (the NameID, or a mapped attribute when configured).
	SubjectID string `json:"subject_id"`

	// Attributes holds the remaining asserted attribute statements.
	// Values are multi-valued as SAML allows repeated attribute values.
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// Clone returns a deep copy of the profile so callers can hold on to it
// without sharing the attribute map.
func (p *Profile) Clone() *Profile {
	cp := &Profile{SubjectID: p.SubjectID}
	if p.Attributes != nil {
		cp.Attributes = make(map[string][]string, len(p.Attributes))
		for k, v := range p.Attributes {
			vals := make([]string, len(v))
			copy(vals, v)
			cp.Attributes[k] = vals
		}
	}
	return cp
}

// User is the internal representation of a known identity. A user is
// created exactly once per distinct SubjectID and never mutated after
// creation.
type User struct {
	ID         int64               `json:"id"`
	SubjectID  string              `json:"subject_id"`
	Attributes map[string][]string `json:"attributes,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}
