package saml

import "fmt"

// Reason classifies why an assertion was rejected. Reasons are logged
// server-side; they are never surfaced to the browser.
type Reason string

const (
	ReasonMalformed      Reason = "malformed_response"
	ReasonRejected       Reason = "assertion_rejected"
	ReasonExpired        Reason = "assertion_expired"
	ReasonAudience       Reason = "audience_mismatch"
	ReasonMissingSubject Reason = "missing_subject"
)

// ValidationError reports a rejected SAML response. The flow controller
// converts it into a redirect to the failure page without exposing Reason
// or the wrapped error.
type ValidationError struct {
	Reason Reason
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("saml: validation failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("saml: validation failed (%s)", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(reason Reason, err error) *ValidationError {
	return &ValidationError{Reason: reason, Err: err}
}
