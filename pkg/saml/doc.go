// Package saml adapts the SAML 2.0 protocol for the login flow.
//
// # Overview
//
// The Validator wraps a gosaml2 service provider configured from the IdP
// trust settings. It has exactly two jobs in the exchange:
//
//   - BuildLoginRedirect: produce the IdP-bound authentication request URL
//   - Validate: verify a posted SAMLResponse (signature, issuer, audience,
//     timing) and extract the normalized identity profile
//
// Validation is side-effect free. Resolution and token issuance belong to
// the flow controller; this package never reaches into either.
package saml
