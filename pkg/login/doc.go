// Package login orchestrates the browser-facing authentication flow.
//
// # Overview
//
// The flow has three legs. GET /login/saml sends the browser to the
// identity provider with a signed authentication request. The IdP posts
// its SAML response back to the callback, where the bridge validates the
// signature, checks the assertion for replay, resolves the subject to an
// internal user, and mints a bounded-lifetime token. The browser is then
// redirected to the application's token-login endpoint carrying that
// token.
//
// # Failure Semantics
//
// Every callback failure, whatever the cause, redirects to the landing
// page. Causes are logged and counted server-side only; a forged or
// tampered response learns nothing from the redirect.
package login
