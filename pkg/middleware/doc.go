// Package middleware provides bearer token authentication for the
// bridge's protected endpoints.
//
// The login flow itself is unauthenticated; only introspection endpoints
// like /userinfo sit behind this middleware. Tokens are verified with the
// same issuer that minted them, so a token survives exactly as long as
// its registered expiry.
//
//	authMW := middleware.NewAuthMiddleware(issuer)
//	router.Handle("/userinfo", authMW.Handler(http.HandlerFunc(handlers.UserInfo)))
package middleware
