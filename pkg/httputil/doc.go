// Package httputil provides HTTP utilities for request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteUnauthorized(w, "invalid token")
//
// # Request Parsing
//
//	response := httputil.FormString(r, "SAMLResponse")
//	token := httputil.BearerToken(r)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Bearer token authentication middleware
package httputil
