package httputil

import (
	"net/http"
	"strings"
)

// FormString extracts a form field from a POST body or query string.
// Whitespace is trimmed so a field of only spaces reads as absent.
func FormString(r *http.Request, key string) string {
	return strings.TrimSpace(r.FormValue(key))
}

// QueryString extracts a query parameter with a default
func QueryString(r *http.Request, key, defaultVal string) string {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// BearerToken extracts a bearer token from the Authorization header. It
// returns an empty string when the header is missing or not a bearer
// scheme.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
