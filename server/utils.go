package server

import (
	"net/http"
	"strings"
)

// userIDFromRequest extracts the caller identity from the X-User-ID header or
// the user query parameter.
func userIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("user"))
}

// userIDFromState recovers the user id embedded in an OAuth state token
// ("<nonce>:<userID>").
func userIDFromState(state string) string {
	_, userID, ok := strings.Cut(state, ":")
	if !ok {
		return ""
	}
	return userID
}
