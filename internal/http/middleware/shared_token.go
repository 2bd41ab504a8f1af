package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// InboxTokenHeader is the custom header alternative to a bearer token.
const InboxTokenHeader = "X-Inbox-Token"

// SharedToken requires expected as a bearer token or in InboxTokenHeader.
// An empty expected leaves the route open.
func SharedToken(expected string) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				token = strings.TrimSpace(r.Header.Get(InboxTokenHeader))
			}
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				writeAuthError(w, "invalid inbox token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
