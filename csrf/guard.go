// Package csrf implements double-submit anti-forgery validation. The
// per-session secret is allocated by the session store at creation and
// mirrored into a script-readable cookie; state-changing requests must
// echo it in a header, and all three values must match.
package csrf

import "crypto/subtle"

const (
	// HeaderName is the deployment-wide request header carrying the CSRF token.
	HeaderName = "X-CSRF-Token"
	// CookieName is the deployment-wide, script-readable CSRF cookie.
	CookieName = "csrf_token"
)

// Validate reports whether the header value, cookie value, and the secret
// embedded in the session record are all present and equal. Comparisons
// are constant-time so validation leaks no timing signal about the secret.
func Validate(headerValue, cookieValue, sessionSecret string) bool {
	if headerValue == "" || cookieValue == "" || sessionSecret == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(headerValue), []byte(sessionSecret)) != 1 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieValue), []byte(sessionSecret)) == 1
}
