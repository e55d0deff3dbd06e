package middleware

import (
	"net/http"
	"time"

	"github.com/namesmith/authcore"
	"github.com/namesmith/authcore/csrf"
)

// Cookie names are fixed deployment-wide so every instance reads what any
// other instance wrote.
const (
	// AccessCookieName carries the access credential for browser clients
	// that do not manage an Authorization header.
	AccessCookieName = "access_token"
	// RefreshCookieName carries the refresh credential. Always HTTP-only.
	RefreshCookieName = "refresh_token"
)

// SetAuthCookies writes the credential and CSRF cookies from a completed
// login. The refresh cookie is HTTP-only; the CSRF cookie is readable by
// scripts so the client can echo it in the request header.
func SetAuthCookies(w http.ResponseWriter, cfg authcore.CookieConfig, result *authcore.LoginResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    result.AccessToken,
		Expires:  result.AccessExpiresAt,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: cfg.SameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    result.RefreshToken,
		Expires:  result.RefreshExpiresAt,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: cfg.SameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     csrf.CookieName,
		Value:    result.CSRFToken,
		Expires:  result.RefreshExpiresAt,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		Secure:   cfg.Secure,
		HttpOnly: false,
		SameSite: cfg.SameSite,
	})
}

// ClearAuthCookies expires all three cookies after logout.
func ClearAuthCookies(w http.ResponseWriter, cfg authcore.CookieConfig) {
	for _, name := range []string{AccessCookieName, RefreshCookieName, csrf.CookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			Path:     cfg.Path,
			Domain:   cfg.Domain,
			Secure:   cfg.Secure,
			SameSite: cfg.SameSite,
		})
	}
}

// RefreshCredential extracts the refresh credential from the request
// cookie, for logout and refresh handlers.
func RefreshCredential(r *http.Request) (string, bool) {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
