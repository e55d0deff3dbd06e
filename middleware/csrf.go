package middleware

import (
	"net/http"

	"github.com/namesmith/authcore"
	"github.com/namesmith/authcore/csrf"
)

// CSRF enforces the double-submit check on state-changing methods. Safe
// methods (GET, HEAD, OPTIONS) pass through. Requires [Guard] upstream so
// the session is known.
func CSRF(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			res, ok := AuthResultFromContext(r.Context())
			if !ok || res.SessionID == "" {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			var cookieValue string
			if c, err := r.Cookie(csrf.CookieName); err == nil {
				cookieValue = c.Value
			}

			err := engine.ValidateCSRF(r.Context(), res.SessionID, r.Header.Get(csrf.HeaderName), cookieValue)
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
