package internaldefs

import (
	"github.com/namesmith/authcore"
)

// CounterDef binds an engine counter to its stable export name. The names
// are part of the monitoring contract; renaming one breaks dashboards.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs enumerates every exported engine counter in a fixed order so
// both exposition formats render identically.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginLockedOut, Name: "authcore_login_locked_out_total", Help: "Logins refused due to an active lockout."},
	{ID: authcore.MetricAuthSuccess, Name: "authcore_auth_success_total", Help: "Successful request authentications."},
	{ID: authcore.MetricAuthFailure, Name: "authcore_auth_failure_total", Help: "Rejected request authentications."},
	{ID: authcore.MetricAuthRevoked, Name: "authcore_auth_revoked_total", Help: "Authentications rejected by the revocation ledger."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh operations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Sessions created."},
	{ID: authcore.MetricSessionRevoked, Name: "authcore_session_revoked_total", Help: "Sessions revoked."},
	{ID: authcore.MetricSessionEvicted, Name: "authcore_session_evicted_total", Help: "Sessions removed by per-user capacity enforcement."},
	{ID: authcore.MetricSessionFallback, Name: "authcore_session_fallback_total", Help: "Session operations served by the process-local fallback."},
	{ID: authcore.MetricRateLimited, Name: "authcore_rate_limited_total", Help: "Requests denied by the tiered rate limiter."},
	{ID: authcore.MetricRateDegraded, Name: "authcore_rate_degraded_total", Help: "Rate checks admitted fail-open during store outages."},
	{ID: authcore.MetricCSRFRejected, Name: "authcore_csrf_rejected_total", Help: "Requests rejected by CSRF validation."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logouts."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
}
