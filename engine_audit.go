package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess   = "login_success"
	auditEventLoginFailure   = "login_failure"
	auditEventLoginLockedOut = "login_locked_out"
	auditEventAuthRejected   = "auth_rejected"
	auditEventRefreshSuccess = "refresh_success"
	auditEventRefreshInvalid = "refresh_invalid"
	auditEventLogoutSession  = "logout_session"
	auditEventLogoutAll      = "logout_all"
	auditEventSessionRevoked = "session_revoked"
	auditEventSessionEvicted = "session_evicted"
	auditEventRateLimited    = "rate_limit_triggered"
	auditEventCSRFRejected   = "csrf_rejected"
	auditEventStoreDegraded  = "store_degraded"
)

// auditErrorCode maps internal errors onto stable audit vocabulary. The
// audit trail keeps the full failure kind even where the external surface
// collapses everything into "unauthenticated".
type auditErrorCode string

const (
	auditErrUnauthenticated    auditErrorCode = "unauthenticated"
	auditErrInvalidCredentials auditErrorCode = "invalid_credentials"
	auditErrLockedOut          auditErrorCode = "locked_out"
	auditErrRateLimited        auditErrorCode = "rate_limited"
	auditErrCSRF               auditErrorCode = "csrf_rejected"
	auditErrSessionNotFound    auditErrorCode = "session_not_found"
	auditErrUserNotFound       auditErrorCode = "user_not_found"
	auditErrAccountInactive    auditErrorCode = "account_inactive"
	auditErrStoreUnavailable   auditErrorCode = "store_unavailable"
	auditErrInternal           auditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	endpointClass string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:     time.Now().UTC(),
		EventType:     eventType,
		UserID:        userID,
		SessionID:     sessionID,
		IP:            clientIPFromContext(ctx),
		EndpointClass: endpointClass,
		Success:       success,
		Metadata:      metadata,
	}
	if code := codeForAuditError(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func codeForAuditError(err error) auditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLockedOut):
		return auditErrLockedOut
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrCSRFRejected):
		return auditErrCSRF
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStoreUnavailable
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	default:
		return auditErrInternal
	}
}
