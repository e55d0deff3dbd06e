package authcore

import (
	"context"
	"time"

	"github.com/namesmith/authcore/session"
)

// Identity is the minimal account view this module consumes from the
// external relational user store. Profile, billing, and account lifecycle
// stay on the host's side of the boundary.
type Identity struct {
	ID     string
	Role   string
	Plan   string
	Admin  bool
	Active bool
}

// UserStore is the external collaborator that owns credentials and
// profiles. FindByCredentials performs the password check itself; this
// module never sees or stores password material.
type UserStore interface {
	FindByCredentials(ctx context.Context, identifier, secret string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
}

// LoginResult carries everything the HTTP layer needs after a successful
// login: the credential pair, the session linkage, and the CSRF secret to
// mirror into the script-readable cookie.
type LoginResult struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
	CSRFToken        string
	Identity         Identity
}

// AuthResult is returned by Engine.Authenticate and attached to the
// request context by the middleware gate.
type AuthResult struct {
	Identity  Identity
	SessionID string
	JTI       string
	ExpiresAt time.Time
}

// RefreshResult carries the newly minted access credential. The refresh
// credential is not rotated.
type RefreshResult struct {
	AccessToken     string
	AccessExpiresAt time.Time
	SessionID       string
}

// SessionInfo is the redacted session view for listing endpoints.
type SessionInfo = session.Info
