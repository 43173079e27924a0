package session

import (
	"time"

	"github.com/angelmondragon/minierp-console/pkg/enums"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
)

// Identity is the authenticated half of a Session.
type Identity struct {
	Username  string
	Role      enums.Role
	Token     string
	Subject   string
	ExpiresAt *time.Time
}

// Session is either anonymous or carries exactly one Identity.
type Session struct {
	identity *Identity
}

// Anonymous is the signed-out session.
func Anonymous() Session {
	return Session{}
}

// Authenticated wraps an identity. Callers are expected to have validated it.
func Authenticated(id Identity) Session {
	return Session{identity: &id}
}

func (s Session) IsAuthenticated() bool {
	return s.identity != nil
}

// Identity returns a copy of the identity and whether the session is signed in.
func (s Session) Identity() (Identity, bool) {
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

func (s Session) Username() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.Username
}

func (s Session) Role() enums.Role {
	if s.identity == nil {
		return ""
	}
	return s.identity.Role
}

func (s Session) Token() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.Token
}

func (s Session) IsAdmin() bool {
	return s.Role() == enums.RoleAdmin
}

// RequireAuthenticated returns the identity or an unauthorized error.
func (s Session) RequireAuthenticated() (Identity, error) {
	id, ok := s.Identity()
	if !ok {
		return Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in required")
	}
	return id, nil
}

// RequireRole returns the identity when it holds role.
func (s Session) RequireRole(role enums.Role) (Identity, error) {
	id, err := s.RequireAuthenticated()
	if err != nil {
		return Identity{}, err
	}
	if id.Role != role {
		return Identity{}, pkgerrors.Newf(pkgerrors.CodeForbidden, "%s role required", role)
	}
	return id, nil
}

// View is the JSON shape of a session; the token is never exposed.
type View struct {
	Authenticated bool       `json:"authenticated"`
	Username      string     `json:"username,omitempty"`
	Role          enums.Role `json:"role,omitempty"`
	Subject       string     `json:"subject,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func (s Session) View() View {
	id, ok := s.Identity()
	if !ok {
		return View{}
	}
	return View{
		Authenticated: true,
		Username:      id.Username,
		Role:          id.Role,
		Subject:       id.Subject,
		ExpiresAt:     id.ExpiresAt,
	}
}
