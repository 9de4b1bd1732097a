package domain

import "time"

// Identity is the user record owned by the hosted auth service.
type Identity struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	Provider  string         `json:"provider"`
	Metadata  map[string]any `json:"user_metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Username returns the username stored in the identity metadata at sign-up, if any.
func (i Identity) Username() string {
	v, _ := i.Metadata["username"].(string)
	return v
}

type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticating
	StateAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

func (s SessionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Tokens is the credential pair issued by the hosted service for one session.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Session is the process-local view of who is signed in. Identity is a copy,
// never shared with the auth client.
type Session struct {
	State    SessionState `json:"state"`
	Identity *Identity    `json:"identity,omitempty"`
}

func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated && s.Identity != nil
}

// UserID is empty unless a user is signed in.
func (s Session) UserID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.ID
}

func CopyIdentity(in *Identity) *Identity {
	if in == nil {
		return nil
	}
	out := *in
	if in.Metadata != nil {
		out.Metadata = make(map[string]any, len(in.Metadata))
		for k, v := range in.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

type SessionEventType string

const (
	EventInitialSession   SessionEventType = "INITIAL_SESSION"
	EventSignedIn         SessionEventType = "SIGNED_IN"
	EventSignedOut        SessionEventType = "SIGNED_OUT"
	EventTokenRefreshed   SessionEventType = "TOKEN_REFRESHED"
	EventUserUpdated      SessionEventType = "USER_UPDATED"
	EventPasswordRecovery SessionEventType = "PASSWORD_RECOVERY"
)

// SessionEvent is a change notification from the auth service. A nil
// Identity means there is no session.
type SessionEvent struct {
	Type     SessionEventType
	Identity *Identity
	At       time.Time
}
